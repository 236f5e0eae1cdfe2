package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
)

// CashSessionRepository defines the interface for cash session persistence
type CashSessionRepository interface {
	// Create stores a new cash session
	Create(ctx context.Context, session *entity.CashSession) error
	// GetByID retrieves a session with its entries, or nil if absent
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CashSession, error)
	// Update persists the session's current state
	Update(ctx context.Context, session *entity.CashSession) error
	// AddEntry appends a settled-transaction entry to a session
	AddEntry(ctx context.Context, entry *entity.SessionEntry) error
	// ListOpen returns all currently open sessions, used to rebuild the
	// till map on startup
	ListOpen(ctx context.Context) ([]entity.CashSession, error)
}
