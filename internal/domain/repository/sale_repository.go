package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
)

// SaleRepository defines the interface for sale transaction persistence
type SaleRepository interface {
	// Create stores a new sale transaction with its lines and payments
	Create(ctx context.Context, sale *entity.SaleTransaction) error
	// GetByID retrieves a sale with its lines and payments, or nil if absent
	GetByID(ctx context.Context, id uuid.UUID) (*entity.SaleTransaction, error)
	// Update persists the sale's current state
	Update(ctx context.Context, sale *entity.SaleTransaction) error
	// AddLine appends a line item to an open sale
	AddLine(ctx context.Context, line *entity.SaleLine) error
	// AddPayment appends a payment entry to an open sale
	AddPayment(ctx context.Context, payment *entity.SalePayment) error
}
