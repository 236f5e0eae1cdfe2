package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	"github.com/tillworks/fiscal-pos-api/internal/domain/repository"
	"github.com/tillworks/fiscal-pos-api/pkg/apperror"
)

// SessionService owns the lifecycle of cash-register sessions. The mapping
// of till id to open session lives here and is mutated only through Open and
// Close; there is no ambient global.
type SessionService struct {
	sessions repository.CashSessionRepository
	log      *zap.Logger

	mu   sync.Mutex
	open map[string]*entity.CashSession
}

// NewSessionService creates a new session service.
func NewSessionService(sessions repository.CashSessionRepository, log *zap.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		log:      log,
		open:     map[string]*entity.CashSession{},
	}
}

// Load rebuilds the open-session map from the store, called once on startup.
func (s *SessionService) Load(ctx context.Context) error {
	open, err := s.sessions.ListOpen(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range open {
		session := open[i]
		s.open[session.TillID] = &session
	}
	if len(open) > 0 {
		s.log.Info("restored open till sessions", zap.Int("count", len(open)))
	}
	return nil
}

// Open starts a session on a till. It fails with SessionAlreadyOpen if the
// till already has one: at most one open session per till at any time.
func (s *SessionService) Open(ctx context.Context, tillID, operatorID string, openingFloat decimal.Decimal) (*entity.CashSession, error) {
	if openingFloat.IsNegative() {
		return nil, apperror.NewBadRequestError("Opening float cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.open[tillID]; exists {
		return nil, apperror.ErrSessionAlreadyOpen
	}

	session := &entity.CashSession{
		TillID:       tillID,
		OperatorID:   operatorID,
		OpeningFloat: openingFloat,
		OpenedAt:     time.Now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	s.open[tillID] = session

	s.log.Info("till session opened",
		zap.String("till_id", tillID),
		zap.String("operator_id", operatorID),
		zap.String("opening_float", openingFloat.StringFixed(2)))
	return session, nil
}

// Close ends the till's open session. The expected balance is computed from
// the settled transactions recorded in arrival order; the operator-declared
// balance is stored next to it and any mismatch is reported as a
// discrepancy, never silently corrected.
func (s *SessionService) Close(ctx context.Context, tillID string, declared decimal.Decimal) (*entity.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.open[tillID]
	if !exists {
		return nil, apperror.ErrSessionNotOpen
	}

	// Reload with entries so the expected balance covers every settlement.
	session, err := s.sessions.GetByID(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperror.NewNotFoundError("Cash session")
	}

	expected := session.ExpectedAt()
	discrepancy := declared.Sub(expected)
	now := time.Now()
	session.ExpectedBalance = &expected
	session.DeclaredBalance = &declared
	session.Discrepancy = &discrepancy
	session.ClosedAt = &now

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	delete(s.open, tillID)

	if !discrepancy.IsZero() {
		s.log.Warn("till closed with discrepancy",
			zap.String("till_id", tillID),
			zap.String("expected", expected.StringFixed(2)),
			zap.String("declared", declared.StringFixed(2)),
			zap.String("discrepancy", discrepancy.StringFixed(2)))
	} else {
		s.log.Info("till closed balanced",
			zap.String("till_id", tillID),
			zap.String("expected", expected.StringFixed(2)))
	}
	return session, nil
}

// Current returns the till's open session, or a SessionNotOpen error.
func (s *SessionService) Current(ctx context.Context, tillID string) (*entity.CashSession, error) {
	s.mu.Lock()
	current, exists := s.open[tillID]
	s.mu.Unlock()
	if !exists {
		return nil, apperror.ErrSessionNotOpen
	}
	return s.sessions.GetByID(ctx, current.ID)
}

// RecordSettled appends a fiscally emitted transaction to its session's
// audit trail. Entries keep arrival order and are never reordered or
// deduplicated.
func (s *SessionService) RecordSettled(ctx context.Context, sale *entity.SaleTransaction) error {
	if sale.SessionID == nil {
		return apperror.NewBadRequestError("Sale is not bound to a session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.sessions.GetByID(ctx, *sale.SessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return apperror.NewNotFoundError("Cash session")
	}
	if !session.IsOpen() {
		return apperror.ErrSessionNotOpen
	}

	entry := &entity.SessionEntry{
		SessionID: session.ID,
		SaleID:    sale.ID,
		Position:  len(session.Entries),
		CashDelta: sale.CashDelta(),
	}
	return s.sessions.AddEntry(ctx, entry)
}
