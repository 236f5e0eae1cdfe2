package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashSession represents one open/close cycle of a till. At most one session
// is open per till at any time. On close the expected balance is computed
// from the settled transactions and recorded next to the operator-declared
// balance; a mismatch is reported as a discrepancy, never corrected.
type CashSession struct {
	ID              uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	TillID          string           `gorm:"size:64;not null;index" json:"till_id"`
	OperatorID      string           `gorm:"size:64;not null" json:"operator_id"`
	OpeningFloat    decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"opening_float"`
	ExpectedBalance *decimal.Decimal `gorm:"type:decimal(12,2)" json:"expected_balance,omitempty"`
	DeclaredBalance *decimal.Decimal `gorm:"type:decimal(12,2)" json:"declared_balance,omitempty"`
	Discrepancy     *decimal.Decimal `gorm:"type:decimal(12,2)" json:"discrepancy,omitempty"`
	OpenedAt        time.Time        `gorm:"not null" json:"opened_at"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`

	// Entries is the insertion-ordered audit trail of settled transactions.
	// It is never reordered or deduplicated.
	Entries []SessionEntry `gorm:"foreignKey:SessionID" json:"entries,omitempty"`
}

// BeforeCreate generates a UUID before creating a new cash session
func (s *CashSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the CashSession model
func (CashSession) TableName() string {
	return "cash_sessions"
}

// IsOpen reports whether the session is still open.
func (s *CashSession) IsOpen() bool {
	return s.ClosedAt == nil
}

// ExpectedAt computes the running expected balance: opening float plus the
// signed cash deltas of the settled entries, in arrival order.
func (s *CashSession) ExpectedAt() decimal.Decimal {
	expected := s.OpeningFloat
	for _, e := range s.Entries {
		expected = expected.Add(e.CashDelta)
	}
	return expected
}

// SessionEntry records one settled transaction inside a session
type SessionEntry struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	SessionID uuid.UUID       `gorm:"type:uuid;not null;index" json:"session_id"`
	SaleID    uuid.UUID       `gorm:"type:uuid;not null" json:"sale_id"`
	Position  int             `gorm:"not null" json:"position"`
	CashDelta decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"cash_delta"`
	CreatedAt time.Time       `json:"created_at"`
}

// BeforeCreate generates a UUID before creating a new session entry
func (e *SessionEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the SessionEntry model
func (SessionEntry) TableName() string {
	return "session_entries"
}
