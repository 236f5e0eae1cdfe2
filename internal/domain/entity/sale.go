package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tillworks/fiscal-pos-api/internal/domain/enum"
	"gorm.io/gorm"
)

// SaleTransaction represents a sale driven from creation to fiscal emission.
// It is owned exclusively by the sale state machine while Open/Committed and
// becomes immutable once FiscallyEmitted.
type SaleTransaction struct {
	ID           uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	TillID       string            `gorm:"size:64;not null;index" json:"till_id"`
	OperatorID   string            `gorm:"size:64;not null" json:"operator_id"`
	SessionID    *uuid.UUID        `gorm:"type:uuid;index" json:"session_id,omitempty"`
	DocType      enum.DocumentType `gorm:"default:0" json:"doc_type"`
	Status       enum.SaleStatus   `gorm:"default:0;index" json:"status"`
	Total        decimal.Decimal   `gorm:"type:decimal(12,2);default:0" json:"total"`
	FiscalNumber *int64            `json:"fiscal_number,omitempty"`
	CommittedAt  *time.Time        `json:"committed_at,omitempty"`
	EmittedAt    *time.Time        `json:"emitted_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	// Relationships
	Lines    []SaleLine    `gorm:"foreignKey:SaleID" json:"lines,omitempty"`
	Payments []SalePayment `gorm:"foreignKey:SaleID" json:"payments,omitempty"`
}

// BeforeCreate generates a UUID before creating a new sale transaction
func (s *SaleTransaction) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the SaleTransaction model
func (SaleTransaction) TableName() string {
	return "sale_transactions"
}

// IdempotencyKey derives the print-job idempotency key for this sale. The
// key is stable across commit retries: it is a pure function of the sale id.
func (s *SaleTransaction) IdempotencyKey() string {
	return "sale-" + s.ID.String()
}

// ComputeTotal sums the line items: quantity × unit price − discount.
func (s *SaleTransaction) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Total())
	}
	return total
}

// TenderedTotal sums all payment entries.
func (s *SaleTransaction) TenderedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// CashDelta is the signed cash movement this sale contributes to a till:
// positive for cash payments on a receipt, negative for cash refunds.
func (s *SaleTransaction) CashDelta() decimal.Decimal {
	cash := decimal.Zero
	for _, p := range s.Payments {
		if p.Method == enum.PaymentMethodCash {
			cash = cash.Add(p.Amount)
		}
	}
	if s.DocType == enum.DocumentTypeRefund {
		return cash.Neg()
	}
	return cash
}

// SaleLine represents an ordered line item in a sale
type SaleLine struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	SaleID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"sale_id"`
	Position   int             `gorm:"not null" json:"position"`
	ProductRef string          `gorm:"size:64;not null" json:"product_ref"`
	Name       string          `gorm:"size:255;not null" json:"name"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Discount   decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"discount"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BeforeCreate generates a UUID before creating a new sale line
func (l *SaleLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the SaleLine model
func (SaleLine) TableName() string {
	return "sale_lines"
}

// Total is the line total: quantity × unit price − discount.
func (l *SaleLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Sub(l.Discount)
}

// SalePayment represents an ordered payment entry on a sale
type SalePayment struct {
	ID        uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	SaleID    uuid.UUID          `gorm:"type:uuid;not null;index" json:"sale_id"`
	Position  int                `gorm:"not null" json:"position"`
	Method    enum.PaymentMethod `gorm:"default:0" json:"method"`
	Amount    decimal.Decimal    `gorm:"type:decimal(12,2);not null" json:"amount"`
	CreatedAt time.Time          `json:"created_at"`
}

// BeforeCreate generates a UUID before creating a new sale payment
func (p *SalePayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the SalePayment model
func (SalePayment) TableName() string {
	return "sale_payments"
}
