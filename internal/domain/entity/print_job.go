package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tillworks/fiscal-pos-api/internal/domain/enum"
	"gorm.io/gorm"
)

// PrintJob is one unit of work for a fiscal device. The idempotency key is
// derived from the originating transaction and never regenerated on retry,
// which is what makes duplicate enqueues detectable.
type PrintJob struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	IdempotencyKey string          `gorm:"uniqueIndex;size:255;not null" json:"idempotency_key"`
	DeviceID       string          `gorm:"size:64;not null;index" json:"device_id"`
	SaleID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"sale_id"`
	Payload        string          `gorm:"type:jsonb;not null" json:"-"`
	Status         enum.JobStatus  `gorm:"default:0;index" json:"status"`
	Attempts       int             `gorm:"default:0" json:"attempts"`
	LastError      string          `gorm:"type:text" json:"last_error,omitempty"`
	FiscalNumber   *int64          `json:"fiscal_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// BeforeCreate generates a UUID before creating a new print job
func (j *PrintJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the PrintJob model
func (PrintJob) TableName() string {
	return "print_jobs"
}

// DocumentPayload is the fiscal document descriptor carried by a print job.
type DocumentPayload struct {
	DocType  enum.DocumentType `json:"doc_type"`
	Operator string            `json:"operator"`
	Till     string            `json:"till"`
	Lines    []PayloadLine     `json:"lines"`
	Payments []PayloadPayment  `json:"payments"`
}

// PayloadLine is one line item of a document payload.
type PayloadLine struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

// PayloadPayment is one payment entry of a document payload.
type PayloadPayment struct {
	Method enum.PaymentMethod `json:"method"`
	Amount decimal.Decimal    `json:"amount"`
}

// Document unmarshals the job's payload.
func (j *PrintJob) Document() (*DocumentPayload, error) {
	var doc DocumentPayload
	if err := json.Unmarshal([]byte(j.Payload), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SetDocument marshals the payload into the job.
func (j *PrintJob) SetDocument(doc *DocumentPayload) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	j.Payload = string(raw)
	return nil
}
