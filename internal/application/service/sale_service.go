package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	"github.com/tillworks/fiscal-pos-api/internal/domain/enum"
	"github.com/tillworks/fiscal-pos-api/internal/domain/repository"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/queue"
	"github.com/tillworks/fiscal-pos-api/pkg/apperror"
)

// SaleService drives each sale through its state machine: Open → Committed →
// FiscallyPending → FiscallyEmitted, with Voided reachable only before the
// document is dispatched and Failed reserved for jobs voided by an operator.
type SaleService struct {
	sales    repository.SaleRepository
	queue    *queue.Queue
	sessions *SessionService
	log      *zap.Logger

	// mu serializes state transitions; sales being edited while Open share
	// no state, the funnel point is commit and settlement.
	mu sync.Mutex
}

// NewSaleService creates a new sale service.
func NewSaleService(
	sales repository.SaleRepository,
	q *queue.Queue,
	sessions *SessionService,
	log *zap.Logger,
) *SaleService {
	return &SaleService{
		sales:    sales,
		queue:    q,
		sessions: sessions,
		log:      log,
	}
}

// CreateSaleInput represents the create sale input
type CreateSaleInput struct {
	TillID     string
	OperatorID string
	DocType    enum.DocumentType
}

// AddLineInput represents a line item being added to an open sale
type AddLineInput struct {
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	Discount   decimal.Decimal
}

// AddPaymentInput represents a payment entry being added to an open sale
type AddPaymentInput struct {
	Method enum.PaymentMethod
	Amount decimal.Decimal
}

// CommitResult reports the outcome of a commit call.
type CommitResult struct {
	Sale      *entity.SaleTransaction `json:"sale"`
	JobStatus enum.JobStatus          `json:"job_status"`
	// Duplicate is true when the commit was a retry and the existing print
	// job was reused instead of a new one being enqueued.
	Duplicate bool `json:"duplicate"`
}

// CreateSale starts a new sale on a till.
func (s *SaleService) CreateSale(ctx context.Context, input *CreateSaleInput) (*entity.SaleTransaction, error) {
	sale := &entity.SaleTransaction{
		TillID:     input.TillID,
		OperatorID: input.OperatorID,
		DocType:    input.DocType,
		Status:     enum.SaleStatusOpen,
		Total:      decimal.Zero,
	}
	if err := s.sales.Create(ctx, sale); err != nil {
		return nil, err
	}
	return sale, nil
}

// GetSale retrieves a sale with its lines and payments.
func (s *SaleService) GetSale(ctx context.Context, id uuid.UUID) (*entity.SaleTransaction, error) {
	sale, err := s.sales.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, apperror.NewNotFoundError("Sale")
	}
	return sale, nil
}

// AddLine appends a line item. Only Open sales are mutable.
func (s *SaleService) AddLine(ctx context.Context, saleID uuid.UUID, input *AddLineInput) (*entity.SaleTransaction, error) {
	if input.Quantity <= 0 {
		return nil, apperror.NewBadRequestError("Quantity must be positive")
	}
	if input.UnitPrice.IsNegative() {
		return nil, apperror.NewBadRequestError("Unit price cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != enum.SaleStatusOpen {
		return nil, apperror.NewInvalidTransitionError("Sale is not open; line items are frozen")
	}

	line := &entity.SaleLine{
		SaleID:     sale.ID,
		Position:   len(sale.Lines),
		ProductRef: input.ProductRef,
		Name:       input.Name,
		Quantity:   input.Quantity,
		UnitPrice:  input.UnitPrice,
		Discount:   input.Discount,
	}
	if err := s.sales.AddLine(ctx, line); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

// AddPayment appends a payment entry. Only Open sales are mutable.
func (s *SaleService) AddPayment(ctx context.Context, saleID uuid.UUID, input *AddPaymentInput) (*entity.SaleTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, apperror.NewBadRequestError("Payment amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != enum.SaleStatusOpen {
		return nil, apperror.NewInvalidTransitionError("Sale is not open; payments are frozen")
	}

	payment := &entity.SalePayment{
		SaleID:   sale.ID,
		Position: len(sale.Payments),
		Method:   input.Method,
		Amount:   input.Amount,
	}
	if err := s.sales.AddPayment(ctx, payment); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

// Commit freezes the sale and enqueues its fiscal document. Re-invoking
// commit on a sale that is already Committed or FiscallyPending is a safe
// no-op: the idempotency key is derived from the sale id, so the queue
// reports the existing job instead of creating a duplicate.
func (s *SaleService) Commit(ctx context.Context, saleID uuid.UUID) (*CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	switch sale.Status {
	case enum.SaleStatusOpen:
		if len(sale.Lines) == 0 {
			return nil, apperror.NewBadRequestError("Cannot commit a sale with no line items")
		}
		total := sale.ComputeTotal()
		if tendered := sale.TenderedTotal(); tendered.LessThan(total) {
			return nil, apperror.NewBadRequestError("Tendered amount does not cover the sale total")
		}
		session, err := s.sessions.Current(ctx, sale.TillID)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		sale.Total = total
		sale.SessionID = &session.ID
		sale.CommittedAt = &now
		sale.Status = enum.SaleStatusCommitted
		if err := s.sales.Update(ctx, sale); err != nil {
			return nil, err
		}
	case enum.SaleStatusCommitted, enum.SaleStatusFiscallyPending, enum.SaleStatusFiscallyEmitted:
		// Commit retry; fall through to the idempotent enqueue.
	default:
		return nil, apperror.NewInvalidTransitionError("Sale cannot be committed from status " + sale.Status.String())
	}

	job := &entity.PrintJob{
		IdempotencyKey: sale.IdempotencyKey(),
		SaleID:         sale.ID,
	}
	if err := job.SetDocument(documentPayload(sale)); err != nil {
		return nil, err
	}
	jobStatus, duplicate, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		return nil, err
	}

	if sale.Status == enum.SaleStatusCommitted {
		sale.Status = enum.SaleStatusFiscallyPending
		if err := s.sales.Update(ctx, sale); err != nil {
			return nil, err
		}
	}

	if duplicate {
		s.log.Info("duplicate commit ignored",
			zap.String("sale_id", sale.ID.String()),
			zap.Stringer("job_status", jobStatus))
	}
	return &CommitResult{Sale: sale, JobStatus: jobStatus, Duplicate: duplicate}, nil
}

// Void cancels a sale. Allowed from Open and Committed; once the document
// has been submitted toward the printer a sale can only be voided while its
// job is still queued (the job is withdrawn). After dispatch, cancellation
// requires an explicit fiscal cancel document.
func (s *SaleService) Void(ctx context.Context, saleID uuid.UUID) (*entity.SaleTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	switch sale.Status {
	case enum.SaleStatusOpen, enum.SaleStatusCommitted:
		// No job exists yet.
	case enum.SaleStatusFiscallyPending:
		if err := s.queue.Withdraw(ctx, sale.IdempotencyKey()); err != nil {
			return nil, apperror.NewInvalidTransitionError(
				"Document already submitted to the printer; cancellation requires a fiscal cancel document")
		}
	default:
		return nil, apperror.NewInvalidTransitionError("Sale cannot be voided from status " + sale.Status.String())
	}

	sale.Status = enum.SaleStatusVoided
	if err := s.sales.Update(ctx, sale); err != nil {
		return nil, err
	}
	s.log.Info("sale voided", zap.String("sale_id", sale.ID.String()))
	return sale, nil
}

// JobSettled hands a terminal print job back to its originating sale. It is
// the queue.Observer implementation.
func (s *SaleService) JobSettled(job *entity.PrintJob) {
	ctx := context.Background()

	s.mu.Lock()
	sale, err := s.sales.GetByID(ctx, job.SaleID)
	if err != nil || sale == nil {
		s.mu.Unlock()
		s.log.Error("settled job references unknown sale",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		return
	}

	switch job.Status {
	case enum.JobStatusSucceeded:
		if sale.Status != enum.SaleStatusFiscallyPending {
			s.mu.Unlock()
			return
		}
		now := time.Now()
		sale.Status = enum.SaleStatusFiscallyEmitted
		sale.FiscalNumber = job.FiscalNumber
		sale.EmittedAt = &now
		if err := s.sales.Update(ctx, sale); err != nil {
			s.mu.Unlock()
			s.log.Error("failed to persist fiscal emission", zap.Error(err))
			return
		}
		s.mu.Unlock()

		if err := s.sessions.RecordSettled(ctx, sale); err != nil {
			s.log.Error("failed to record settlement",
				zap.String("sale_id", sale.ID.String()),
				zap.Error(err))
		}
	case enum.JobStatusFailed:
		// Withdrawn jobs belong to sales already voided; only a job voided
		// by an operator fails a pending sale.
		if sale.Status != enum.SaleStatusFiscallyPending {
			s.mu.Unlock()
			return
		}
		sale.Status = enum.SaleStatusFailed
		if err := s.sales.Update(ctx, sale); err != nil {
			s.log.Error("failed to persist sale failure", zap.Error(err))
		}
		s.mu.Unlock()
	default:
		s.mu.Unlock()
	}
}

// documentPayload builds the fiscal document descriptor for a committed sale.
func documentPayload(sale *entity.SaleTransaction) *entity.DocumentPayload {
	doc := &entity.DocumentPayload{
		DocType:  sale.DocType,
		Operator: sale.OperatorID,
		Till:     sale.TillID,
	}
	for _, line := range sale.Lines {
		doc.Lines = append(doc.Lines, entity.PayloadLine{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Discount:  line.Discount,
		})
	}
	for _, payment := range sale.Payments {
		doc.Payments = append(doc.Payments, entity.PayloadPayment{
			Method: payment.Method,
			Amount: payment.Amount,
		})
	}
	return doc
}
