// Package memory provides an in-memory implementation of the domain
// repositories. It backs tests and demo deployments that run without
// PostgreSQL; the GORM implementations in the parent package are the
// production counterpart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	"github.com/tillworks/fiscal-pos-api/internal/domain/enum"
	domainRepo "github.com/tillworks/fiscal-pos-api/internal/domain/repository"
)

// Store holds all in-memory state behind one lock. Every repository method
// stores and returns copies so callers never alias internal state.
type Store struct {
	mu       sync.RWMutex
	sales    map[uuid.UUID]entity.SaleTransaction
	sessions map[uuid.UUID]entity.CashSession
	jobs     map[uuid.UUID]entity.PrintJob
	jobByKey map[string]uuid.UUID
	jobOrder []uuid.UUID
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sales:    map[uuid.UUID]entity.SaleTransaction{},
		sessions: map[uuid.UUID]entity.CashSession{},
		jobs:     map[uuid.UUID]entity.PrintJob{},
		jobByKey: map[string]uuid.UUID{},
	}
}

// Sales returns the sale repository view of the store.
func (s *Store) Sales() domainRepo.SaleRepository { return (*saleRepo)(s) }

// Sessions returns the cash session repository view of the store.
func (s *Store) Sessions() domainRepo.CashSessionRepository { return (*sessionRepo)(s) }

// Jobs returns the print job repository view of the store.
func (s *Store) Jobs() domainRepo.PrintJobRepository { return (*jobRepo)(s) }

func cloneSale(sale *entity.SaleTransaction) entity.SaleTransaction {
	out := *sale
	out.Lines = append([]entity.SaleLine(nil), sale.Lines...)
	out.Payments = append([]entity.SalePayment(nil), sale.Payments...)
	return out
}

func cloneSession(session *entity.CashSession) entity.CashSession {
	out := *session
	out.Entries = append([]entity.SessionEntry(nil), session.Entries...)
	return out
}

// --- SaleRepository ---

type saleRepo Store

func (r *saleRepo) Create(ctx context.Context, sale *entity.SaleTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	sale.CreatedAt = time.Now()
	sale.UpdatedAt = sale.CreatedAt
	r.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (r *saleRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.SaleTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sale, ok := r.sales[id]
	if !ok {
		return nil, nil
	}
	out := cloneSale(&sale)
	return &out, nil
}

func (r *saleRepo) Update(ctx context.Context, sale *entity.SaleTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale.UpdatedAt = time.Now()
	stored := cloneSale(sale)
	// Keep previously stored children if the caller updated only the head.
	if prev, ok := r.sales[sale.ID]; ok {
		if len(stored.Lines) == 0 {
			stored.Lines = prev.Lines
		}
		if len(stored.Payments) == 0 {
			stored.Payments = prev.Payments
		}
	}
	r.sales[sale.ID] = stored
	return nil
}

func (r *saleRepo) AddLine(ctx context.Context, line *entity.SaleLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	line.CreatedAt = time.Now()
	sale, ok := r.sales[line.SaleID]
	if !ok {
		return nil
	}
	sale.Lines = append(sale.Lines, *line)
	r.sales[line.SaleID] = sale
	return nil
}

func (r *saleRepo) AddPayment(ctx context.Context, payment *entity.SalePayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	sale, ok := r.sales[payment.SaleID]
	if !ok {
		return nil
	}
	sale.Payments = append(sale.Payments, *payment)
	r.sales[payment.SaleID] = sale
	return nil
}

// --- CashSessionRepository ---

type sessionRepo Store

func (r *sessionRepo) Create(ctx context.Context, session *entity.CashSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.CashSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	out := cloneSession(&session)
	return &out, nil
}

func (r *sessionRepo) Update(ctx context.Context, session *entity.CashSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.UpdatedAt = time.Now()
	stored := cloneSession(session)
	if prev, ok := r.sessions[session.ID]; ok && len(stored.Entries) == 0 {
		stored.Entries = prev.Entries
	}
	r.sessions[session.ID] = stored
	return nil
}

func (r *sessionRepo) AddEntry(ctx context.Context, entry *entity.SessionEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	session, ok := r.sessions[entry.SessionID]
	if !ok {
		return nil
	}
	session.Entries = append(session.Entries, *entry)
	r.sessions[entry.SessionID] = session
	return nil
}

func (r *sessionRepo) ListOpen(ctx context.Context) ([]entity.CashSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var open []entity.CashSession
	for _, session := range r.sessions {
		if session.IsOpen() {
			open = append(open, cloneSession(&session))
		}
	}
	return open, nil
}

// --- PrintJobRepository ---

type jobRepo Store

func (r *jobRepo) Create(ctx context.Context, job *entity.PrintJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	r.jobs[job.ID] = *job
	r.jobByKey[job.IdempotencyKey] = job.ID
	r.jobOrder = append(r.jobOrder, job.ID)
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.PrintJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) GetByKey(ctx context.Context, key string) (*entity.PrintJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.jobByKey[key]
	if !ok {
		return nil, nil
	}
	job := r.jobs[id]
	return &job, nil
}

func (r *jobRepo) Update(ctx context.Context, job *entity.PrintJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.UpdatedAt = time.Now()
	r.jobs[job.ID] = *job
	return nil
}

func (r *jobRepo) ListPendingByDevice(ctx context.Context, deviceID string) ([]entity.PrintJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var pending []entity.PrintJob
	for _, id := range r.jobOrder {
		job := r.jobs[id]
		if job.DeviceID != deviceID {
			continue
		}
		switch job.Status {
		case enum.JobStatusQueued, enum.JobStatusInFlight, enum.JobStatusDeadLettered:
			pending = append(pending, job)
		}
	}
	return pending, nil
}
