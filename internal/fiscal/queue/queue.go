// Package queue orders print jobs for one fiscal device. Jobs are dispatched
// strictly in enqueue order with a single job in flight, because fiscal
// document numbering is sequential and must never be reordered. A
// dead-lettered job halts the device's queue until an operator retries or
// voids it: fiscal law generally forbids skipping a document.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	"github.com/tillworks/fiscal-pos-api/internal/domain/enum"
	domainRepo "github.com/tillworks/fiscal-pos-api/internal/domain/repository"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/driver"
	"github.com/tillworks/fiscal-pos-api/pkg/alert"
	"github.com/tillworks/fiscal-pos-api/pkg/apperror"
	"github.com/tillworks/fiscal-pos-api/pkg/fiscal"
)

// Observer is notified when a job reaches a terminal status (Succeeded or
// Failed). The job is handed back to its originating transaction through
// this callback.
type Observer interface {
	JobSettled(job *entity.PrintJob)
}

// Queue buffers and serializes print jobs for one device. A single worker
// goroutine per device is the only consumer, which makes the single-writer
// guarantee on the device structural rather than lock-based.
type Queue struct {
	drv    *driver.Driver
	jobs   domainRepo.PrintJobRepository
	alerts alert.Notifier
	log    *zap.Logger

	mu       sync.Mutex
	pending  []*entity.PrintJob
	byKey    map[string]*entity.PrintJob
	halted   bool
	observer Observer

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a queue bound to one device driver.
func New(drv *driver.Driver, jobs domainRepo.PrintJobRepository, alerts alert.Notifier, log *zap.Logger) *Queue {
	return &Queue{
		drv:    drv,
		jobs:   jobs,
		alerts: alerts,
		log:    log.With(zap.String("device_id", drv.DeviceID())),
		byKey:  map[string]*entity.PrintJob{},
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// SetObserver registers the terminal-status callback. Must be called before
// Start.
func (q *Queue) SetObserver(obs Observer) {
	q.observer = obs
}

// Start reloads the device's pending jobs from the store and launches the
// worker. A job found InFlight was interrupted by a crash; it is requeued
// and the device's status reconciliation keeps the emission exactly-once.
func (q *Queue) Start(ctx context.Context) error {
	pending, err := q.jobs.ListPendingByDevice(ctx, q.drv.DeviceID())
	if err != nil {
		return fmt.Errorf("queue: failed to reload pending jobs: %w", err)
	}

	q.mu.Lock()
	for i := range pending {
		job := &pending[i]
		if job.Status == enum.JobStatusInFlight {
			job.Status = enum.JobStatusQueued
			if err := q.jobs.Update(ctx, job); err != nil {
				q.mu.Unlock()
				return fmt.Errorf("queue: failed to requeue interrupted job: %w", err)
			}
		}
		if job.Status == enum.JobStatusDeadLettered {
			q.halted = true
		}
		q.pending = append(q.pending, job)
		q.byKey[job.IdempotencyKey] = job
	}
	n := len(q.pending)
	q.mu.Unlock()

	if n > 0 {
		q.log.Info("reloaded pending jobs", zap.Int("count", n))
	}

	q.wg.Add(1)
	go q.worker()
	q.kick()
	return nil
}

// Stop terminates the worker. An in-flight job's outcome is still observed
// before the worker exits.
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
}

// Enqueue adds a job to the device's queue. It is idempotent on the job's
// idempotency key: if a job with the same key already exists in any status,
// no new job is created and the existing job's status is returned with
// duplicate=true. This is what prevents duplicate fiscal emission when a
// commit is retried.
func (q *Queue) Enqueue(ctx context.Context, job *entity.PrintJob) (enum.JobStatus, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byKey[job.IdempotencyKey]; ok {
		return existing.Status, true, nil
	}
	// Jobs settled before this process started are only in the store.
	if existing, err := q.jobs.GetByKey(ctx, job.IdempotencyKey); err != nil {
		return 0, false, err
	} else if existing != nil {
		q.byKey[existing.IdempotencyKey] = existing
		return existing.Status, true, nil
	}

	job.DeviceID = q.drv.DeviceID()
	job.Status = enum.JobStatusQueued
	if err := q.jobs.Create(ctx, job); err != nil {
		return 0, false, err
	}
	q.pending = append(q.pending, job)
	q.byKey[job.IdempotencyKey] = job
	q.kick()
	return enum.JobStatusQueued, false, nil
}

// Withdraw removes a job that has not been dispatched yet, for transactions
// voided before dispatch. A job that is already InFlight or beyond cannot be
// withdrawn; cancelling a submitted document takes an explicit fiscal cancel.
func (q *Queue) Withdraw(ctx context.Context, idempotencyKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.byKey[idempotencyKey]
	if !ok {
		return apperror.NewNotFoundError("Print job")
	}
	if job.Status != enum.JobStatusQueued {
		return apperror.NewConflictError("Print job already dispatched; it can no longer be withdrawn")
	}
	job.Status = enum.JobStatusFailed
	job.LastError = "withdrawn before dispatch"
	if err := q.jobs.Update(ctx, job); err != nil {
		return err
	}
	q.remove(job.ID)
	return nil
}

// RetryNow requeues a dead-lettered job at the head of the queue and resumes
// processing. Operator action.
func (q *Queue) RetryNow(ctx context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	job := q.find(jobID)
	if job == nil {
		q.mu.Unlock()
		return apperror.NewNotFoundError("Print job")
	}
	if job.Status != enum.JobStatusDeadLettered {
		q.mu.Unlock()
		return apperror.NewConflictError("Print job is not dead-lettered")
	}
	job.Status = enum.JobStatusQueued
	job.LastError = ""
	err := q.jobs.Update(ctx, job)
	if err == nil {
		q.halted = false
	}
	q.mu.Unlock()
	if err != nil {
		return err
	}
	q.kick()
	return nil
}

// VoidJob fails a dead-lettered job permanently and resumes the queue.
// Operator action; the originating transaction observes the failure.
func (q *Queue) VoidJob(ctx context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	job := q.find(jobID)
	if job == nil {
		q.mu.Unlock()
		return apperror.NewNotFoundError("Print job")
	}
	if job.Status != enum.JobStatusDeadLettered {
		q.mu.Unlock()
		return apperror.NewConflictError("Print job is not dead-lettered")
	}
	job.Status = enum.JobStatusFailed
	job.LastError = "voided by operator"
	if err := q.jobs.Update(ctx, job); err != nil {
		q.mu.Unlock()
		return err
	}
	q.remove(job.ID)
	q.halted = false
	q.mu.Unlock()

	q.settle(job)
	q.kick()
	return nil
}

// Kick re-evaluates the queue, e.g. after an operator cleared a device fault.
func (q *Queue) Kick() { q.kick() }

// Halted reports whether a dead-lettered job is blocking the device's queue.
func (q *Queue) Halted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.halted
}

// Depth returns the number of jobs waiting or in flight.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// worker is the single consumer for the device. Jobs are taken strictly from
// the head; the head slot frees only when the job reaches a terminal status
// or dead-letters.
func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		}
		for {
			select {
			case <-q.stop:
				return
			default:
			}
			job := q.next()
			if job == nil {
				break
			}
			q.process(job)
		}
	}
}

// next claims the head job for dispatch, or nil when the queue is empty,
// halted on a dead-letter, or the device is faulted.
func (q *Queue) next() *entity.PrintJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.halted || len(q.pending) == 0 {
		return nil
	}
	if q.drv.State() == driver.StateFaulted {
		return nil
	}
	job := q.pending[0]
	if job.Status != enum.JobStatusQueued {
		return nil
	}
	job.Status = enum.JobStatusInFlight
	job.Attempts++
	if err := q.jobs.Update(context.Background(), job); err != nil {
		q.log.Error("failed to persist in-flight status", zap.Error(err))
		job.Status = enum.JobStatusQueued
		job.Attempts--
		return nil
	}
	return job
}

// process executes one job's document sequence against the driver.
func (q *Queue) process(job *entity.PrintJob) {
	ctx := context.Background()
	log := q.log.With(zap.String("job_id", job.ID.String()))

	doc, err := job.Document()
	if err != nil {
		log.Error("malformed job payload", zap.Error(err))
		q.fail(job, fmt.Sprintf("malformed payload: %v", err))
		return
	}

	// A re-dispatched job may have left a document open on the device;
	// cancel it so the sequence starts from a clean slate.
	if job.Attempts > 1 {
		if _, err := q.drv.Submit(ctx, fiscal.CancelDocument{}); err != nil {
			q.deadLetter(job, fmt.Sprintf("pre-retry cancel failed: %v", err))
			return
		}
	}

	var fiscalNumber uint32
	for _, cmd := range documentCommands(doc) {
		resp, err := q.drv.Submit(ctx, cmd)
		if err != nil {
			// The driver has already exhausted its retry budget or hit a
			// non-retryable fault; either way the job requires an operator.
			q.deadLetter(job, err.Error())
			return
		}
		if ack, ok := resp.(fiscal.Ack); ok {
			if _, isClose := cmd.(fiscal.CloseDocument); isClose {
				fiscalNumber = ack.FiscalNumber
			}
		}
	}

	n := int64(fiscalNumber)
	q.mu.Lock()
	job.FiscalNumber = &n
	job.Status = enum.JobStatusSucceeded
	job.LastError = ""
	q.remove(job.ID)
	q.mu.Unlock()
	if err := q.jobs.Update(ctx, job); err != nil {
		log.Error("failed to persist job success", zap.Error(err))
	}
	log.Info("fiscal document emitted", zap.Int64("fiscal_number", n))
	q.settle(job)
}

// deadLetter parks the job and halts the queue for this device until an
// operator intervenes. Dead-lettered jobs are never dropped silently.
func (q *Queue) deadLetter(job *entity.PrintJob, reason string) {
	q.mu.Lock()
	job.Status = enum.JobStatusDeadLettered
	job.LastError = reason
	q.halted = true
	q.mu.Unlock()
	if err := q.jobs.Update(context.Background(), job); err != nil {
		q.log.Error("failed to persist dead-letter", zap.Error(err))
	}
	q.log.Error("job dead-lettered",
		zap.String("job_id", job.ID.String()),
		zap.String("reason", reason))
	q.alerts.JobDeadLettered(job.ID.String(), "print-job-failure", reason)
}

// fail marks a job Failed without operator involvement (malformed payload).
func (q *Queue) fail(job *entity.PrintJob, reason string) {
	q.mu.Lock()
	job.Status = enum.JobStatusFailed
	job.LastError = reason
	q.remove(job.ID)
	q.mu.Unlock()
	if err := q.jobs.Update(context.Background(), job); err != nil {
		q.log.Error("failed to persist job failure", zap.Error(err))
	}
	q.settle(job)
}

func (q *Queue) settle(job *entity.PrintJob) {
	if q.observer != nil {
		q.observer.JobSettled(job)
	}
}

// find locates a pending job by id. Caller holds q.mu.
func (q *Queue) find(jobID uuid.UUID) *entity.PrintJob {
	for _, job := range q.pending {
		if job.ID == jobID {
			return job
		}
	}
	return nil
}

// remove deletes a job from the pending list. Caller holds q.mu.
func (q *Queue) remove(jobID uuid.UUID) {
	for i, job := range q.pending {
		if job.ID == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// documentCommands expands a document payload into the device command
// sequence: open, lines, payments, close.
func documentCommands(doc *entity.DocumentPayload) []fiscal.Command {
	cmds := []fiscal.Command{fiscal.OpenDocument{
		DocType:  deviceDocType(doc.DocType),
		Operator: doc.Operator,
		Till:     doc.Till,
	}}
	for _, line := range doc.Lines {
		cmds = append(cmds, fiscal.AddLineItem{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Discount:  line.Discount,
		})
	}
	for _, payment := range doc.Payments {
		cmds = append(cmds, fiscal.AddPayment{
			Method: deviceMethod(payment.Method),
			Amount: payment.Amount,
		})
	}
	return append(cmds, fiscal.CloseDocument{})
}

func deviceDocType(t enum.DocumentType) byte {
	switch t {
	case enum.DocumentTypeRefund:
		return fiscal.DocRefund
	default:
		return fiscal.DocReceipt
	}
}

func deviceMethod(m enum.PaymentMethod) byte {
	switch m {
	case enum.PaymentMethodCard:
		return fiscal.PayCard
	case enum.PaymentMethodMobile:
		return fiscal.PayMobile
	default:
		return fiscal.PayCash
	}
}
