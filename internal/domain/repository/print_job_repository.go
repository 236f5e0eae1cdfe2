package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
)

// PrintJobRepository defines the interface for print job persistence. Writes
// must be atomic per entity so a crash can never leave a job InFlight with no
// record of it.
type PrintJobRepository interface {
	// Create stores a new print job
	Create(ctx context.Context, job *entity.PrintJob) error
	// GetByID retrieves a job, or nil if absent
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PrintJob, error)
	// GetByKey retrieves a job by its idempotency key, or nil if absent
	GetByKey(ctx context.Context, key string) (*entity.PrintJob, error)
	// Update persists the job's current state
	Update(ctx context.Context, job *entity.PrintJob) error
	// ListPendingByDevice returns a device's non-terminal jobs (Queued,
	// InFlight, DeadLettered) in creation order, used to rebuild the queue
	// after a restart
	ListPendingByDevice(ctx context.Context, deviceID string) ([]entity.PrintJob, error)
}
