package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	"github.com/tillworks/fiscal-pos-api/internal/domain/repository"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/driver"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/queue"
	"github.com/tillworks/fiscal-pos-api/pkg/apperror"
)

// DeviceService is the operator surface for the fiscal device: status,
// fault acknowledgment, and dead-letter handling.
type DeviceService struct {
	drv  *driver.Driver
	q    *queue.Queue
	jobs repository.PrintJobRepository
	log  *zap.Logger
}

// NewDeviceService creates a new device service.
func NewDeviceService(drv *driver.Driver, q *queue.Queue, jobs repository.PrintJobRepository, log *zap.Logger) *DeviceService {
	return &DeviceService{drv: drv, q: q, jobs: jobs, log: log}
}

// DeviceStatus describes the device session and its queue.
type DeviceStatus struct {
	DeviceID    string `json:"device_id"`
	State       string `json:"state"`
	QueueDepth  int    `json:"queue_depth"`
	QueueHalted bool   `json:"queue_halted"`
}

// Status returns the device and queue state.
func (s *DeviceService) Status() *DeviceStatus {
	return &DeviceStatus{
		DeviceID:    s.drv.DeviceID(),
		State:       s.drv.State().String(),
		QueueDepth:  s.q.Depth(),
		QueueHalted: s.q.Halted(),
	}
}

// ClearFault acknowledges a fiscal fault and resumes queue evaluation.
func (s *DeviceService) ClearFault() *DeviceStatus {
	s.drv.ClearFault()
	s.q.Kick()
	s.log.Info("device fault acknowledged", zap.String("device_id", s.drv.DeviceID()))
	return s.Status()
}

// GetJob retrieves a print job by id.
func (s *DeviceService) GetJob(ctx context.Context, id uuid.UUID) (*entity.PrintJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperror.NewNotFoundError("Print job")
	}
	return job, nil
}

// RetryJob requeues a dead-lettered job. Operator action.
func (s *DeviceService) RetryJob(ctx context.Context, id uuid.UUID) (*entity.PrintJob, error) {
	if err := s.q.RetryNow(ctx, id); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// VoidJob permanently fails a dead-lettered job so the queue can resume; the
// originating sale observes the failure. Operator action.
func (s *DeviceService) VoidJob(ctx context.Context, id uuid.UUID) (*entity.PrintJob, error) {
	if err := s.q.VoidJob(ctx, id); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}
