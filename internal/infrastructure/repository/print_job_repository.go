package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	"github.com/tillworks/fiscal-pos-api/internal/domain/enum"
	domainRepo "github.com/tillworks/fiscal-pos-api/internal/domain/repository"
	"gorm.io/gorm"
)

type printJobRepository struct {
	db *gorm.DB
}

// NewPrintJobRepository creates a new print job repository
func NewPrintJobRepository(db *gorm.DB) domainRepo.PrintJobRepository {
	return &printJobRepository{db: db}
}

func (r *printJobRepository) Create(ctx context.Context, job *entity.PrintJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *printJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.PrintJob, error) {
	var job entity.PrintJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &job, err
}

func (r *printJobRepository) GetByKey(ctx context.Context, key string) (*entity.PrintJob, error) {
	var job entity.PrintJob
	err := r.db.WithContext(ctx).First(&job, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &job, err
}

func (r *printJobRepository) Update(ctx context.Context, job *entity.PrintJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *printJobRepository) ListPendingByDevice(ctx context.Context, deviceID string) ([]entity.PrintJob, error) {
	var jobs []entity.PrintJob
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND status IN ?", deviceID, []enum.JobStatus{
			enum.JobStatusQueued,
			enum.JobStatusInFlight,
			enum.JobStatusDeadLettered,
		}).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}
