package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	domainRepo "github.com/tillworks/fiscal-pos-api/internal/domain/repository"
	"gorm.io/gorm"
)

type cashSessionRepository struct {
	db *gorm.DB
}

// NewCashSessionRepository creates a new cash session repository
func NewCashSessionRepository(db *gorm.DB) domainRepo.CashSessionRepository {
	return &cashSessionRepository{db: db}
}

func (r *cashSessionRepository) Create(ctx context.Context, session *entity.CashSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *cashSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CashSession, error) {
	var session entity.CashSession
	err := r.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &session, err
}

func (r *cashSessionRepository) Update(ctx context.Context, session *entity.CashSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *cashSessionRepository) AddEntry(ctx context.Context, entry *entity.SessionEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *cashSessionRepository) ListOpen(ctx context.Context) ([]entity.CashSession, error) {
	var sessions []entity.CashSession
	err := r.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("closed_at IS NULL").
		Order("opened_at ASC").
		Find(&sessions).Error
	return sessions, err
}
