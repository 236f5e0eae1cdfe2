package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	domainRepo "github.com/tillworks/fiscal-pos-api/internal/domain/repository"
	"gorm.io/gorm"
)

type saleRepository struct {
	db *gorm.DB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *gorm.DB) domainRepo.SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) Create(ctx context.Context, sale *entity.SaleTransaction) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *saleRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.SaleTransaction, error) {
	var sale entity.SaleTransaction
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&sale, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &sale, err
}

func (r *saleRepository) Update(ctx context.Context, sale *entity.SaleTransaction) error {
	return r.db.WithContext(ctx).Save(sale).Error
}

func (r *saleRepository) AddLine(ctx context.Context, line *entity.SaleLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *saleRepository) AddPayment(ctx context.Context, payment *entity.SalePayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}
