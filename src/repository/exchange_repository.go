package repository

import (
	"context"
	"errors"

	"signalengine/src/database"
	"signalengine/src/model"

	"gorm.io/gorm"
)

type ExchangeRepository struct {
	db *gorm.DB
}

func NewExchangeRepository() *ExchangeRepository {
	return &ExchangeRepository{db: database.MainDB}
}

func (r *ExchangeRepository) WithDB(db *gorm.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

func (r *ExchangeRepository) Create(ctx context.Context, exchange *model.Exchange) error {
	return r.db.WithContext(ctx).Create(exchange).Error
}

// FindActive lists the exchanges signals fan out to.
func (r *ExchangeRepository) FindActive(ctx context.Context) ([]model.Exchange, error) {
	var exchanges []model.Exchange

	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&exchanges).Error

	if err != nil {
		return nil, err
	}

	return exchanges, nil
}

// GetByName returns (nil, nil) when no exchange matches.
func (r *ExchangeRepository) GetByName(ctx context.Context, name string) (*model.Exchange, error) {
	var exchange model.Exchange

	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&exchange).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &exchange, nil
}
