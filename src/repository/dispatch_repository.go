package repository

import (
	"context"

	"signalengine/src/database"
	"signalengine/src/model"

	"gorm.io/gorm"
)

type DispatchRepository struct {
	db *gorm.DB
}

func NewDispatchRepository() *DispatchRepository {
	return &DispatchRepository{db: database.MainDB}
}

func (r *DispatchRepository) WithDB(db *gorm.DB) *DispatchRepository {
	return &DispatchRepository{db: db}
}

func (r *DispatchRepository) Create(ctx context.Context, result *model.DispatchResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

// FindBySignalID lists per-user outcomes for one signal, oldest first.
func (r *DispatchRepository) FindBySignalID(ctx context.Context, signalID uint) ([]model.DispatchResult, error) {
	var results []model.DispatchResult

	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("id ASC").
		Find(&results).Error

	if err != nil {
		return nil, err
	}

	return results, nil
}
