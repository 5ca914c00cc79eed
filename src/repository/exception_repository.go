package repository

import (
	"context"

	"signalengine/src/database"
	"signalengine/src/model"

	"gorm.io/gorm"
)

type ExceptionRepository struct {
	db *gorm.DB
}

func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{db: database.MainDB}
}

func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

func (r *ExceptionRepository) Create(ctx context.Context, exception *model.Exception) error {
	return r.db.WithContext(ctx).Create(exception).Error
}
