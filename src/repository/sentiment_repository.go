package repository

import (
	"context"
	"errors"

	"signalengine/src/database"
	"signalengine/src/model"

	"gorm.io/gorm"
)

type SentimentRepository struct {
	db *gorm.DB
}

func NewSentimentRepository() *SentimentRepository {
	return &SentimentRepository{db: database.MainDB}
}

func (r *SentimentRepository) WithDB(db *gorm.DB) *SentimentRepository {
	return &SentimentRepository{db: db}
}

// Create appends one gauge snapshot to the history.
func (r *SentimentRepository) Create(ctx context.Context, snapshot *model.MarketSentiment) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

// Latest returns the newest snapshot, or (nil, nil) when the collector has
// never run.
func (r *SentimentRepository) Latest(ctx context.Context) (*model.MarketSentiment, error) {
	var snapshot model.MarketSentiment

	err := r.db.WithContext(ctx).
		Order("collected_at DESC").
		First(&snapshot).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &snapshot, nil
}
