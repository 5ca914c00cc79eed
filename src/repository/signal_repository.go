package repository

import (
	"context"
	"errors"

	"signalengine/src/database"
	"signalengine/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignalRepository persists the trading-signal audit log. The idempotency key
// unique index is what makes webhook redelivery safe.
type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or custom sessions/transactions.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// CreateIdempotent inserts the signal unless another row already carries the
// same idempotency key. Returns created=false on a duplicate delivery, in
// which case signal is reloaded with the original row.
func (r *SignalRepository) CreateIdempotent(ctx context.Context, signal *model.TradingSignal) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(signal)

	if res.Error != nil {
		return false, res.Error
	}

	if res.RowsAffected > 0 {
		return true, nil
	}

	existing, err := r.FindByIdempotencyKey(ctx, signal.IdempotencyKey)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, errors.New("duplicate signal insert but original row not found")
	}

	*signal = *existing
	return false, nil
}

// FindByIdempotencyKey returns (nil, nil) when no row matches.
func (r *SignalRepository) FindByIdempotencyKey(ctx context.Context, key string) (*model.TradingSignal, error) {
	var signal model.TradingSignal

	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&signal).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithError(err).WithField("key", key).Error("failed to fetch trading signal by idempotency key")
		return nil, err
	}

	return &signal, nil
}

// FindByID returns (nil, nil) when no row matches.
func (r *SignalRepository) FindByID(ctx context.Context, id uint) (*model.TradingSignal, error) {
	var signal model.TradingSignal

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&signal).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &signal, nil
}

// FindLatestBySymbol returns the newest signals for a symbol, newest first.
func (r *SignalRepository) FindLatestBySymbol(ctx context.Context, symbol string, limit int) ([]model.TradingSignal, error) {
	if limit <= 0 {
		limit = 10
	}

	var signals []model.TradingSignal
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("id DESC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		return nil, err
	}

	return signals, nil
}
