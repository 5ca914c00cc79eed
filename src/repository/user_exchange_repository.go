package repository

import (
	"context"
	"errors"
	"time"

	"signalengine/src/database"
	"signalengine/src/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserExchangeRepository struct {
	db *gorm.DB
}

func NewUserExchangeRepository() *UserExchangeRepository {
	return &UserExchangeRepository{db: database.MainDB}
}

func (r *UserExchangeRepository) WithDB(db *gorm.DB) *UserExchangeRepository {
	return &UserExchangeRepository{db: db}
}

// GetActiveByUserAndExchange returns (nil, nil) when the user has no active
// credential for the exchange.
func (r *UserExchangeRepository) GetActiveByUserAndExchange(
	ctx context.Context,
	userID uint,
	exchangeID uint,
) (*model.UserExchange, error) {

	var ue model.UserExchange
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND exchange_id = ? AND active = ?", userID, exchangeID, true).
		First(&ue).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &ue, nil
}

// FindActiveByExchange lists every active credential stored for one
// exchange, used to start the fill streams.
func (r *UserExchangeRepository) FindActiveByExchange(ctx context.Context, exchangeID uint) ([]model.UserExchange, error) {
	var creds []model.UserExchange

	err := r.db.WithContext(ctx).
		Where("exchange_id = ? AND active = ?", exchangeID, true).
		Order("user_id ASC").
		Find(&creds).Error

	if err != nil {
		return nil, err
	}

	return creds, nil
}

// Upsert creates the credential or replaces the encrypted key material if the
// (user_id, exchange_id) combination already exists.
func (r *UserExchangeRepository) Upsert(ctx context.Context, ue *model.UserExchange) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "exchange_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"api_key",
				"api_secret",
				"environment",
				"active",
				"updated_at",
			}),
		}).
		Create(ue).Error
}

// UpdateValidation records the latest credential check result.
func (r *UserExchangeRepository) UpdateValidation(
	ctx context.Context,
	id uint,
	result string,
	checkedAt time.Time,
) error {
	res := r.db.WithContext(ctx).
		Model(&model.UserExchange{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_validation":   result,
			"last_validated_at": checkedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetActive toggles the credential without touching the key material.
func (r *UserExchangeRepository) SetActive(ctx context.Context, userID, exchangeID uint, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&model.UserExchange{}).
		Where("user_id = ? AND exchange_id = ?", userID, exchangeID).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
