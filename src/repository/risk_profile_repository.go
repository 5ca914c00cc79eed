package repository

import (
	"context"
	"errors"

	"signalengine/src/database"
	"signalengine/src/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RiskProfileRepository struct {
	db *gorm.DB
}

func NewRiskProfileRepository() *RiskProfileRepository {
	return &RiskProfileRepository{db: database.MainDB}
}

func (r *RiskProfileRepository) WithDB(db *gorm.DB) *RiskProfileRepository {
	return &RiskProfileRepository{db: db}
}

// GetByUserID returns (nil, nil) when the user has no profile yet; callers
// fall back to model.DefaultRiskProfile.
func (r *RiskProfileRepository) GetByUserID(ctx context.Context, userID uint) (*model.RiskProfile, error) {
	var profile model.RiskProfile

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &profile, nil
}

// Upsert creates or replaces the user's risk settings keyed on user_id.
func (r *RiskProfileRepository) Upsert(ctx context.Context, profile *model.RiskProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"leverage",
				"take_profit_multiplier",
				"stop_loss_multiplier",
				"balance_percent",
				"max_open_positions",
				"disabled",
				"updated_at",
			}),
		}).
		Create(profile).Error
}

// Disable soft-disables the profile; profiles are never deleted.
func (r *RiskProfileRepository) Disable(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).
		Model(&model.RiskProfile{}).
		Where("user_id = ?", userID).
		Update("disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
