package repository

import (
	"context"
	"errors"

	"signalengine/src/database"
	"signalengine/src/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository() *UserRepository {
	return &UserRepository{db: database.MainDB}
}

func (r *UserRepository) WithDB(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByUsername returns (nil, nil) when no user matches.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User

	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&user).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

// FindEligibleForDispatch lists the active users holding an active credential
// for the given exchange. This is the fan-out set for one signal.
func (r *UserRepository) FindEligibleForDispatch(ctx context.Context, exchangeID uint) ([]model.User, error) {
	var users []model.User

	err := r.db.WithContext(ctx).
		Joins("JOIN user_api_keys ON user_api_keys.user_id = users.id").
		Where("users.active = ? AND user_api_keys.exchange_id = ? AND user_api_keys.active = ?",
			true, exchangeID, true).
		Order("users.id ASC").
		Find(&users).Error

	if err != nil {
		return nil, err
	}

	return users, nil
}
