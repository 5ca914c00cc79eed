package repository

import (
	"context"
	"errors"
	"time"

	"signalengine/src/database"
	"signalengine/src/model"

	"gorm.io/gorm"
)

type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create writes the position inside its own transaction so a crash mid-write
// cannot leave partial state behind.
func (r *PositionRepository) Create(ctx context.Context, position *model.Position) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(position).Error
	})
}

// CountOpen returns the number of positions counting against the user's
// max_open_positions limit. Pending rows count too: the order is already on
// its way to the exchange.
func (r *PositionRepository) CountOpen(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("user_id = ? AND status IN ?", userID, []string{model.PositionStatusPending, model.PositionStatusOpen}).
		Count(&count).Error
	return count, err
}

// FindOpenByUserAndSymbol returns open and pending positions for one
// user+symbol pair, used by close dispatches.
func (r *PositionRepository) FindOpenByUserAndSymbol(ctx context.Context, userID uint, symbol string) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND status IN ?",
			userID, symbol, []string{model.PositionStatusPending, model.PositionStatusOpen}).
		Find(&positions).Error
	return positions, err
}

// FindByExchangeOrderID returns (nil, nil) when no row matches.
func (r *PositionRepository) FindByExchangeOrderID(ctx context.Context, exchangeOrderID string) (*model.Position, error) {
	var position model.Position
	err := r.db.WithContext(ctx).
		Where("exchange_order_id = ?", exchangeOrderID).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// FindPendingOlderThan lists pending rows whose order was submitted before
// the cutoff, candidates for reconciliation.
func (r *PositionRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PositionStatusPending, cutoff).
		Order("id ASC").
		Find(&positions).Error
	return positions, err
}

// SetExchangeOrderID records the exchange-assigned order id on a pending row.
func (r *PositionRepository) SetExchangeOrderID(ctx context.Context, positionID uint, exchangeOrderID string) error {
	return r.updateStatus(ctx, positionID, map[string]interface{}{
		"exchange_order_id": exchangeOrderID,
	})
}

// MarkOpen transitions pending -> open once the fill is confirmed.
func (r *PositionRepository) MarkOpen(ctx context.Context, positionID uint, filledAt time.Time) error {
	return r.updateStatus(ctx, positionID, map[string]interface{}{
		"status":    model.PositionStatusOpen,
		"opened_at": filledAt,
	})
}

// MarkClosed transitions a position to closed.
func (r *PositionRepository) MarkClosed(ctx context.Context, positionID uint, closedAt time.Time, reason string) error {
	return r.updateStatus(ctx, positionID, map[string]interface{}{
		"status":        model.PositionStatusClosed,
		"closed_at":     closedAt,
		"status_reason": reason,
	})
}

// MarkError flags a position that needs operator attention.
func (r *PositionRepository) MarkError(ctx context.Context, positionID uint, reason string) error {
	return r.updateStatus(ctx, positionID, map[string]interface{}{
		"status":        model.PositionStatusError,
		"status_reason": reason,
	})
}

// Resolve closes out an error row after manual reconciliation. Only error
// rows are eligible; anything else is left untouched and reported.
func (r *PositionRepository) Resolve(ctx context.Context, positionID uint, note string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", positionID, model.PositionStatusError).
		Updates(map[string]interface{}{
			"status":        model.PositionStatusClosed,
			"closed_at":     time.Now(),
			"status_reason": note,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *PositionRepository) updateStatus(ctx context.Context, positionID uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", positionID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
