package models

import (
	"context"
	"errors"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashMovement is append-only. The running balance of (venue, register) at
// time T is the sum of all deltas with created_at <= T; corrections are new
// offsetting movements, never edits.
type CashMovement struct {
	ID        int             `gorm:"primary_key" json:"id"`
	VenueId   int             `gorm:"not null;index:idx_movement_key,priority:1" json:"venue_id"`
	Register  Register        `gorm:"size:20;not null;index:idx_movement_key,priority:2" json:"register"`
	ShiftId   *int            `gorm:"index" json:"shift_id"`
	Delta     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"delta"`
	Reason    string          `gorm:"size:500;not null" json:"reason"`
	ActorId   string          `gorm:"size:64;not null" json:"actor_id"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index:idx_movement_key,priority:3" json:"created_at"`
}

type NewCashMovement struct {
	VenueId  int             `json:"venue_id" binding:"required"`
	Register Register        `json:"register" binding:"required"`
	ShiftId  *int            `json:"shift_id"`
	Delta    decimal.Decimal `json:"delta"`
	Reason   string          `json:"reason" binding:"required"`
}

// ApplyCashMovement appends a movement and updates the cached balance in one
// transaction. The balance row is locked per (venue, register), so movements
// on the same key serialize while other keys proceed independently.
func ApplyCashMovement(ctx context.Context, input *NewCashMovement) (*CashMovement, error) {
	actorId, ok := utils.GetActorIdFromContext(ctx)
	if !ok || actorId == "" {
		return nil, errors.New("actor id is required")
	}
	if !input.Register.Valid() {
		return nil, errors.New("invalid register")
	}
	if input.Delta.IsZero() {
		return nil, errors.New("delta must be non-zero")
	}
	if input.Reason == "" {
		return nil, errors.New("reason is required")
	}
	if err := utils.ValidateResourceId[Venue](ctx, input.VenueId); err != nil {
		return nil, errors.New("venue not found")
	}
	if input.Register == RegisterBox && !utils.ActorHasCapability(ctx, utils.CapabilityCashHandling) {
		return nil, ErrCapabilityRequired
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, persistence(tx.Error)
	}

	movement := CashMovement{
		VenueId:  input.VenueId,
		Register: input.Register,
		ShiftId:  input.ShiftId,
		Delta:    input.Delta,
		Reason:   input.Reason,
		ActorId:  actorId,
	}

	if err := applyMovementTx(ctx, tx, &movement); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, persistence(err)
	}
	return &movement, nil
}

// applyMovementTx does the paired log insert + balance update inside the
// caller's transaction.
func applyMovementTx(ctx context.Context, tx *gorm.DB, movement *CashMovement) error {
	balance, err := lockedBalanceRow(ctx, tx, movement.VenueId, movement.Register)
	if err != nil {
		return err
	}

	if err := tx.WithContext(ctx).Create(movement).Error; err != nil {
		return persistence(err)
	}

	err = tx.WithContext(ctx).Model(&CashBalance{}).
		Where("id = ?", balance.ID).
		Updates(map[string]interface{}{
			"Balance":   balance.Balance.Add(movement.Delta),
			"UpdatedAt": time.Now().UTC(),
		}).Error
	if err != nil {
		return persistence(err)
	}
	return nil
}

// CashBalanceAsOf returns the live cached balance when asOf is nil; with a
// timestamp it recomputes from the movement log so a closing snapshot is not
// disturbed by adjacent activity on the cache.
func CashBalanceAsOf(ctx context.Context, venueId int, register Register, asOf *time.Time) (decimal.Decimal, error) {
	db := config.GetDB()
	return cashBalanceAsOfTx(ctx, db, venueId, register, asOf)
}

func cashBalanceAsOfTx(ctx context.Context, tx *gorm.DB, venueId int, register Register, asOf *time.Time) (decimal.Decimal, error) {
	if !register.Valid() {
		return decimal.Zero, errors.New("invalid register")
	}
	if asOf == nil {
		var balance CashBalance
		err := tx.WithContext(ctx).Where("venue_id = ? AND register = ?", venueId, register).First(&balance).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return decimal.Zero, nil
			}
			return decimal.Zero, persistence(err)
		}
		return balance.Balance, nil
	}

	return sumMovements(ctx, tx, venueId, register, asOf)
}

func sumMovements(ctx context.Context, tx *gorm.DB, venueId int, register Register, asOf *time.Time) (decimal.Decimal, error) {
	q := tx.WithContext(ctx).Model(&CashMovement{}).
		Where("venue_id = ? AND register = ?", venueId, register)
	if asOf != nil {
		q = q.Where("created_at <= ?", *asOf)
	}
	// Sum in SQL as text to keep decimal exactness end to end.
	var total *string
	if err := q.Select("CAST(SUM(delta) AS CHAR)").Scan(&total).Error; err != nil {
		return decimal.Zero, persistence(err)
	}
	if total == nil || *total == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(*total)
	if err != nil {
		return decimal.Zero, persistence(err)
	}
	return d, nil
}

// ListCashMovements returns the movement log for one (venue, register),
// newest first.
func ListCashMovements(ctx context.Context, venueId int, register Register, limit int) ([]*CashMovement, error) {
	if !register.Valid() {
		return nil, errors.New("invalid register")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	db := config.GetDB()
	var movements []*CashMovement
	err := db.WithContext(ctx).
		Where("venue_id = ? AND register = ?", venueId, register).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, persistence(err)
	}
	return movements, nil
}
