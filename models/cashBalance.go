package models

import (
	"context"
	"errors"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashBalance is a derived cache over the movement log, one row per
// (venue, register). It is recomputable at any time and never the source of
// truth; RebuildCashBalance restores the invariant balance == SUM(delta).
type CashBalance struct {
	ID        int             `gorm:"primary_key" json:"id"`
	VenueId   int             `gorm:"not null;index:uniq_balance_key,unique" json:"venue_id"`
	Register  Register        `gorm:"size:20;not null;index:uniq_balance_key,unique" json:"register"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// lockedBalanceRow fetches the cache row FOR UPDATE, creating a zero row on
// first use of a (venue, register) key.
func lockedBalanceRow(ctx context.Context, tx *gorm.DB, venueId int, register Register) (*CashBalance, error) {
	var balance CashBalance
	err := forUpdate(tx.WithContext(ctx)).
		Where("venue_id = ? AND register = ?", venueId, register).
		First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, persistence(err)
	}

	balance = CashBalance{
		VenueId:  venueId,
		Register: register,
		Balance:  decimal.Zero,
	}
	if err := tx.WithContext(ctx).Create(&balance).Error; err != nil {
		if !isDuplicateKeyErr(err) {
			return nil, persistence(err)
		}
		// Lost the race to another transaction; lock the winner's row.
		err = forUpdate(tx.WithContext(ctx)).
			Where("venue_id = ? AND register = ?", venueId, register).
			First(&balance).Error
		if err != nil {
			return nil, persistence(err)
		}
	}
	return &balance, nil
}

// RebuildCashBalance recomputes one cache row from the movement log.
func RebuildCashBalance(ctx context.Context, venueId int, register Register) (*CashBalance, error) {
	if !register.Valid() {
		return nil, errors.New("invalid register")
	}

	db := config.GetDB()
	var rebuilt CashBalance
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := lockedBalanceRow(ctx, tx, venueId, register)
		if err != nil {
			return err
		}
		total, err := sumMovements(ctx, tx, venueId, register, nil)
		if err != nil {
			return err
		}
		err = tx.WithContext(ctx).Model(&CashBalance{}).
			Where("id = ?", balance.ID).
			Updates(map[string]interface{}{
				"Balance":   total,
				"UpdatedAt": time.Now().UTC(),
			}).Error
		if err != nil {
			return persistence(err)
		}
		rebuilt = *balance
		rebuilt.Balance = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rebuilt, nil
}

type VenueBalances struct {
	VenueId  int             `json:"venue_id"`
	Official decimal.Decimal `json:"official"`
	Box      decimal.Decimal `json:"box"`
}

// GetVenueBalances reads the live cached balances of both registers.
func GetVenueBalances(ctx context.Context, venueId int) (*VenueBalances, error) {
	official, err := CashBalanceAsOf(ctx, venueId, RegisterOfficial, nil)
	if err != nil {
		return nil, err
	}
	box, err := CashBalanceAsOf(ctx, venueId, RegisterBox, nil)
	if err != nil {
		return nil, err
	}
	return &VenueBalances{VenueId: venueId, Official: official, Box: box}, nil
}
