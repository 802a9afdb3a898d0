package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shift owns the open -> closed lifecycle. A closed shift is immutable;
// corrections happen through compensating cash movements, never by reopening
// or editing the snapshot.
//
// OpenKey implements the one-open-shift-per-(venue, shift type) invariant:
// it is "venueId:shiftType" while the shift is open and NULL afterwards, with
// a unique index, so a second concurrent open fails on insert instead of
// racing.
type Shift struct {
	ID          int         `gorm:"primary_key" json:"id"`
	VenueId     int         `gorm:"not null;index:idx_shift_venue,priority:1" json:"venue_id"`
	ShiftType   ShiftType   `gorm:"size:20;not null" json:"shift_type"`
	ShiftDate   time.Time   `gorm:"type:date;not null;index:idx_shift_venue,priority:2" json:"shift_date"`
	ActorId     string      `gorm:"size:64;not null" json:"actor_id"`
	Status      ShiftStatus `gorm:"size:20;not null;index" json:"status"`
	OpenKey     *string     `gorm:"size:64;uniqueIndex" json:"-"`
	OpenedAt    time.Time   `gorm:"not null" json:"opened_at"`
	ClosedAt    *time.Time  `json:"closed_at"`
	ConfirmedBy string      `gorm:"size:64" json:"confirmed_by"`

	CashRevenue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cash_revenue"`
	CardRevenue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"card_revenue"`
	QrRevenue      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qr_revenue"`
	AltCardRevenue decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"alt_card_revenue"`

	OpeningOfficialBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_official_balance"`
	OpeningBoxBalance      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_box_balance"`
	ClosingOfficialBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"closing_official_balance"`
	ClosingBoxBalance      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"closing_box_balance"`
	OfficialDelta          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"official_delta"`
	BoxDelta               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"box_delta"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewShift struct {
	VenueId   int       `json:"venue_id" binding:"required"`
	ShiftType ShiftType `json:"shift_type" binding:"required"`
	ShiftDate string    `json:"shift_date" binding:"required"`
}

type DeclaredRevenue struct {
	CashRevenue    decimal.Decimal `json:"cash_revenue"`
	CardRevenue    decimal.Decimal `json:"card_revenue"`
	QrRevenue      decimal.Decimal `json:"qr_revenue"`
	AltCardRevenue decimal.Decimal `json:"alt_card_revenue"`
}

// ClosingSnapshot is the reconciliation result recorded at close time and the
// payload later exported to accounting.
type ClosingSnapshot struct {
	ShiftId        int             `json:"shift_id"`
	VenueId        int             `json:"venue_id"`
	ShiftType      ShiftType       `json:"shift_type"`
	ShiftDate      time.Time       `json:"shift_date"`
	ClosedAt       time.Time       `json:"closed_at"`
	ConfirmedBy    string          `json:"confirmed_by"`
	CashRevenue    decimal.Decimal `json:"cash_revenue"`
	CardRevenue    decimal.Decimal `json:"card_revenue"`
	QrRevenue      decimal.Decimal `json:"qr_revenue"`
	AltCardRevenue decimal.Decimal `json:"alt_card_revenue"`

	OpeningOfficialBalance decimal.Decimal `json:"opening_official_balance"`
	OpeningBoxBalance      decimal.Decimal `json:"opening_box_balance"`
	ClosingOfficialBalance decimal.Decimal `json:"closing_official_balance"`
	ClosingBoxBalance      decimal.Decimal `json:"closing_box_balance"`
	OfficialDelta          decimal.Decimal `json:"official_delta"`
	BoxDelta               decimal.Decimal `json:"box_delta"`
}

func openKeyFor(venueId int, shiftType ShiftType) string {
	return fmt.Sprintf("%d:%s", venueId, shiftType)
}

func parseShiftDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("shift_date must be YYYY-MM-DD")
	}
	return d, nil
}

// OpenShift creates the shift, snapshots opening balances for both registers
// and seeds the checklist from the applicable catalog items, all in one
// transaction.
func OpenShift(ctx context.Context, input *NewShift) (*Shift, error) {
	actorId, ok := utils.GetActorIdFromContext(ctx)
	if !ok || actorId == "" {
		return nil, errors.New("actor id is required")
	}
	if !input.ShiftType.Valid() {
		return nil, errors.New("invalid shift type")
	}
	shiftDate, err := parseShiftDate(input.ShiftDate)
	if err != nil {
		return nil, err
	}
	venue, err := utils.FetchSingleModel[Venue](ctx, input.VenueId)
	if err != nil {
		return nil, errors.New("venue not found")
	}
	if !venue.Active {
		return nil, errors.New("venue is not active")
	}

	items, err := ApplicableChecklistItems(ctx, input.VenueId, input.ShiftType)
	if err != nil {
		return nil, err
	}

	openKey := openKeyFor(input.VenueId, input.ShiftType)
	shift := Shift{
		VenueId:   input.VenueId,
		ShiftType: input.ShiftType,
		ShiftDate: shiftDate,
		ActorId:   actorId,
		Status:    ShiftStatusOpen,
		OpenKey:   &openKey,
		OpenedAt:  time.Now().UTC(),
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, persistence(tx.Error)
	}

	opening := map[Register]decimal.Decimal{}
	for _, register := range AllRegisters {
		balance, berr := cashBalanceAsOfTx(ctx, tx, input.VenueId, register, nil)
		if berr != nil {
			tx.Rollback()
			return nil, berr
		}
		opening[register] = balance
	}
	shift.OpeningOfficialBalance = opening[RegisterOfficial]
	shift.OpeningBoxBalance = opening[RegisterBox]

	if err := tx.Create(&shift).Error; err != nil {
		tx.Rollback()
		if isDuplicateKeyErr(err) {
			return nil, ErrShiftAlreadyOpen
		}
		return nil, persistence(err)
	}

	if err := InitializeChecklist(ctx, tx, shift.ID, items); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistence(err)
	}
	return &shift, nil
}

func fetchShift(ctx context.Context, id int) (*Shift, error) {
	db := config.GetDB()
	return fetchShiftTx(ctx, db, id, false)
}

func fetchShiftTx(ctx context.Context, tx *gorm.DB, id int, lock bool) (*Shift, error) {
	q := tx.WithContext(ctx)
	if lock {
		q = forUpdate(q)
	}
	var shift Shift
	if err := q.First(&shift, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrShiftNotFound
		}
		return nil, persistence(err)
	}
	return &shift, nil
}

// CloseShift gates on the required checklist, snapshots closing balances,
// computes per-register deltas against the opening snapshot and registers
// the exactly-once accounting export, all in one transaction. A failed close
// leaves the shift open with no partial state.
func CloseShift(ctx context.Context, shiftId int, revenue *DeclaredRevenue) (*ClosingSnapshot, error) {
	actorId, ok := utils.GetActorIdFromContext(ctx)
	if !ok || actorId == "" {
		return nil, errors.New("actor id is required")
	}
	for _, amount := range []decimal.Decimal{revenue.CashRevenue, revenue.CardRevenue, revenue.QrRevenue, revenue.AltCardRevenue} {
		if amount.IsNegative() {
			return nil, errors.New("declared revenue must not be negative")
		}
	}

	db := config.GetDB()
	var snapshot *ClosingSnapshot
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shift, err := fetchShiftTx(ctx, tx, shiftId, true)
		if err != nil {
			return err
		}
		if shift.Status == ShiftStatusClosed {
			return ErrShiftAlreadyClosed
		}

		completion, err := checklistCompletion(ctx, tx, shift.ID)
		if err != nil {
			return err
		}
		if !completion.AllRequiredChecked {
			return &ChecklistIncompleteError{
				ShiftId:            shift.ID,
				OutstandingItemIds: completion.OutstandingRequired,
			}
		}

		now := time.Now().UTC()
		closing := map[Register]decimal.Decimal{}
		for _, register := range AllRegisters {
			balance, berr := cashBalanceAsOfTx(ctx, tx, shift.VenueId, register, &now)
			if berr != nil {
				return berr
			}
			closing[register] = balance
		}

		shift.Status = ShiftStatusClosed
		shift.ClosedAt = &now
		shift.ConfirmedBy = actorId
		shift.OpenKey = nil
		shift.CashRevenue = revenue.CashRevenue
		shift.CardRevenue = revenue.CardRevenue
		shift.QrRevenue = revenue.QrRevenue
		shift.AltCardRevenue = revenue.AltCardRevenue
		shift.ClosingOfficialBalance = closing[RegisterOfficial]
		shift.ClosingBoxBalance = closing[RegisterBox]
		shift.OfficialDelta = closing[RegisterOfficial].Sub(shift.OpeningOfficialBalance)
		shift.BoxDelta = closing[RegisterBox].Sub(shift.OpeningBoxBalance)

		err = tx.Model(&Shift{}).Where("id = ?", shift.ID).Updates(map[string]interface{}{
			"Status":                 shift.Status,
			"ClosedAt":               shift.ClosedAt,
			"ConfirmedBy":            shift.ConfirmedBy,
			"OpenKey":                nil,
			"CashRevenue":            shift.CashRevenue,
			"CardRevenue":            shift.CardRevenue,
			"QrRevenue":              shift.QrRevenue,
			"AltCardRevenue":         shift.AltCardRevenue,
			"ClosingOfficialBalance": shift.ClosingOfficialBalance,
			"ClosingBoxBalance":      shift.ClosingBoxBalance,
			"OfficialDelta":          shift.OfficialDelta,
			"BoxDelta":               shift.BoxDelta,
		}).Error
		if err != nil {
			return persistence(err)
		}

		snapshot = shift.Snapshot()

		// Transactional outbox: the pending sync row commits with the close,
		// the dispatcher publishes it after.
		if _, err := registerSyncTx(ctx, tx, shift); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Shift) Snapshot() *ClosingSnapshot {
	closedAt := time.Time{}
	if s.ClosedAt != nil {
		closedAt = *s.ClosedAt
	}
	return &ClosingSnapshot{
		ShiftId:                s.ID,
		VenueId:                s.VenueId,
		ShiftType:              s.ShiftType,
		ShiftDate:              s.ShiftDate,
		ClosedAt:               closedAt,
		ConfirmedBy:            s.ConfirmedBy,
		CashRevenue:            s.CashRevenue,
		CardRevenue:            s.CardRevenue,
		QrRevenue:              s.QrRevenue,
		AltCardRevenue:         s.AltCardRevenue,
		OpeningOfficialBalance: s.OpeningOfficialBalance,
		OpeningBoxBalance:      s.OpeningBoxBalance,
		ClosingOfficialBalance: s.ClosingOfficialBalance,
		ClosingBoxBalance:      s.ClosingBoxBalance,
		OfficialDelta:          s.OfficialDelta,
		BoxDelta:               s.BoxDelta,
	}
}

type NewShiftExpense struct {
	Register Register        `json:"register" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason" binding:"required"`
}

// RecordShiftExpense applies a negative movement tagged to an open shift.
// Expenses against a closed shift are rejected; box expenses need the
// cash-handling capability.
func RecordShiftExpense(ctx context.Context, shiftId int, input *NewShiftExpense) (*CashMovement, error) {
	actorId, ok := utils.GetActorIdFromContext(ctx)
	if !ok || actorId == "" {
		return nil, errors.New("actor id is required")
	}
	if !input.Register.Valid() {
		return nil, errors.New("invalid register")
	}
	if !input.Amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	if input.Reason == "" {
		return nil, errors.New("reason is required")
	}
	if input.Register == RegisterBox && !utils.ActorHasCapability(ctx, utils.CapabilityCashHandling) {
		return nil, ErrCapabilityRequired
	}

	db := config.GetDB()
	var movement *CashMovement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shift, err := fetchShiftTx(ctx, tx, shiftId, true)
		if err != nil {
			return err
		}
		if shift.Status == ShiftStatusClosed {
			return ErrShiftClosed
		}

		movement = &CashMovement{
			VenueId:  shift.VenueId,
			Register: input.Register,
			ShiftId:  &shift.ID,
			Delta:    input.Amount.Neg(),
			Reason:   input.Reason,
			ActorId:  actorId,
		}
		return applyMovementTx(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

func GetShift(ctx context.Context, id int) (*Shift, error) {
	return fetchShift(ctx, id)
}

type ShiftFilter struct {
	VenueId  *int
	Status   *ShiftStatus
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
}

func ListShifts(ctx context.Context, filter *ShiftFilter) ([]*Shift, error) {
	db := config.GetDB()
	q := db.WithContext(ctx)
	if filter != nil {
		if filter.VenueId != nil {
			q = q.Where("venue_id = ?", *filter.VenueId)
		}
		if filter.Status != nil {
			q = q.Where("status = ?", *filter.Status)
		}
		if filter.FromDate != nil && filter.ToDate != nil {
			q = q.Where("shift_date BETWEEN ? AND ?", *filter.FromDate, *filter.ToDate)
		}
	}
	limit := 100
	if filter != nil && filter.Limit > 0 && filter.Limit <= 500 {
		limit = filter.Limit
	}
	var shifts []*Shift
	err := q.Order("shift_date DESC, id DESC").Limit(limit).Find(&shifts).Error
	if err != nil {
		return nil, persistence(err)
	}
	return shifts, nil
}
