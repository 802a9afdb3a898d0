package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncRecord is the exactly-once export marker to the external accounting
// system: at most one row per (shift_date, shift_type, venue). The actual
// dispatch lives in workflow; this model only guards against duplicates and
// records the outcome.
type SyncRecord struct {
	ID        int        `gorm:"primary_key" json:"id"`
	ShiftDate time.Time  `gorm:"type:date;not null;index:uniq_sync_key,unique" json:"shift_date"`
	ShiftType ShiftType  `gorm:"size:20;not null;index:uniq_sync_key,unique" json:"shift_type"`
	VenueId   int        `gorm:"not null;index:uniq_sync_key,unique" json:"venue_id"`
	ShiftId   int        `gorm:"index;not null" json:"shift_id"`
	Status    SyncStatus `gorm:"size:20;not null;index" json:"status"`
	Payload   []byte     `gorm:"type:blob" json:"payload"`
	Response  []byte     `gorm:"type:blob" json:"response"`
	Error     *string    `gorm:"type:text" json:"error"`

	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at"`
	LockedAt      *time.Time `gorm:"index" json:"locked_at"`
	LockedBy      *string    `gorm:"size:100" json:"locked_by"`
	DispatchedAt  *time.Time `json:"dispatched_at"`
	CorrelationId string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func syncPayloadForShift(ctx context.Context, tx *gorm.DB, shift *Shift) ([]byte, error) {
	var venue Venue
	venueName := ""
	if err := tx.WithContext(ctx).First(&venue, shift.VenueId).Error; err == nil {
		venueName = venue.Name
	}
	closedAt := time.Now().UTC()
	if shift.ClosedAt != nil {
		closedAt = *shift.ClosedAt
	}
	// SyncRecordId is stamped by the dispatcher once the record exists.
	msg := config.ShiftSyncMessage{
		ShiftId:        shift.ID,
		ShiftDate:      shift.ShiftDate.Format("2006-01-02"),
		ShiftType:      string(shift.ShiftType),
		VenueId:        shift.VenueId,
		VenueName:      venueName,
		CashRevenue:    shift.CashRevenue,
		CardRevenue:    shift.CardRevenue,
		QrRevenue:      shift.QrRevenue,
		AltCardRevenue: shift.AltCardRevenue,
		OfficialDelta:  shift.OfficialDelta,
		BoxDelta:       shift.BoxDelta,
		ConfirmedBy:    shift.ConfirmedBy,
		ClosedAt:       closedAt,
		CorrelationId:  correlationIdFromContextOrNew(ctx),
	}
	return json.Marshal(msg)
}

// registerSyncTx registers the export intent inside the caller's
// transaction. On a duplicate key: a prior success is returned untouched (the
// idempotent no-op that prevents double submission on retry); pending/failed
// rows get a fresh payload and go back to pending.
func registerSyncTx(ctx context.Context, tx *gorm.DB, shift *Shift) (*SyncRecord, error) {
	record := SyncRecord{
		ShiftDate:     shift.ShiftDate,
		ShiftType:     shift.ShiftType,
		VenueId:       shift.VenueId,
		ShiftId:       shift.ID,
		Status:        SyncStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}

	payload, err := syncPayloadForShift(ctx, tx, shift)
	if err != nil {
		return nil, persistence(err)
	}
	record.Payload = payload

	if err := tx.WithContext(ctx).Create(&record).Error; err == nil {
		return &record, nil
	} else if !isDuplicateKeyErr(err) {
		return nil, persistence(err)
	}

	var existing SyncRecord
	err = forUpdate(tx.WithContext(ctx)).
		Where("shift_date = ? AND shift_type = ? AND venue_id = ?", shift.ShiftDate, shift.ShiftType, shift.VenueId).
		First(&existing).Error
	if err != nil {
		return nil, persistence(err)
	}

	if existing.Status == SyncStatusSuccess {
		return &existing, nil
	}

	err = tx.WithContext(ctx).Model(&SyncRecord{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"ShiftId":       shift.ID,
			"Status":        SyncStatusPending,
			"Payload":       payload,
			"Error":         nil,
			"NextAttemptAt": nil,
			"LockedAt":      nil,
			"LockedBy":      nil,
		}).Error
	if err != nil {
		return nil, persistence(err)
	}
	existing.ShiftId = shift.ID
	existing.Status = SyncStatusPending
	existing.Payload = payload
	existing.Error = nil
	return &existing, nil
}

// RegisterSync re-registers a shift for export (retry entry point used by
// the scheduler and manual re-sends). Safe to call any number of times.
func RegisterSync(ctx context.Context, shiftId int) (*SyncRecord, error) {
	shift, err := fetchShift(ctx, shiftId)
	if err != nil {
		return nil, err
	}
	if shift.Status != ShiftStatusClosed {
		return nil, ErrShiftNotClosed
	}

	db := config.GetDB()
	var record *SyncRecord
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		record, txErr = registerSyncTx(ctx, tx, shift)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func GetSyncRecord(ctx context.Context, shiftDate time.Time, shiftType ShiftType, venueId int) (*SyncRecord, error) {
	db := config.GetDB()
	var record SyncRecord
	err := db.WithContext(ctx).
		Where("shift_date = ? AND shift_type = ? AND venue_id = ?", shiftDate, shiftType, venueId).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, persistence(err)
	}
	return &record, nil
}

// MarkSyncSuccess records the accounting system's response and releases the
// dispatch lock. Used by the dispatcher after a publish succeeds.
func MarkSyncSuccess(ctx context.Context, db *gorm.DB, recordId int, response []byte) error {
	now := time.Now().UTC()
	err := db.WithContext(ctx).Model(&SyncRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"Status":        SyncStatusSuccess,
			"Response":      response,
			"Error":         nil,
			"DispatchedAt":  &now,
			"NextAttemptAt": nil,
			"LockedAt":      nil,
			"LockedBy":      nil,
		}).Error
	if err != nil {
		return persistence(err)
	}
	return nil
}

func MarkSyncFailed(ctx context.Context, db *gorm.DB, recordId int, dispatchErr error, nextAttemptAt *time.Time) error {
	msg := ""
	if dispatchErr != nil {
		msg = dispatchErr.Error()
	}
	err := db.WithContext(ctx).Model(&SyncRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"Status":        SyncStatusFailed,
			"Error":         &msg,
			"NextAttemptAt": nextAttemptAt,
			"LockedAt":      nil,
			"LockedBy":      nil,
		}).Error
	if err != nil {
		return persistence(err)
	}
	return nil
}
