package models_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/models"
	"github.com/shopspring/decimal"
)

func closeForSync(t *testing.T, ctx context.Context, venueName string) (*models.Shift, *models.SyncRecord) {
	t.Helper()
	venue := mustVenue(t, ctx, venueName)
	shift := mustOpenShift(t, ctx, venue.ID, models.ShiftTypeMorning, "2026-03-02")
	if _, err := models.CloseShift(ctx, shift.ID, &models.DeclaredRevenue{CashRevenue: decimal.NewFromInt(1500)}); err != nil {
		t.Fatalf("CloseShift: %v", err)
	}
	closed, err := models.GetShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("GetShift: %v", err)
	}
	record, err := models.GetSyncRecord(ctx, closed.ShiftDate, closed.ShiftType, closed.VenueId)
	if err != nil {
		t.Fatalf("GetSyncRecord: %v", err)
	}
	return closed, record
}

// Closing a shift registers exactly one pending export row with the closing
// numbers in its payload.
func TestCloseShift_RegistersPendingSync(t *testing.T) {
	ctx := newTestContext(t)
	shift, record := closeForSync(t, ctx, "Рио")

	if record.Status != models.SyncStatusPending {
		t.Fatalf("expected pending sync record, got %s", record.Status)
	}
	if record.ShiftId != shift.ID {
		t.Fatalf("sync record shift id: want %d, got %d", shift.ID, record.ShiftId)
	}

	var payload config.ShiftSyncMessage
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ShiftDate != "2026-03-02" || payload.ShiftType != "morning" {
		t.Fatalf("payload key mismatch: %+v", payload)
	}
	if !payload.CashRevenue.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("payload cash revenue: got %s", payload.CashRevenue)
	}
	if payload.VenueName != "Рио" {
		t.Fatalf("payload venue name: got %q", payload.VenueName)
	}
}

// Once an export has succeeded, re-registering the same business key is a
// no-op: the successful record comes back untouched and no duplicate is
// submitted.
func TestRegisterSync_SuccessIsSticky(t *testing.T) {
	ctx := newTestContext(t)
	shift, record := closeForSync(t, ctx, "Рио")

	response := []byte(`{"pubsub_message_id":"m-1"}`)
	if err := models.MarkSyncSuccess(ctx, config.GetDB(), record.ID, response); err != nil {
		t.Fatalf("MarkSyncSuccess: %v", err)
	}

	again, err := models.RegisterSync(ctx, shift.ID)
	if err != nil {
		t.Fatalf("RegisterSync: %v", err)
	}
	if again.ID != record.ID {
		t.Fatalf("expected the existing record, got id %d (want %d)", again.ID, record.ID)
	}
	if again.Status != models.SyncStatusSuccess {
		t.Fatalf("a successful export must stay successful, got %s", again.Status)
	}
	if string(again.Response) != string(response) {
		t.Fatalf("response must be preserved, got %s", again.Response)
	}
}

// A failed export goes back to pending on re-registration with a fresh
// payload, clearing the error and backoff state.
func TestRegisterSync_FailedResetsToPending(t *testing.T) {
	ctx := newTestContext(t)
	shift, record := closeForSync(t, ctx, "Рио")

	next := time.Now().UTC().Add(time.Hour)
	if err := models.MarkSyncFailed(ctx, config.GetDB(), record.ID, errors.New("pubsub unavailable"), &next); err != nil {
		t.Fatalf("MarkSyncFailed: %v", err)
	}

	failed, err := models.GetSyncRecord(ctx, shift.ShiftDate, shift.ShiftType, shift.VenueId)
	if err != nil {
		t.Fatalf("GetSyncRecord: %v", err)
	}
	if failed.Status != models.SyncStatusFailed || failed.Error == nil {
		t.Fatalf("expected failed record with error, got %+v", failed)
	}

	reset, err := models.RegisterSync(ctx, shift.ID)
	if err != nil {
		t.Fatalf("RegisterSync: %v", err)
	}
	if reset.ID != record.ID {
		t.Fatalf("re-registration must reuse the row, got id %d", reset.ID)
	}
	if reset.Status != models.SyncStatusPending || reset.Error != nil {
		t.Fatalf("expected pending record with cleared error, got status=%s error=%v", reset.Status, reset.Error)
	}
}

func TestRegisterSync_RequiresClosedShift(t *testing.T) {
	ctx := newTestContext(t)
	rio := mustVenue(t, ctx, "Рио")
	shift := mustOpenShift(t, ctx, rio.ID, models.ShiftTypeMorning, "2026-03-02")

	if _, err := models.RegisterSync(ctx, shift.ID); !errors.Is(err, models.ErrShiftNotClosed) {
		t.Fatalf("expected ErrShiftNotClosed, got %v", err)
	}
	if _, err := models.RegisterSync(ctx, 9999); !errors.Is(err, models.ErrShiftNotFound) {
		t.Fatalf("expected ErrShiftNotFound, got %v", err)
	}
}
