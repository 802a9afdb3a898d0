package models_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/evnsoft/clubshift_backend/models"
	"github.com/shopspring/decimal"
)

// Full lifecycle: open with 3 required + 2 optional items, close is blocked
// until every required item is checked, then the snapshot is recorded and the
// shift is terminal.
func TestShiftLifecycle_ChecklistGatesClosure(t *testing.T) {
	ctx := newTestContext(t)
	rio := mustVenue(t, ctx, "Рио")

	var requiredIds []int
	for i, text := range []string{"Пересчитать кассу", "Снять Z-отчёт", "Закрыть сейф"} {
		item := mustItem(t, ctx, &models.NewChecklistItem{Text: text, Required: true, SortOrder: (i + 1) * 10})
		requiredIds = append(requiredIds, item.ID)
	}
	mustItem(t, ctx, &models.NewChecklistItem{Text: "Протереть столы", SortOrder: 100})
	mustItem(t, ctx, &models.NewChecklistItem{Text: "Полить цветы", SortOrder: 110})

	shift := mustOpenShift(t, ctx, rio.ID, models.ShiftTypeMorning, "2026-03-02")
	if shift.Status != models.ShiftStatusOpen {
		t.Fatalf("expected open status, got %s", shift.Status)
	}

	revenue := &models.DeclaredRevenue{
		CashRevenue: decimal.NewFromInt(12000),
		CardRevenue: decimal.NewFromInt(34500),
	}

	_, err := models.CloseShift(ctx, shift.ID, revenue)
	var incomplete *models.ChecklistIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected ChecklistIncompleteError, got %v", err)
	}
	if len(incomplete.OutstandingItemIds) != 3 {
		t.Fatalf("expected 3 outstanding required items, got %v", incomplete.OutstandingItemIds)
	}

	// Check 2 of 3: still blocked, exactly the last one outstanding.
	for _, id := range requiredIds[:2] {
		if _, err := models.MarkChecklistItem(ctx, shift.ID, id, &models.CheckItemInput{}); err != nil {
			t.Fatalf("MarkChecklistItem(%d): %v", id, err)
		}
	}
	_, err = models.CloseShift(ctx, shift.ID, revenue)
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected ChecklistIncompleteError after partial check, got %v", err)
	}
	if len(incomplete.OutstandingItemIds) != 1 || incomplete.OutstandingItemIds[0] != requiredIds[2] {
		t.Fatalf("expected outstanding [%d], got %v", requiredIds[2], incomplete.OutstandingItemIds)
	}

	// Shift must still be open after rejected closes.
	reloaded, err := models.GetShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("GetShift: %v", err)
	}
	if reloaded.Status != models.ShiftStatusOpen {
		t.Fatalf("rejected close must leave shift open, got %s", reloaded.Status)
	}

	if _, err := models.MarkChecklistItem(ctx, shift.ID, requiredIds[2], &models.CheckItemInput{Note: "всё ок"}); err != nil {
		t.Fatalf("MarkChecklistItem: %v", err)
	}

	state, err := models.ChecklistCompletion(ctx, shift.ID)
	if err != nil {
		t.Fatalf("ChecklistCompletion: %v", err)
	}
	if !state.AllRequiredChecked {
		t.Fatalf("expected all required checked: %+v", state)
	}
	if state.TotalCount != 5 || state.CheckedCount != 3 {
		t.Fatalf("expected 3/5 checked, got %d/%d", state.CheckedCount, state.TotalCount)
	}

	snapshot, err := models.CloseShift(ctx, shift.ID, revenue)
	if err != nil {
		t.Fatalf("CloseShift: %v", err)
	}
	if !snapshot.CashRevenue.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("snapshot cash revenue mismatch: %s", snapshot.CashRevenue)
	}

	closed, err := models.GetShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("GetShift: %v", err)
	}
	if closed.Status != models.ShiftStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected closed shift with timestamp, got %+v", closed)
	}
	if closed.ConfirmedBy != "admin-1" {
		t.Fatalf("expected confirmed_by admin-1, got %q", closed.ConfirmedBy)
	}

	// Terminal: a second close and post-closure writes are rejected.
	if _, err := models.CloseShift(ctx, shift.ID, revenue); !errors.Is(err, models.ErrShiftAlreadyClosed) {
		t.Fatalf("expected ErrShiftAlreadyClosed, got %v", err)
	}
	if _, err := models.MarkChecklistItem(ctx, shift.ID, requiredIds[0], nil); !errors.Is(err, models.ErrShiftClosed) {
		t.Fatalf("expected ErrShiftClosed on checklist write, got %v", err)
	}
}

func TestOpenShift_SingleOpenPerVenueAndType(t *testing.T) {
	ctx := newTestContext(t)
	rio := mustVenue(t, ctx, "Рио")
	center := mustVenue(t, ctx, "Центр")

	mustOpenShift(t, ctx, rio.ID, models.ShiftTypeMorning, "2026-03-02")

	if _, err := models.OpenShift(ctx, &models.NewShift{VenueId: rio.ID, ShiftType: models.ShiftTypeMorning, ShiftDate: "2026-03-02"}); !errors.Is(err, models.ErrShiftAlreadyOpen) {
		t.Fatalf("expected ErrShiftAlreadyOpen, got %v", err)
	}

	// Other keys are independent.
	mustOpenShift(t, ctx, rio.ID, models.ShiftTypeEvening, "2026-03-02")
	mustOpenShift(t, ctx, center.ID, models.ShiftTypeMorning, "2026-03-02")
}

func TestOpenShift_ConcurrentOpensExactlyOneWins(t *testing.T) {
	ctx := newTestContext(t)
	rio := mustVenue(t, ctx, "Рио")

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.OpenShift(ctx, &models.NewShift{
				VenueId:   rio.ID,
				ShiftType: models.ShiftTypeMorning,
				ShiftDate: "2026-03-02",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, models.ErrShiftAlreadyOpen) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one open to win, got %d", succeeded)
	}
}

func TestOpenShift_AllowedAgainAfterClose(t *testing.T) {
	ctx := newTestContext(t)
	rio := mustVenue(t, ctx, "Рио")

	shift := mustOpenShift(t, ctx, rio.ID, models.ShiftTypeMorning, "2026-03-02")
	if _, err := models.CloseShift(ctx, shift.ID, &models.DeclaredRevenue{}); err != nil {
		t.Fatalf("CloseShift: %v", err)
	}

	// The open slot frees up once the previous shift is closed.
	mustOpenShift(t, ctx, rio.ID, models.ShiftTypeMorning, "2026-03-03")
}

func TestCloseShift_UnknownShift(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := models.CloseShift(ctx, 9999, &models.DeclaredRevenue{}); !errors.Is(err, models.ErrShiftNotFound) {
		t.Fatalf("expected ErrShiftNotFound, got %v", err)
	}
}
