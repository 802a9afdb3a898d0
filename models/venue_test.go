package models_test

import (
	"testing"

	"github.com/evnsoft/clubshift_backend/models"
)

func TestVenueLifecycle(t *testing.T) {
	ctx := newTestContext(t)
	rio := mustVenue(t, ctx, "Рио")
	mustVenue(t, ctx, "Центр")

	if _, err := models.CreateVenue(ctx, &models.NewVenue{Name: "Рио"}); err == nil {
		t.Fatal("expected duplicate venue name to be rejected")
	}

	venues, err := models.ListVenues(ctx)
	if err != nil {
		t.Fatalf("ListVenues: %v", err)
	}
	if len(venues) != 2 {
		t.Fatalf("expected 2 active venues, got %d", len(venues))
	}

	if _, err := models.DeactivateVenue(ctx, rio.ID); err != nil {
		t.Fatalf("DeactivateVenue: %v", err)
	}
	venues, err = models.ListVenues(ctx)
	if err != nil {
		t.Fatalf("ListVenues: %v", err)
	}
	if len(venues) != 1 || venues[0].Name != "Центр" {
		t.Fatalf("expected only Центр to remain active, got %d", len(venues))
	}

	// A deactivated venue cannot host new shifts.
	if _, err := models.OpenShift(ctx, &models.NewShift{VenueId: rio.ID, ShiftType: models.ShiftTypeMorning, ShiftDate: "2026-03-02"}); err == nil {
		t.Fatal("expected open on inactive venue to be rejected")
	}
}
