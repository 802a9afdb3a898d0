package models_test

import (
	"context"
	"testing"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/models"
	"github.com/evnsoft/clubshift_backend/utils"
)

// newTestContext gives each test a fresh in-memory database and an acting
// admin with the full capability set.
func newTestContext(t *testing.T) context.Context {
	t.Helper()
	config.ConnectTestDatabase()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetActorIdInContext(ctx, "admin-1")
	ctx = utils.SetActorNameInContext(ctx, "Test Admin")
	ctx = utils.SetCapabilitiesInContext(ctx, []string{utils.CapabilityCashHandling, utils.CapabilityCatalogAdmin})
	return ctx
}

func mustVenue(t *testing.T, ctx context.Context, name string) *models.Venue {
	t.Helper()
	venue, err := models.CreateVenue(ctx, &models.NewVenue{Name: name})
	if err != nil {
		t.Fatalf("CreateVenue(%q): %v", name, err)
	}
	return venue
}

func mustItem(t *testing.T, ctx context.Context, input *models.NewChecklistItem) *models.ChecklistItem {
	t.Helper()
	item, err := models.CreateChecklistItem(ctx, input)
	if err != nil {
		t.Fatalf("CreateChecklistItem(%q): %v", input.Text, err)
	}
	return item
}

func mustOpenShift(t *testing.T, ctx context.Context, venueId int, shiftType models.ShiftType, date string) *models.Shift {
	t.Helper()
	shift, err := models.OpenShift(ctx, &models.NewShift{
		VenueId:   venueId,
		ShiftType: shiftType,
		ShiftDate: date,
	})
	if err != nil {
		t.Fatalf("OpenShift: %v", err)
	}
	return shift
}

func shiftTypePtr(s models.ShiftType) *models.ShiftType { return &s }
