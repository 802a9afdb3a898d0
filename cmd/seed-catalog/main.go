// seed-catalog creates the venues and the default checklist catalog for a
// fresh deployment. Running it again is safe: existing venues and items are
// left alone.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-catalog
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/models"
	"github.com/evnsoft/clubshift_backend/utils"
	"gorm.io/gorm"
)

var venues = []string{"Рио", "Центр"}

type seedItem struct {
	category   string
	text       string
	required   bool
	needsPhoto bool
	sortOrder  int
	shiftType  *models.ShiftType
}

func st(s models.ShiftType) *models.ShiftType { return &s }

var items = []seedItem{
	{category: "opening", text: "Пересчитать кассу и сверить с остатком", required: true, sortOrder: 10, shiftType: st(models.ShiftTypeMorning)},
	{category: "opening", text: "Включить все ПК и проверить периферию", required: true, sortOrder: 20, shiftType: st(models.ShiftTypeMorning)},
	{category: "hall", text: "Протереть столы и поверхности", required: false, sortOrder: 30},
	{category: "hall", text: "Проверить гарнитуры и коврики", required: false, needsPhoto: true, sortOrder: 40},
	{category: "closing", text: "Снять Z-отчёт с терминала", required: true, needsPhoto: true, sortOrder: 50, shiftType: st(models.ShiftTypeEvening)},
	{category: "closing", text: "Пересчитать бокс и убрать в сейф", required: true, sortOrder: 60, shiftType: st(models.ShiftTypeEvening)},
	{category: "closing", text: "Выключить свет и вывески", required: true, sortOrder: 70, shiftType: st(models.ShiftTypeEvening)},
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetActorIdInContext(ctx, "seed")
	ctx = utils.SetActorNameInContext(ctx, "Seed")

	for _, name := range venues {
		var existing models.Venue
		err := db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
		if err == nil {
			fmt.Printf("venue %q exists (id=%d)\n", name, existing.ID)
			continue
		}
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup venue %q: %v\n", name, err)
			os.Exit(1)
		}
		venue, err := models.CreateVenue(ctx, &models.NewVenue{Name: name})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create venue %q: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("created venue %q (id=%d)\n", name, venue.ID)
	}

	for _, it := range items {
		var count int64
		if err := db.WithContext(ctx).Model(&models.ChecklistItem{}).Where("text = ?", it.text).Count(&count).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to lookup item %q: %v\n", it.text, err)
			os.Exit(1)
		}
		if count > 0 {
			fmt.Printf("item %q exists\n", it.text)
			continue
		}
		item, err := models.CreateChecklistItem(ctx, &models.NewChecklistItem{
			Category:   it.category,
			Text:       it.text,
			Required:   it.required,
			NeedsPhoto: it.needsPhoto,
			SortOrder:  it.sortOrder,
			ShiftType:  it.shiftType,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create item %q: %v\n", it.text, err)
			os.Exit(1)
		}
		fmt.Printf("created item %q (id=%d)\n", item.Text, item.ID)
	}
}
