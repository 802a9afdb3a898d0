package models

import (
	"log"

	"github.com/evnsoft/clubshift_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Venue{},
		&ChecklistItem{}, &ChecklistProgress{},
		&CashMovement{}, &CashBalance{},
		&Shift{},
		&SyncRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
