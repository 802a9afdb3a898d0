package models

import (
	"context"
	"errors"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/utils"
)

// ChecklistItem is a catalog entry. VenueId / ShiftType are conjunctive
// filters; a NULL filter always matches (absence is inclusive, not
// exclusive). Items are soft-deactivated, never deleted, once progress rows
// reference them.
type ChecklistItem struct {
	ID         int        `gorm:"primary_key" json:"id"`
	Category   string     `gorm:"size:100" json:"category"`
	Text       string     `gorm:"size:500;not null" json:"text" binding:"required"`
	Required   bool       `gorm:"not null;default:false" json:"required"`
	NeedsPhoto bool       `gorm:"not null;default:false" json:"needs_photo"`
	SortOrder  int        `gorm:"not null;default:0;index" json:"sort_order"`
	VenueId    *int       `gorm:"index" json:"venue_id"`
	ShiftType  *ShiftType `gorm:"size:20" json:"shift_type"`
	Active     bool       `gorm:"not null;default:true;index" json:"active"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewChecklistItem struct {
	Category   string     `json:"category"`
	Text       string     `json:"text" binding:"required"`
	Required   bool       `json:"required"`
	NeedsPhoto bool       `json:"needs_photo"`
	SortOrder  int        `json:"sort_order"`
	VenueId    *int       `json:"venue_id"`
	ShiftType  *ShiftType `json:"shift_type"`
}

// ApplicableChecklistItems answers "which items apply to shift X": active
// items whose venue filter is unset or equals the venue AND whose shift-type
// filter is unset or equals the shift type. Ordered by sort_order, id for a
// deterministic checklist.
func ApplicableChecklistItems(ctx context.Context, venueId int, shiftType ShiftType) ([]ChecklistItem, error) {
	db := config.GetDB()
	var items []ChecklistItem
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Where("venue_id IS NULL OR venue_id = ?", venueId).
		Where("shift_type IS NULL OR shift_type = ?", shiftType).
		Order("sort_order ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, persistence(err)
	}
	return items, nil
}

func CreateChecklistItem(ctx context.Context, input *NewChecklistItem) (*ChecklistItem, error) {
	if input.ShiftType != nil && !input.ShiftType.Valid() {
		return nil, errors.New("invalid shift type filter")
	}
	if input.VenueId != nil {
		if err := utils.ValidateResourceId[Venue](ctx, *input.VenueId); err != nil {
			return nil, errors.New("venue not found")
		}
	}

	item := ChecklistItem{
		Category:   input.Category,
		Text:       input.Text,
		Required:   input.Required,
		NeedsPhoto: input.NeedsPhoto,
		SortOrder:  input.SortOrder,
		VenueId:    input.VenueId,
		ShiftType:  input.ShiftType,
		Active:     true,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, persistence(err)
	}
	return &item, nil
}

func UpdateChecklistItem(ctx context.Context, id int, input *NewChecklistItem) (*ChecklistItem, error) {
	item, err := utils.FetchSingleModel[ChecklistItem](ctx, id)
	if err != nil {
		return nil, err
	}
	if input.ShiftType != nil && !input.ShiftType.Valid() {
		return nil, errors.New("invalid shift type filter")
	}
	if input.VenueId != nil {
		if err := utils.ValidateResourceId[Venue](ctx, *input.VenueId); err != nil {
			return nil, errors.New("venue not found")
		}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(item).Updates(map[string]interface{}{
		"Category":   input.Category,
		"Text":       input.Text,
		"Required":   input.Required,
		"NeedsPhoto": input.NeedsPhoto,
		"SortOrder":  input.SortOrder,
		"VenueId":    input.VenueId,
		"ShiftType":  input.ShiftType,
	}).Error
	if err != nil {
		return nil, persistence(err)
	}
	return utils.FetchSingleModel[ChecklistItem](ctx, id)
}

// DeactivateChecklistItem soft-deletes. Progress rows of past shifts keep
// pointing at the item; it simply stops appearing in new shifts.
func DeactivateChecklistItem(ctx context.Context, id int) (*ChecklistItem, error) {
	item, err := utils.FetchSingleModel[ChecklistItem](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(item).Update("active", false).Error; err != nil {
		return nil, persistence(err)
	}
	item.Active = false
	return item, nil
}

func ListChecklistItems(ctx context.Context) ([]*ChecklistItem, error) {
	db := config.GetDB()
	var items []*ChecklistItem
	err := db.WithContext(ctx).Order("sort_order ASC, id ASC").Find(&items).Error
	if err != nil {
		return nil, persistence(err)
	}
	return items, nil
}
