package models

import (
	"context"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"gorm.io/gorm"
)

// ChecklistProgress is one row per (shift, applicable item), created when the
// shift opens. Rows are never deleted and become immutable once the shift
// closes.
type ChecklistProgress struct {
	ID            int        `gorm:"primary_key" json:"id"`
	ShiftId       int        `gorm:"not null;index:uniq_shift_item,unique" json:"shift_id"`
	ItemId        int        `gorm:"not null;index:uniq_shift_item,unique" json:"item_id"`
	Checked       bool       `gorm:"not null;default:false" json:"checked"`
	CheckedAt     *time.Time `json:"checked_at"`
	Note          string     `gorm:"size:500" json:"note"`
	AttachmentRef string     `gorm:"size:255" json:"attachment_ref"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Item *ChecklistItem `gorm:"foreignKey:ItemId" json:"item,omitempty"`
}

type ChecklistCompletionState struct {
	ShiftId             int   `json:"shift_id"`
	CheckedCount        int   `json:"checked_count"`
	TotalCount          int   `json:"total_count"`
	RequiredTotal       int   `json:"required_total"`
	RequiredChecked     int   `json:"required_checked"`
	AllRequiredChecked  bool  `json:"all_required_checked"`
	OutstandingRequired []int `json:"outstanding_required"`
}

// InitializeChecklist seeds one unchecked row per applicable item inside the
// caller's transaction (shift opening is all-or-nothing).
func InitializeChecklist(ctx context.Context, tx *gorm.DB, shiftId int, items []ChecklistItem) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&ChecklistProgress{}).Where("shift_id = ?", shiftId).Count(&count).Error; err != nil {
		return persistence(err)
	}
	if count > 0 {
		return ErrAlreadyInitialized
	}
	for _, item := range items {
		row := ChecklistProgress{
			ShiftId: shiftId,
			ItemId:  item.ID,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return ErrAlreadyInitialized
			}
			return persistence(err)
		}
	}
	return nil
}

type CheckItemInput struct {
	Note          string `json:"note"`
	AttachmentRef string `json:"attachment_ref"`
}

// MarkChecklistItem checks one item off. Re-checking an already-checked item
// refreshes the note/attachment; unchecking is not supported. The shift row
// is locked for the duration so a concurrent close cannot slip between the
// status check and the write (progress is immutable once the shift closes).
func MarkChecklistItem(ctx context.Context, shiftId int, itemId int, input *CheckItemInput) (*ChecklistProgress, error) {
	db := config.GetDB()
	var row ChecklistProgress
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shift, err := fetchShiftTx(ctx, tx, shiftId, true)
		if err != nil {
			return err
		}
		if shift.Status == ShiftStatusClosed {
			return ErrShiftClosed
		}

		err = tx.WithContext(ctx).Where("shift_id = ? AND item_id = ?", shiftId, itemId).First(&row).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrUnknownItem
			}
			return persistence(err)
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"Checked":   true,
			"CheckedAt": &now,
		}
		if input != nil {
			if input.Note != "" {
				updates["Note"] = input.Note
			}
			if input.AttachmentRef != "" {
				updates["AttachmentRef"] = input.AttachmentRef
			}
		}
		if err := tx.WithContext(ctx).Model(&row).Updates(updates).Error; err != nil {
			return persistence(err)
		}
		row.Checked = true
		row.CheckedAt = &now
		if input != nil {
			if input.Note != "" {
				row.Note = input.Note
			}
			if input.AttachmentRef != "" {
				row.AttachmentRef = input.AttachmentRef
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ChecklistCompletion computes the closure gate. Only required items block
// closing; unchecked optional items merely feed reminder notifications.
func ChecklistCompletion(ctx context.Context, shiftId int) (*ChecklistCompletionState, error) {
	db := config.GetDB()
	return checklistCompletion(ctx, db, shiftId)
}

func checklistCompletion(ctx context.Context, tx *gorm.DB, shiftId int) (*ChecklistCompletionState, error) {
	var rows []ChecklistProgress
	err := tx.WithContext(ctx).
		Joins("Item").
		Where("checklist_progresses.shift_id = ?", shiftId).
		Order("checklist_progresses.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, persistence(err)
	}

	state := ChecklistCompletionState{
		ShiftId:             shiftId,
		TotalCount:          len(rows),
		OutstandingRequired: []int{},
	}
	for _, row := range rows {
		if row.Checked {
			state.CheckedCount++
		}
		if row.Item != nil && row.Item.Required {
			state.RequiredTotal++
			if row.Checked {
				state.RequiredChecked++
			} else {
				state.OutstandingRequired = append(state.OutstandingRequired, row.ItemId)
			}
		}
	}
	state.AllRequiredChecked = state.RequiredChecked == state.RequiredTotal
	return &state, nil
}

// ShiftChecklist returns the full per-item progress for display.
func ShiftChecklist(ctx context.Context, shiftId int) ([]*ChecklistProgress, error) {
	if _, err := fetchShift(ctx, shiftId); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var rows []*ChecklistProgress
	err := db.WithContext(ctx).
		Joins("Item").
		Where("checklist_progresses.shift_id = ?", shiftId).
		Order("Item.sort_order ASC, Item.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, persistence(err)
	}
	return rows, nil
}
