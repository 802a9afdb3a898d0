package models

import (
	"errors"
	"fmt"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrShiftAlreadyOpen   = errors.New("a shift is already open for this venue and shift type")
	ErrShiftNotFound      = errors.New("shift not found")
	ErrShiftAlreadyClosed = errors.New("shift is already closed")
	// ErrShiftClosed rejects writes (checklist, expenses) against a shift
	// that has already been closed.
	ErrShiftClosed = errors.New("shift is closed")
	// ErrShiftNotClosed rejects export registration for a shift that has not
	// reached its closing snapshot yet.
	ErrShiftNotClosed     = errors.New("shift is not closed yet")
	ErrUnknownItem        = errors.New("checklist item does not apply to this shift")
	ErrAlreadyInitialized = errors.New("checklist already initialized for this shift")
	ErrCapabilityRequired = errors.New("actor lacks the required capability")
	// ErrPersistence wraps storage-layer failures; no partial effect is left
	// behind when it is returned.
	ErrPersistence = errors.New("persistence failure")
)

// ChecklistIncompleteError blocks shift closure while required items remain
// unchecked. OutstandingItemIds lists exactly the required items still open.
type ChecklistIncompleteError struct {
	ShiftId            int
	OutstandingItemIds []int
}

func (e *ChecklistIncompleteError) Error() string {
	return fmt.Sprintf("checklist incomplete for shift %d: %d required item(s) outstanding", e.ShiftId, len(e.OutstandingItemIds))
}

func persistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// isDuplicateKeyErr detects unique-constraint violations across the drivers
// we run on: MySQL in production (error 1062), sqlite in unit tests.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// forUpdate applies a row lock on MySQL. sqlite (tests only) has no row
// locks; its single writer already serializes the transaction.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
