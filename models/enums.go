package models

// Register names one of the two parallel cash pools a venue runs:
// the declared ("official") drawer and the working ("box") cash.
type Register string

const (
	RegisterOfficial Register = "official"
	RegisterBox      Register = "box"
)

func (r Register) Valid() bool {
	return r == RegisterOfficial || r == RegisterBox
}

// AllRegisters is the fixed register set snapshotted at shift boundaries.
var AllRegisters = []Register{RegisterOfficial, RegisterBox}

type ShiftType string

const (
	ShiftTypeMorning ShiftType = "morning"
	ShiftTypeEvening ShiftType = "evening"
)

func (s ShiftType) Valid() bool {
	return s == ShiftTypeMorning || s == ShiftTypeEvening
}

type ShiftStatus string

const (
	ShiftStatusOpen   ShiftStatus = "open"
	ShiftStatusClosed ShiftStatus = "closed"
)

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)
