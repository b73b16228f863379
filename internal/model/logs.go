package model

import "time"

// MovementType enumerates the transitions a scanning station can request.
type MovementType string

const (
	MovementMove    MovementType = "move"
	MovementReceive MovementType = "receive"
	MovementCheck   MovementType = "check"
	MovementTrash   MovementType = "trash"
)

// Valid reports whether t is one of the four known movement types.
func (t MovementType) Valid() bool {
	switch t {
	case MovementMove, MovementReceive, MovementCheck, MovementTrash:
		return true
	}
	return false
}

// ProductObjectProcessLog is the append-only audit trail of a unit's stay in a
// process. Only ExitTime and WhoExit are ever written after insert.
type ProductObjectProcessLog struct {
	ID              int64        `gorm:"primaryKey"`
	ProductObjectID int64        `gorm:"index:idx_log_object_process;not null"`
	ProcessID       int64        `gorm:"index:idx_log_object_process;not null"`
	PlaceID         *int64       `gorm:"index"`
	PlaceName       string       `gorm:"size:128"`
	MovementType    MovementType `gorm:"size:16;not null"`
	EntryTime       time.Time    `gorm:"not null"`
	WhoEntry        string       `gorm:"size:128"`
	ExitTime        *time.Time
	WhoExit         string `gorm:"size:128"`
	PrinterName     string `gorm:"size:128"`
}

// ConditionLog records the branch result produced at a condition process.
type ConditionLog struct {
	ID              int64     `gorm:"primaryKey"`
	ProcessID       int64     `gorm:"index:idx_cond_process_object;not null"`
	ProductObjectID int64     `gorm:"index:idx_cond_process_object;not null"`
	Result          bool      `gorm:"not null"`
	Actor           string    `gorm:"size:128;not null"`
	CreatedAt       time.Time `gorm:"not null;index"`
}
