package model

import "time"

// Place is a physical location bound to exactly one process.
type Place struct {
	ID                   int64  `gorm:"primaryKey"`
	Name                 string `gorm:"uniqueIndex:idx_place_name_process;size:128;not null"`
	ProcessID            int64  `gorm:"uniqueIndex:idx_place_name_process;index;not null"`
	OnlyOneProductObject bool   `gorm:"not null;default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	// Associations
	Process Process `gorm:"constraint:OnDelete:CASCADE"`
}

// AppToKill signals equipment attached to a place to halt or resume.
type AppToKill struct {
	ID          int64 `gorm:"primaryKey"`
	PlaceID     int64 `gorm:"uniqueIndex;not null"`
	KillingFlag bool  `gorm:"not null;default:false"`
	UpdatedAt   time.Time
}

// TableName keeps the singular naming used by the station software.
func (AppToKill) TableName() string { return "app_to_kill" }
