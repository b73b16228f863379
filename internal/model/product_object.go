package model

import "time"

// ProductObject is one physical unit travelling through the process graph.
// A nil CurrentProcessID means the unit has not been received anywhere yet.
type ProductObject struct {
	ID               int64  `gorm:"primaryKey"`
	SerialNumber     string `gorm:"uniqueIndex;size:128;not null"`
	FullSN           string `gorm:"column:full_sn;uniqueIndex;size:256;not null"`
	ProductID        int64  `gorm:"index;not null"`
	CurrentProcessID *int64 `gorm:"index"`
	CurrentPlaceID   *int64 `gorm:"index"`
	MotherObjectID   *int64 `gorm:"index"`
	ExMotherID       *int64
	IsMother         bool `gorm:"not null;default:false"`
	End              bool `gorm:"column:is_end;not null;default:false"`
	QuarantineTime   *time.Time
	ExpDateInProcess *time.Time
	ExpireDate       *time.Time
	MaxTimeDeadline  *time.Time
	OverdueNotified  bool      `gorm:"not null;default:false"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time

	// Associations
	CurrentPlace *Place          `gorm:"foreignKey:CurrentPlaceID"`
	Children     []ProductObject `gorm:"foreignKey:MotherObjectID"`
}
