package model

import "time"

// Process is a node of a product's routing graph.
type Process struct {
	ID                 int64  `gorm:"primaryKey"`
	ProductID          int64  `gorm:"index;not null"`
	Label              string `gorm:"size:128;not null"`
	Order              int    `gorm:"column:order_no;not null"`
	IsRequired         bool   `gorm:"not null;default:false"`
	KillingApp         bool   `gorm:"not null;default:false"`
	RespectFifoRules   bool   `gorm:"not null;default:false"`
	ChangingExpDate    bool   `gorm:"not null;default:false"`
	HowMuchDaysExpDate int    `gorm:"not null;default:0"`
	ExpectingChild     bool   `gorm:"not null;default:false"`
	EndingProcess      bool   `gorm:"not null;default:false"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Associations
	Product  Product          `gorm:"constraint:OnDelete:CASCADE"`
	Settings *ProcessSettings `gorm:"foreignKey:ProcessID"`
}

// SettingsKind names the configuration variant attached to a process.
type SettingsKind string

const (
	SettingsDefault   SettingsKind = "default"
	SettingsStart     SettingsKind = "start"
	SettingsCondition SettingsKind = "condition"
	SettingsEnding    SettingsKind = "ending"
)

// ProcessSettings is the single configuration row of a process.
// QuarantineHours is applied when a unit moves out, QuarantineMinutes when it
// is received; the two units are kept apart on purpose.
type ProcessSettings struct {
	ID                      int64        `gorm:"primaryKey"`
	ProcessID               int64        `gorm:"uniqueIndex;not null"`
	Kind                    SettingsKind `gorm:"size:16;not null"`
	QuarantineHours         *int
	QuarantineMinutes       *int
	MaxTimeInProcessMinutes *int
	CondPath                *bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Edge is a directed arc between two processes of the same product.
type Edge struct {
	ID        int64 `gorm:"primaryKey"`
	SourceID  int64 `gorm:"uniqueIndex:idx_edge_source_target;not null"`
	TargetID  int64 `gorm:"uniqueIndex:idx_edge_source_target;index;not null"`
	CreatedAt time.Time

	// Associations
	Source Process `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE"`
	Target Process `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE"`
}
