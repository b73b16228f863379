package model

import "time"

// Product is a manufacturing family. Its processes form the routing graph.
type Product struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:128;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Processes []Process `gorm:"foreignKey:ProductID"`
}
