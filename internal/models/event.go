package models

import (
	"time"

	"gorm.io/gorm"
)

type Event struct {
	ID          uint   `gorm:"primaryKey"`
	GroupID     uint   `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Description string
	Location    string
	StartsAt    time.Time `gorm:"not null"`
	EndsAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (Event) TableName() string {
	return "events"
}
