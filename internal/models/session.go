package models

import (
	"time"
)

// Session is an opaque browser session. The cookie value is the primary key;
// a session past ExpiresAt is treated as if it did not exist.
type Session struct {
	Token     string `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (Session) TableName() string {
	return "sessions"
}
