package models

import (
	"time"
)

// Badge is an awardable entitlement. Active user badges surface as the
// entitlements claim in ID tokens and the userinfo response.
type Badge struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;not null"`
	Name        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Badge) TableName() string {
	return "badges"
}

// UserBadge is an award of a badge to a user. A non-nil RevokedAt makes the
// award inactive without deleting the history row.
type UserBadge struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"not null;index"`
	BadgeID   uint `gorm:"not null;index"`
	AwardedAt time.Time
	RevokedAt *time.Time
}

func (UserBadge) TableName() string {
	return "user_badges"
}
