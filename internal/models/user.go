package models

import (
	"fmt"
	"time"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string
	AvatarURL    string
	PasswordHash string `json:"-"`
	Role         string `gorm:"default:'user'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileURL returns the public profile URL for the user on the given issuer
func (u *User) ProfileURL(issuer string) string {
	return fmt.Sprintf("%s/u/%s", issuer, u.Username)
}
