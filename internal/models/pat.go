package models

import (
	"time"
)

// PersonalAccessToken is a long-lived user-issued bearer credential, distinct
// from OAuth-issued tokens. Only the SHA-256 hex hash of the secret is stored;
// the plaintext (prefix + high-entropy suffix) is shown to the user exactly once.
type PersonalAccessToken struct {
	ID         uint   `gorm:"primaryKey"`
	TokenHash  string `gorm:"uniqueIndex;not null"`
	UserID     uint   `gorm:"not null;index"`
	Name       string
	Scopes     string     // Space-separated list of granted scopes
	ExpiresAt  *time.Time // Nil means the token never expires
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (PersonalAccessToken) TableName() string {
	return "personal_access_tokens"
}

// Expired reports whether the token has an expiry in the past
func (t *PersonalAccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
