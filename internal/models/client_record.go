package models

import (
	"time"
)

// Client registration sources
const (
	ClientSourceDynamic = "dynamic_registration"
	ClientSourcePortal  = "developer_portal"
)

// OAuthClientRecord tracks client provenance and usage independently of the
// grant engine's own client store. LastGrantAt is bumped on every completed
// authorization; a record that has ever been granted is never purged by the
// "never used" cleanup rules.
type OAuthClientRecord struct {
	ClientID     string `gorm:"primaryKey"`
	Source       string `gorm:"not null;index"`
	OwnerID      *uint
	ClientName   *string
	RegisteredAt time.Time `gorm:"not null"`
	LastGrantAt  *time.Time
}

func (OAuthClientRecord) TableName() string {
	return "oauth_client_records"
}
