package models

import (
	"time"
)

// OAuthCode is a one-time authorization code issued by the grant engine.
// The PKCE challenge captured at authorization time is verified against the
// code_verifier presented at the token endpoint.
type OAuthCode struct {
	Code                string `gorm:"primaryKey"`
	ClientID            string `gorm:"not null;index"`
	UserID              string `gorm:"not null"`
	Scopes              string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	AuthTime            *time.Time
	ExpiresAt           time.Time `gorm:"not null;index"`
	CreatedAt           time.Time
}

func (OAuthCode) TableName() string {
	return "oauth_codes"
}
