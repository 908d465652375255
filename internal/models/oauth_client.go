package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// Token endpoint authentication methods (RFC 7591)
const (
	AuthMethodNone       = "none"
	AuthMethodClientPost = "client_secret_post"
)

// OAuthClient backs the grant engine's client store. Secret holds a SHA-256
// hex hash of the client secret, never the plaintext; public clients
// (TokenEndpointAuthMethod == "none") have an empty Secret.
type OAuthClient struct {
	ID                      string `gorm:"primaryKey"`
	Secret                  string
	Name                    string
	Domain                  string
	UserID                  uint   // Owning user for developer-portal clients; zero for dynamic registrations
	Scopes                  string // Space-separated list of allowed scopes
	GrantTypes              string // Space-separated list: "authorization_code refresh_token"
	RedirectURI             string
	TokenEndpointAuthMethod string // Empty for legacy/portal clients; "none" marks a public client
	CreatedAt               time.Time
	UpdatedAt               time.Time
	DeletedAt               gorm.DeletedAt `gorm:"index"`
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}

// GetID implements oauth2.ClientInfo
func (c *OAuthClient) GetID() string {
	return c.ID
}

// GetSecret implements oauth2.ClientInfo
func (c *OAuthClient) GetSecret() string {
	return c.Secret
}

// GetDomain implements oauth2.ClientInfo
func (c *OAuthClient) GetDomain() string {
	return c.Domain
}

// GetUserID implements oauth2.ClientInfo
func (c *OAuthClient) GetUserID() string {
	return ""
}

// IsPublic implements oauth2.ClientInfo. A client whose registered token
// endpoint auth method is "none" cannot hold a secret.
func (c *OAuthClient) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// VerifyPassword implements oauth2.ClientPasswordVerifier so the grant engine
// compares against the stored hash instead of the raw secret column.
// Public clients authenticate with an empty secret.
func (c *OAuthClient) VerifyPassword(secret string) bool {
	if c.IsPublic() {
		return secret == ""
	}
	sum := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(c.Secret)) == 1
}
