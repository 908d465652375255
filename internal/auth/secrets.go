package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Credential prefixes. Secrets are sniffed by prefix before any store lookup,
// so the prefixes must never overlap.
const (
	// PatPrefix marks a personal access token, e.g. gpat_4f2a...
	PatPrefix = "gpat_"
	// ClientSecretPrefix marks an OAuth client secret, e.g. gsk_9c1d...
	ClientSecretPrefix = "gsk_"

	secretEntropyBytes = 24
)

// NewPersonalAccessToken generates a plaintext PAT and the SHA-256 hex hash
// under which it is persisted. The plaintext is returned to the caller exactly
// once and never stored.
func NewPersonalAccessToken() (plaintext, hash string, err error) {
	return newPrefixedSecret(PatPrefix)
}

// NewClientSecret generates a plaintext client secret and its storage hash
func NewClientSecret() (plaintext, hash string, err error) {
	return newPrefixedSecret(ClientSecretPrefix)
}

func newPrefixedSecret(prefix string) (string, string, error) {
	suffix := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(suffix); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	plaintext := prefix + hex.EncodeToString(suffix)
	return plaintext, HashSecret(plaintext), nil
}

// HashSecret returns the hex-encoded SHA-256 hash of a secret
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IsPersonalAccessToken sniffs whether a bearer credential looks like a PAT
func IsPersonalAccessToken(token string) bool {
	return strings.HasPrefix(token, PatPrefix)
}
