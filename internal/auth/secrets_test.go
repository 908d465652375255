package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersonalAccessToken(t *testing.T) {
	plaintext, hash, err := NewPersonalAccessToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, PatPrefix))
	assert.Equal(t, HashSecret(plaintext), hash)
	assert.NotContains(t, hash, PatPrefix, "hash must not leak the plaintext")
	assert.Len(t, hash, 64)

	// Distinct invocations must never collide
	other, _, err := NewPersonalAccessToken()
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, other)
}

func TestNewClientSecret(t *testing.T) {
	plaintext, hash, err := NewClientSecret()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, ClientSecretPrefix))
	assert.Equal(t, HashSecret(plaintext), hash)
}

func TestIsPersonalAccessToken(t *testing.T) {
	assert.True(t, IsPersonalAccessToken("gpat_abc123"))
	assert.False(t, IsPersonalAccessToken("gsk_abc123"))
	assert.False(t, IsPersonalAccessToken("eyJhbGciOiJIUzUxMiJ9.x.y"))
	assert.False(t, IsPersonalAccessToken(""))
}
