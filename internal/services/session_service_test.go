package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gatherhq/gather-api/internal/models"
)

func TestSessionLifecycle(t *testing.T) {
	db := setupServiceDB(t)
	sessions := NewSessionService(db)

	session, err := sessions.CreateSession(1, time.Hour)
	require.NoError(t, err)
	assert.Len(t, session.Token, 64, "token is 32 random bytes hex encoded")
	assert.EqualValues(t, 1, session.UserID)

	found, err := sessions.GetValidSession(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Token, found.Token)

	require.NoError(t, sessions.DeleteSession(session.Token))
	_, err = sessions.GetValidSession(session.Token)
	assert.Error(t, err)
}

func TestExpiredSessionLooksAbsent(t *testing.T) {
	db := setupServiceDB(t)
	sessions := NewSessionService(db)

	session, err := sessions.CreateSession(1, -time.Minute)
	require.NoError(t, err)

	_, err = sessions.GetValidSession(session.Token)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPurgeExpired(t *testing.T) {
	db := setupServiceDB(t)
	sessions := NewSessionService(db)

	_, err := sessions.CreateSession(1, -time.Minute)
	require.NoError(t, err)
	live, err := sessions.CreateSession(1, time.Hour)
	require.NoError(t, err)

	require.NoError(t, sessions.PurgeExpired())

	var count int64
	db.Model(&models.Session{}).Count(&count)
	assert.EqualValues(t, 1, count)

	_, err = sessions.GetValidSession(live.Token)
	assert.NoError(t, err)
}
