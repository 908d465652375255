package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gatherhq/gather-api/internal/models"
)

type recordingPurger struct {
	purged []string
	err    error
}

func (p *recordingPurger) PurgeClient(ctx context.Context, clientID string) error {
	if p.err != nil {
		return p.err
	}
	p.purged = append(p.purged, clientID)
	return nil
}

func setupRegistryDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OAuthClientRecord{}))
	return db
}

func seedRecord(t *testing.T, db *gorm.DB, clientID, source string, registeredAt time.Time, lastGrantAt *time.Time) {
	t.Helper()
	record := &models.OAuthClientRecord{
		ClientID:     clientID,
		Source:       source,
		RegisteredAt: registeredAt,
		LastGrantAt:  lastGrantAt,
	}
	require.NoError(t, db.Create(record).Error)
}

func TestRegisterAndRecordGrant(t *testing.T) {
	db := setupRegistryDB(t)
	registry := NewClientRegistry(db, &recordingPurger{})

	name := "Test App"
	ownerID := uint(5)
	require.NoError(t, registry.Register("app-1", models.ClientSourcePortal, &ownerID, &name))

	var record models.OAuthClientRecord
	require.NoError(t, db.First(&record, "client_id = ?", "app-1").Error)
	assert.Equal(t, models.ClientSourcePortal, record.Source)
	assert.Equal(t, ownerID, *record.OwnerID)
	assert.Nil(t, record.LastGrantAt, "fresh registrations carry no grant timestamp")

	require.NoError(t, registry.RecordGrant("app-1"))
	require.NoError(t, db.First(&record, "client_id = ?", "app-1").Error)
	require.NotNil(t, record.LastGrantAt)
	assert.WithinDuration(t, time.Now(), *record.LastGrantAt, 5*time.Second)
}

func TestDeregisterPurgesEngineState(t *testing.T) {
	db := setupRegistryDB(t)
	purger := &recordingPurger{}
	registry := NewClientRegistry(db, purger)

	seedRecord(t, db, "app-1", models.ClientSourcePortal, time.Now(), nil)

	require.NoError(t, registry.Deregister(context.Background(), "app-1"))
	assert.Equal(t, []string{"app-1"}, purger.purged)

	var count int64
	db.Model(&models.OAuthClientRecord{}).Count(&count)
	assert.Zero(t, count)
}

func TestSweepRules(t *testing.T) {
	now := time.Now()
	granted := now.Add(-time.Hour)
	staleGrant := now.Add(-366 * 24 * time.Hour)

	testCases := []struct {
		name         string
		source       string
		registeredAt time.Time
		lastGrantAt  *time.Time
		wantSwept    bool
	}{
		{
			name:         "dynamic unused for 47h survives",
			source:       models.ClientSourceDynamic,
			registeredAt: now.Add(-47 * time.Hour),
			wantSwept:    false,
		},
		{
			name:         "dynamic unused for 49h is swept",
			source:       models.ClientSourceDynamic,
			registeredAt: now.Add(-49 * time.Hour),
			wantSwept:    true,
		},
		{
			name:         "dynamic with a grant is never swept by the unused rule",
			source:       models.ClientSourceDynamic,
			registeredAt: now.Add(-1000 * time.Hour),
			lastGrantAt:  &granted,
			wantSwept:    false,
		},
		{
			name:         "portal never used within a year survives",
			source:       models.ClientSourcePortal,
			registeredAt: now.Add(-300 * 24 * time.Hour),
			wantSwept:    false,
		},
		{
			name:         "portal never used beyond a year is swept",
			source:       models.ClientSourcePortal,
			registeredAt: now.Add(-366 * 24 * time.Hour),
			wantSwept:    true,
		},
		{
			name:         "portal idle beyond a year is swept",
			source:       models.ClientSourcePortal,
			registeredAt: now.Add(-400 * 24 * time.Hour),
			lastGrantAt:  &staleGrant,
			wantSwept:    true,
		},
		{
			name:         "portal recently granted survives",
			source:       models.ClientSourcePortal,
			registeredAt: now.Add(-400 * 24 * time.Hour),
			lastGrantAt:  &granted,
			wantSwept:    false,
		},
		{
			name:         "unknown source is never swept",
			source:       "imported",
			registeredAt: now.Add(-1000 * 24 * time.Hour),
			wantSwept:    false,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			db := setupRegistryDB(t)
			purger := &recordingPurger{}
			registry := NewClientRegistry(db, purger)

			seedRecord(t, db, "client-under-test", tt.source, tt.registeredAt, tt.lastGrantAt)

			removed := registry.Sweep(context.Background(), now)

			var count int64
			db.Model(&models.OAuthClientRecord{}).Count(&count)
			if tt.wantSwept {
				assert.Equal(t, 1, removed)
				assert.Zero(t, count)
				assert.Equal(t, []string{"client-under-test"}, purger.purged)
			} else {
				assert.Zero(t, removed)
				assert.EqualValues(t, 1, count)
				assert.Empty(t, purger.purged)
			}
		})
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	db := setupRegistryDB(t)
	purger := &recordingPurger{err: errors.New("engine down")}
	registry := NewClientRegistry(db, purger)

	seedRecord(t, db, "stale-1", models.ClientSourceDynamic, time.Now().Add(-49*time.Hour), nil)
	seedRecord(t, db, "stale-2", models.ClientSourceDynamic, time.Now().Add(-49*time.Hour), nil)

	// Purger failing for every record: nothing counts as removed, no panic
	removed := registry.Sweep(context.Background(), time.Now())
	assert.Zero(t, removed)
}

func TestSweepRechecksBeforeDelete(t *testing.T) {
	db := setupRegistryDB(t)
	purger := &recordingPurger{}
	registry := NewClientRegistry(db, purger)

	// Stale at evaluation time, but a grant lands before the delete re-check
	now := time.Now()
	seedRecord(t, db, "racing", models.ClientSourceDynamic, now.Add(-49*time.Hour), nil)
	require.NoError(t, registry.RecordGrant("racing"))

	require.NoError(t, registry.deleteStale(context.Background(), "racing", now))
	assert.Empty(t, purger.purged)

	var count int64
	db.Model(&models.OAuthClientRecord{}).Count(&count)
	assert.EqualValues(t, 1, count, "a client granted mid-sweep must survive")
}

func TestStartSweeperStops(t *testing.T) {
	db := setupRegistryDB(t)
	registry := NewClientRegistry(db, &recordingPurger{})

	stop := registry.StartSweeper(10 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()
	// Stopping twice is not supported; a single stop must not panic or hang
}
