package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gatherhq/gather-api/internal/models"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.PersonalAccessToken{},
		&models.Badge{},
		&models.UserBadge{},
	)
	require.NoError(t, err)
	return db
}

func TestBadgeAwardLifecycle(t *testing.T) {
	db := setupServiceDB(t)
	badges := NewBadgeService(db)

	require.NoError(t, badges.CreateBadge(&models.Badge{Code: "organizer", Name: "Organizer"}))
	require.NoError(t, badges.CreateBadge(&models.Badge{Code: "early-adopter", Name: "Early Adopter"}))

	err := badges.CreateBadge(&models.Badge{Code: "organizer", Name: "Duplicate"})
	assert.EqualError(t, err, "badge_already_exists")

	require.NoError(t, badges.Award(1, "organizer"))
	require.NoError(t, badges.Award(1, "early-adopter"))

	err = badges.Award(1, "organizer")
	assert.EqualError(t, err, "badge_already_awarded")

	err = badges.Award(1, "nonexistent")
	assert.Error(t, err)

	entitlements, err := badges.ActiveEntitlements(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"early-adopter", "organizer"}, entitlements, "entitlements are sorted by code")

	// Revocation removes the entitlement but keeps the award row
	require.NoError(t, badges.RevokeAward(1, "organizer"))
	entitlements, err = badges.ActiveEntitlements(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"early-adopter"}, entitlements)

	var awardCount int64
	db.Model(&models.UserBadge{}).Where("user_id = ?", 1).Count(&awardCount)
	assert.EqualValues(t, 2, awardCount, "revoked awards stay in history")

	err = badges.RevokeAward(1, "organizer")
	assert.EqualError(t, err, "award_not_found", "double revocation is rejected")

	// A revoked badge can be awarded again
	require.NoError(t, badges.Award(1, "organizer"))
}

func TestActiveEntitlementsEmpty(t *testing.T) {
	db := setupServiceDB(t)
	badges := NewBadgeService(db)

	entitlements, err := badges.ActiveEntitlements(42)
	require.NoError(t, err)
	assert.Empty(t, entitlements)
}
