package services

import (
	"errors"
	"time"

	"github.com/gatherhq/gather-api/internal/models"
	"gorm.io/gorm"
)

type BadgeService interface {
	CreateBadge(badge *models.Badge) error
	GetBadgeByCode(code string) (*models.Badge, error)
	ListBadges() ([]models.Badge, error)
	Award(userID uint, badgeCode string) error
	RevokeAward(userID uint, badgeCode string) error
	// ActiveEntitlements returns the badge codes currently held by the user,
	// surfaced as the entitlements claim in ID tokens and userinfo.
	ActiveEntitlements(userID uint) ([]string, error)
}

type badgeService struct {
	db *gorm.DB
}

func NewBadgeService(db *gorm.DB) BadgeService {
	return &badgeService{db: db}
}

func (s *badgeService) CreateBadge(badge *models.Badge) error {
	var existing models.Badge
	if err := s.db.Where("code = ?", badge.Code).First(&existing).Error; err == nil {
		return errors.New("badge_already_exists")
	}
	return s.db.Create(badge).Error
}

func (s *badgeService) GetBadgeByCode(code string) (*models.Badge, error) {
	var badge models.Badge
	if err := s.db.Where("code = ?", code).First(&badge).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}

func (s *badgeService) ListBadges() ([]models.Badge, error) {
	var badges []models.Badge
	if err := s.db.Find(&badges).Error; err != nil {
		return nil, err
	}
	return badges, nil
}

func (s *badgeService) Award(userID uint, badgeCode string) error {
	badge, err := s.GetBadgeByCode(badgeCode)
	if err != nil {
		return err
	}

	var existing models.UserBadge
	err = s.db.Where("user_id = ? AND badge_id = ? AND revoked_at IS NULL", userID, badge.ID).First(&existing).Error
	if err == nil {
		return errors.New("badge_already_awarded")
	}

	award := &models.UserBadge{
		UserID:    userID,
		BadgeID:   badge.ID,
		AwardedAt: time.Now(),
	}
	return s.db.Create(award).Error
}

func (s *badgeService) RevokeAward(userID uint, badgeCode string) error {
	badge, err := s.GetBadgeByCode(badgeCode)
	if err != nil {
		return err
	}

	now := time.Now()
	result := s.db.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ? AND revoked_at IS NULL", userID, badge.ID).
		Update("revoked_at", &now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("award_not_found")
	}
	return nil
}

func (s *badgeService) ActiveEntitlements(userID uint) ([]string, error) {
	var codes []string
	err := s.db.Model(&models.UserBadge{}).
		Select("badges.code").
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("user_badges.user_id = ? AND user_badges.revoked_at IS NULL", userID).
		Order("badges.code").
		Pluck("badges.code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}
