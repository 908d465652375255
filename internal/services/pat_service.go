package services

import (
	"errors"
	"time"

	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/models"
	"gorm.io/gorm"
)

type PatService interface {
	// CreateToken mints a new PAT and returns the plaintext secret alongside
	// the persisted record. The plaintext is not recoverable afterwards.
	CreateToken(userID uint, name string, scopes []string, expiresAt *time.Time) (string, *models.PersonalAccessToken, error)
	GetByPlaintext(token string) (*models.PersonalAccessToken, error)
	ListByUser(userID uint) ([]models.PersonalAccessToken, error)
	Revoke(id uint, userID uint) error
	TouchLastUsed(id uint) error
}

type patService struct {
	db *gorm.DB
}

func NewPatService(db *gorm.DB) PatService {
	return &patService{db: db}
}

func (s *patService) CreateToken(userID uint, name string, scopes []string, expiresAt *time.Time) (string, *models.PersonalAccessToken, error) {
	plaintext, hash, err := auth.NewPersonalAccessToken()
	if err != nil {
		return "", nil, err
	}

	pat := &models.PersonalAccessToken{
		TokenHash: hash,
		UserID:    userID,
		Name:      name,
		Scopes:    auth.JoinScopes(scopes),
		ExpiresAt: expiresAt,
	}
	if err := s.db.Create(pat).Error; err != nil {
		return "", nil, err
	}
	return plaintext, pat, nil
}

func (s *patService) GetByPlaintext(token string) (*models.PersonalAccessToken, error) {
	var pat models.PersonalAccessToken
	if err := s.db.Where("token_hash = ?", auth.HashSecret(token)).First(&pat).Error; err != nil {
		return nil, err
	}
	return &pat, nil
}

func (s *patService) ListByUser(userID uint) ([]models.PersonalAccessToken, error) {
	var pats []models.PersonalAccessToken
	if err := s.db.Where("user_id = ?", userID).Find(&pats).Error; err != nil {
		return nil, err
	}
	return pats, nil
}

func (s *patService) Revoke(id uint, userID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.PersonalAccessToken{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("token_not_found")
	}
	return nil
}

func (s *patService) TouchLastUsed(id uint) error {
	now := time.Now()
	return s.db.Model(&models.PersonalAccessToken{}).Where("id = ?", id).Update("last_used_at", &now).Error
}
