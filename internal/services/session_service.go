package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gatherhq/gather-api/internal/models"
	"gorm.io/gorm"
)

type SessionService interface {
	CreateSession(userID uint, ttl time.Duration) (*models.Session, error)
	GetValidSession(token string) (*models.Session, error)
	DeleteSession(token string) error
	PurgeExpired() error
}

type sessionService struct {
	db *gorm.DB
}

func NewSessionService(db *gorm.DB) SessionService {
	return &sessionService{db: db}
}

func (s *sessionService) CreateSession(userID uint, ttl time.Duration) (*models.Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &models.Session{
		Token:     hex.EncodeToString(raw),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// GetValidSession returns the session only if it exists and has not expired.
// Expired sessions are indistinguishable from absent ones.
func (s *sessionService) GetValidSession(token string) (*models.Session, error) {
	var session models.Session
	if err := s.db.Where("token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, gorm.ErrRecordNotFound
	}
	return &session, nil
}

func (s *sessionService) DeleteSession(token string) error {
	return s.db.Where("token = ?", token).Delete(&models.Session{}).Error
}

func (s *sessionService) PurgeExpired() error {
	return s.db.Where("expires_at < ?", time.Now()).Delete(&models.Session{}).Error
}
