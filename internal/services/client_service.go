package services

import (
	"errors"

	"github.com/gatherhq/gather-api/internal/models"
	"gorm.io/gorm"
)

type ClientService interface {
	CreateClient(client *models.OAuthClient) error
	GetClientByID(id string) (*models.OAuthClient, error)
	GetClientsByUserID(userID uint) ([]models.OAuthClient, error)
	UpdateSecret(clientID string, userID uint, secretHash string) error
}

type clientService struct {
	db *gorm.DB
}

func NewClientService(db *gorm.DB) ClientService {
	return &clientService{db: db}
}

func (s *clientService) CreateClient(client *models.OAuthClient) error {
	var existing models.OAuthClient
	if err := s.db.Where("id = ?", client.ID).First(&existing).Error; err == nil {
		return errors.New("client_already_exists")
	}
	return s.db.Create(client).Error
}

func (s *clientService) GetClientByID(id string) (*models.OAuthClient, error) {
	var client models.OAuthClient
	if err := s.db.Where("id = ?", id).First(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *clientService) GetClientsByUserID(userID uint) ([]models.OAuthClient, error) {
	var clients []models.OAuthClient
	if err := s.db.Where("user_id = ?", userID).Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *clientService) UpdateSecret(clientID string, userID uint, secretHash string) error {
	result := s.db.Model(&models.OAuthClient{}).
		Where("id = ? AND user_id = ?", clientID, userID).
		Update("secret", secretHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("client_not_found")
	}
	return nil
}
