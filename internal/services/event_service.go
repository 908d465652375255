package services

import (
	"errors"

	"github.com/gatherhq/gather-api/internal/models"
	"gorm.io/gorm"
)

type EventService interface {
	CreateEvent(event *models.Event) error
	GetEventByID(id uint) (*models.Event, error)
	ListEvents() ([]models.Event, error)
	ListEventsByGroup(groupID uint) ([]models.Event, error)
	UpdateEvent(event *models.Event) error
	DeleteEvent(id uint) error
}

type eventService struct {
	db *gorm.DB
}

func NewEventService(db *gorm.DB) EventService {
	return &eventService{db: db}
}

func (s *eventService) CreateEvent(event *models.Event) error {
	return s.db.Create(event).Error
}

func (s *eventService) GetEventByID(id uint) (*models.Event, error) {
	var event models.Event
	if err := s.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *eventService) ListEvents() ([]models.Event, error) {
	var events []models.Event
	if err := s.db.Order("starts_at").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *eventService) ListEventsByGroup(groupID uint) ([]models.Event, error) {
	var events []models.Event
	if err := s.db.Where("group_id = ?", groupID).Order("starts_at").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *eventService) UpdateEvent(event *models.Event) error {
	return s.db.Save(event).Error
}

func (s *eventService) DeleteEvent(id uint) error {
	result := s.db.Delete(&models.Event{}, id)
	if result.RowsAffected == 0 {
		return errors.New("event_not_found")
	}
	return result.Error
}
