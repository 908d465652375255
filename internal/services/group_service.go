package services

import (
	"errors"

	"github.com/gatherhq/gather-api/internal/models"
	"gorm.io/gorm"
)

type GroupService interface {
	CreateGroup(group *models.Group) error
	GetGroupByID(id uint) (*models.Group, error)
	GetGroupBySlug(slug string) (*models.Group, error)
	ListGroups() ([]models.Group, error)
	UpdateGroup(group *models.Group) error
	DeleteGroup(id uint) error
}

type groupService struct {
	db *gorm.DB
}

func NewGroupService(db *gorm.DB) GroupService {
	return &groupService{db: db}
}

func (s *groupService) CreateGroup(group *models.Group) error {
	var existing models.Group
	if err := s.db.Where("slug = ?", group.Slug).First(&existing).Error; err == nil {
		return errors.New("group_already_exists")
	}
	return s.db.Create(group).Error
}

func (s *groupService) GetGroupByID(id uint) (*models.Group, error) {
	var group models.Group
	if err := s.db.First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *groupService) GetGroupBySlug(slug string) (*models.Group, error) {
	var group models.Group
	if err := s.db.Where("slug = ?", slug).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *groupService) ListGroups() ([]models.Group, error) {
	var groups []models.Group
	if err := s.db.Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *groupService) UpdateGroup(group *models.Group) error {
	return s.db.Save(group).Error
}

func (s *groupService) DeleteGroup(id uint) error {
	result := s.db.Delete(&models.Group{}, id)
	if result.RowsAffected == 0 {
		return errors.New("group_not_found")
	}
	return result.Error
}
