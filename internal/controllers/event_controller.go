package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
)

type EventController struct {
	events services.EventService
}

func NewEventController(events services.EventService) *EventController {
	return &EventController{events: events}
}

type eventRequest struct {
	GroupID     uint       `json:"group_id" binding:"required"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    time.Time  `json:"starts_at" binding:"required"`
	EndsAt      *time.Time `json:"ends_at"`
}

// ListEvents godoc
// @Summary List events, optionally filtered by group
// @Tags Events
// @Produce json
// @Param group_id query int false "Filter by group ID"
// @Success 200 {array} models.Event
// @Security BearerAuth
// @Router /api/v1/protected/events [get]
func (ec *EventController) ListEvents(c *gin.Context) {
	var (
		events []models.Event
		err    error
	)
	if raw := c.Query("group_id"); raw != "" {
		groupID, parseErr := strconv.ParseUint(raw, 10, 32)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid group_id"))
			return
		}
		events, err = ec.events.ListEventsByGroup(uint(groupID))
	} else {
		events, err = ec.events.ListEvents()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to list events"))
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetEvent godoc
// @Summary Get an event by ID
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} models.Event
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/events/{id} [get]
func (ec *EventController) GetEvent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid event ID"))
		return
	}

	event, err := ec.events.GetEventByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Event not found"))
		return
	}
	c.JSON(http.StatusOK, event)
}

// CreateEvent godoc
// @Summary Create an event
// @Tags Events
// @Accept json
// @Produce json
// @Param event body eventRequest true "Event details"
// @Success 201 {object} models.Event
// @Failure 400 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/events [post]
func (ec *EventController) CreateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	event := &models.Event{
		GroupID:     req.GroupID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}
	if err := ec.events.CreateEvent(event); err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to create event"))
		return
	}
	c.JSON(http.StatusCreated, event)
}

// UpdateEvent godoc
// @Summary Update an event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param event body eventRequest true "Event details"
// @Success 200 {object} models.Event
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/events/{id} [put]
func (ec *EventController) UpdateEvent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid event ID"))
		return
	}

	event, err := ec.events.GetEventByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Event not found"))
		return
	}

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	event.GroupID = req.GroupID
	event.Title = req.Title
	event.Description = req.Description
	event.Location = req.Location
	event.StartsAt = req.StartsAt
	event.EndsAt = req.EndsAt
	if err := ec.events.UpdateEvent(event); err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to update event"))
		return
	}
	c.JSON(http.StatusOK, event)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 204
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/events/{id} [delete]
func (ec *EventController) DeleteEvent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid event ID"))
		return
	}

	if err := ec.events.DeleteEvent(uint(id)); err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Event not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
