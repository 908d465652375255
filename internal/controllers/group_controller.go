package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gatherhq/gather-api/internal/middleware"
	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
)

type GroupController struct {
	groups services.GroupService
}

func NewGroupController(groups services.GroupService) *GroupController {
	return &GroupController{groups: groups}
}

type groupRequest struct {
	Slug        string `json:"slug" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// ListGroups godoc
// @Summary List groups
// @Tags Groups
// @Produce json
// @Success 200 {array} models.Group
// @Security BearerAuth
// @Router /api/v1/protected/groups [get]
func (gc *GroupController) ListGroups(c *gin.Context) {
	groups, err := gc.groups.ListGroups()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to list groups"))
		return
	}
	c.JSON(http.StatusOK, groups)
}

// GetGroup godoc
// @Summary Get a group by ID
// @Tags Groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} models.Group
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/groups/{id} [get]
func (gc *GroupController) GetGroup(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid group ID"))
		return
	}

	group, err := gc.groups.GetGroupByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Group not found"))
		return
	}
	c.JSON(http.StatusOK, group)
}

// CreateGroup godoc
// @Summary Create a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param group body groupRequest true "Group details"
// @Success 201 {object} models.Group
// @Failure 400 {object} models.APIError
// @Failure 409 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/groups [post]
func (gc *GroupController) CreateGroup(c *gin.Context) {
	result := middleware.GetAuthResult(c)

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	group := &models.Group{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     result.User.ID,
	}
	if err := gc.groups.CreateGroup(group); err != nil {
		c.JSON(http.StatusConflict, models.NewAPIError(models.ErrConflict, "A group with this slug already exists"))
		return
	}
	c.JSON(http.StatusCreated, group)
}

// UpdateGroup godoc
// @Summary Update a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param group body groupRequest true "Group details"
// @Success 200 {object} models.Group
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/groups/{id} [put]
func (gc *GroupController) UpdateGroup(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid group ID"))
		return
	}

	group, err := gc.groups.GetGroupByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Group not found"))
		return
	}

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	group.Slug = req.Slug
	group.Name = req.Name
	group.Description = req.Description
	if err := gc.groups.UpdateGroup(group); err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to update group"))
		return
	}
	c.JSON(http.StatusOK, group)
}

// DeleteGroup godoc
// @Summary Delete a group
// @Tags Groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 204
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/groups/{id} [delete]
func (gc *GroupController) DeleteGroup(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid group ID"))
		return
	}

	if err := gc.groups.DeleteGroup(uint(id)); err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Group not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
