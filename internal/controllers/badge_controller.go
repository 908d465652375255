package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
)

type BadgeController struct {
	badges services.BadgeService
}

func NewBadgeController(badges services.BadgeService) *BadgeController {
	return &BadgeController{badges: badges}
}

type badgeRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type awardRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// ListBadges godoc
// @Summary List badge definitions
// @Tags Badges
// @Produce json
// @Success 200 {array} models.Badge
// @Security BearerAuth
// @Router /api/v1/protected/badges [get]
func (bc *BadgeController) ListBadges(c *gin.Context) {
	badges, err := bc.badges.ListBadges()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to list badges"))
		return
	}
	c.JSON(http.StatusOK, badges)
}

// CreateBadge godoc
// @Summary Create a badge definition
// @Tags Badges
// @Accept json
// @Produce json
// @Param badge body badgeRequest true "Badge details"
// @Success 201 {object} models.Badge
// @Failure 409 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/badges [post]
func (bc *BadgeController) CreateBadge(c *gin.Context) {
	var req badgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	badge := &models.Badge{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := bc.badges.CreateBadge(badge); err != nil {
		c.JSON(http.StatusConflict, models.NewAPIError(models.ErrConflict, "A badge with this code already exists"))
		return
	}
	c.JSON(http.StatusCreated, badge)
}

// AwardBadge godoc
// @Summary Award a badge to a user
// @Tags Badges
// @Accept json
// @Produce json
// @Param code path string true "Badge code"
// @Param award body awardRequest true "Recipient"
// @Success 204
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/badges/{code}/awards [post]
func (bc *BadgeController) AwardBadge(c *gin.Context) {
	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	if err := bc.badges.Award(req.UserID, c.Param("code")); err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

// RevokeBadge godoc
// @Summary Revoke a badge award
// @Description Marks the award revoked; the user's entitlements no longer include the badge
// @Tags Badges
// @Produce json
// @Param code path string true "Badge code"
// @Param user_id path int true "User ID"
// @Success 204
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/badges/{code}/awards/{user_id} [delete]
func (bc *BadgeController) RevokeBadge(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid user ID"))
		return
	}

	if err := bc.badges.RevokeAward(uint(userID), c.Param("code")); err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}
