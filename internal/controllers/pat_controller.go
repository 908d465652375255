package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/middleware"
	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
)

// PatController manages personal access tokens for the authenticated user
type PatController struct {
	pats services.PatService
}

func NewPatController(pats services.PatService) *PatController {
	return &PatController{pats: pats}
}

type createTokenRequest struct {
	Name          string   `json:"name" binding:"required"`
	Scopes        []string `json:"scopes" binding:"required,min=1"`
	ExpiresInDays int      `json:"expires_in_days"`
}

type tokenResponse struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	Token      string     `json:"token,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toTokenResponse(pat *models.PersonalAccessToken) tokenResponse {
	return tokenResponse{
		ID:         pat.ID,
		Name:       pat.Name,
		Scopes:     auth.SplitScopes(pat.Scopes),
		ExpiresAt:  pat.ExpiresAt,
		LastUsedAt: pat.LastUsedAt,
		CreatedAt:  pat.CreatedAt,
	}
}

// CreateToken godoc
// @Summary Create a personal access token
// @Description Mints a token scoped to the given permissions; the plaintext is returned exactly once
// @Tags Tokens
// @Accept json
// @Produce json
// @Param token body createTokenRequest true "Token details"
// @Success 201 {object} tokenResponse
// @Failure 400 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/tokens [post]
func (pc *PatController) CreateToken(c *gin.Context) {
	result := middleware.GetAuthResult(c)

	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	for _, scope := range req.Scopes {
		if !auth.IsKnownScope(scope) {
			c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, "Unknown scope: "+scope))
			return
		}
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		at := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &at
	}

	plaintext, pat, err := pc.pats.CreateToken(result.User.ID, req.Name, req.Scopes, expiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to create token"))
		return
	}

	response := toTokenResponse(pat)
	response.Token = plaintext
	c.JSON(http.StatusCreated, response)
}

// ListTokens godoc
// @Summary List the authenticated user's personal access tokens
// @Tags Tokens
// @Produce json
// @Success 200 {array} tokenResponse
// @Security BearerAuth
// @Router /api/v1/protected/tokens [get]
func (pc *PatController) ListTokens(c *gin.Context) {
	result := middleware.GetAuthResult(c)

	pats, err := pc.pats.ListByUser(result.User.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to list tokens"))
		return
	}

	responses := make([]tokenResponse, 0, len(pats))
	for i := range pats {
		responses = append(responses, toTokenResponse(&pats[i]))
	}
	c.JSON(http.StatusOK, responses)
}

// RevokeToken godoc
// @Summary Revoke a personal access token
// @Tags Tokens
// @Produce json
// @Param id path int true "Token ID"
// @Success 204
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/tokens/{id} [delete]
func (pc *PatController) RevokeToken(c *gin.Context) {
	result := middleware.GetAuthResult(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Invalid token ID"))
		return
	}

	if err := pc.pats.Revoke(uint(id), result.User.ID); err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Token not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
