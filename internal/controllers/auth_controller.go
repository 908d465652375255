package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/middleware"
	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
)

// AuthController handles browser signup, login and logout. Successful login
// sets the session cookie the credential resolver recognizes.
type AuthController struct {
	users      services.UserService
	sessions   services.SessionService
	sessionTTL time.Duration
}

func NewAuthController(users services.UserService, sessions services.SessionService, sessionTTL time.Duration) *AuthController {
	return &AuthController{users: users, sessions: sessions, sessionTTL: sessionTTL}
}

type signupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=39"`
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
	}
}

// Signup godoc
// @Summary Register a new user account
// @Tags Auth
// @Accept json
// @Produce json
// @Param user body signupRequest true "Account details"
// @Success 201 {object} userResponse
// @Failure 400 {object} models.APIError
// @Failure 409 {object} models.APIError
// @Router /api/v1/auth/signup [post]
func (ac *AuthController) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to hash password"))
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         "user",
	}
	if err := ac.users.CreateUser(user); err != nil {
		c.JSON(http.StatusConflict, models.NewAPIError(models.ErrConflict, "Username or email already taken"))
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

// Login godoc
// @Summary Log in with username and password
// @Description Verifies the credentials and sets the session cookie
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body loginRequest true "Credentials"
// @Success 200 {object} userResponse
// @Failure 401 {object} models.APIError
// @Router /api/v1/auth/login [post]
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	user, err := ac.users.GetUserByUsername(req.Username)
	if err != nil {
		// Run the comparison anyway so missing users cost the same as bad passwords
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(req.Password))
		c.JSON(http.StatusUnauthorized, models.NewAPIError(models.ErrUnauthorized, "Invalid username or password"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, models.NewAPIError(models.ErrUnauthorized, "Invalid username or password"))
		return
	}

	session, err := ac.sessions.CreateSession(user.ID, ac.sessionTTL)
	if err != nil {
		log.WithFields(log.Fields{"user_id": user.ID, "error": err.Error()}).Error("Failed to create session")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to create session"))
		return
	}

	c.SetCookie(auth.SessionCookieName, session.Token, int(ac.sessionTTL.Seconds()), "/", "", true, true)
	c.JSON(http.StatusOK, toUserResponse(user))
}

// Logout godoc
// @Summary Log out the current session
// @Tags Auth
// @Produce json
// @Success 204
// @Router /api/v1/auth/logout [post]
func (ac *AuthController) Logout(c *gin.Context) {
	if token, err := c.Cookie(auth.SessionCookieName); err == nil && token != "" {
		if err := ac.sessions.DeleteSession(token); err != nil {
			log.WithField("error", err.Error()).Warn("Failed to delete session on logout")
		}
	}
	c.SetCookie(auth.SessionCookieName, "", -1, "/", "", true, true)
	c.Status(http.StatusNoContent)
}

// Me godoc
// @Summary Return the authenticated user
// @Tags Auth
// @Produce json
// @Success 200 {object} userResponse
// @Failure 401 {object} models.OAuth2Error
// @Security BearerAuth
// @Router /api/v1/protected/me [get]
func (ac *AuthController) Me(c *gin.Context) {
	result := middleware.GetAuthResult(c)
	c.JSON(http.StatusOK, toUserResponse(result.User))
}
