package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/middleware"
	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
)

// ClientController manages developer-portal OAuth clients. All routes require
// an authenticated owner; ownership is enforced on every mutation.
type ClientController struct {
	clients  services.ClientService
	registry *auth.ClientRegistry
}

func NewClientController(clients services.ClientService, registry *auth.ClientRegistry) *ClientController {
	return &ClientController{clients: clients, registry: registry}
}

type createClientRequest struct {
	Name        string `json:"name" binding:"required"`
	RedirectURI string `json:"redirect_uri" binding:"required,url"`
	Scopes      string `json:"scopes"`
	Public      bool   `json:"public"`
}

type clientResponse struct {
	ClientID                string `json:"client_id"`
	Name                    string `json:"name"`
	RedirectURI             string `json:"redirect_uri"`
	Scopes                  string `json:"scopes,omitempty"`
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method"`
	ClientSecret            string `json:"client_secret,omitempty"`
}

func toClientResponse(client *models.OAuthClient) clientResponse {
	method := client.TokenEndpointAuthMethod
	if method == "" {
		method = models.AuthMethodClientPost
	}
	return clientResponse{
		ClientID:                client.ID,
		Name:                    client.Name,
		RedirectURI:             client.RedirectURI,
		Scopes:                  client.Scopes,
		TokenEndpointAuthMethod: method,
	}
}

// CreateClient godoc
// @Summary Create a developer-portal OAuth client
// @Description Creates a client owned by the authenticated user; the secret is returned exactly once
// @Tags Clients
// @Accept json
// @Produce json
// @Param client body createClientRequest true "Client details"
// @Success 201 {object} clientResponse
// @Failure 400 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients [post]
func (cc *ClientController) CreateClient(c *gin.Context) {
	result := middleware.GetAuthResult(c)

	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	origin, err := redirectOrigin(req.RedirectURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, "redirect_uri must be an absolute URL"))
		return
	}

	client := &models.OAuthClient{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Domain:      origin,
		UserID:      result.User.ID,
		Scopes:      req.Scopes,
		GrantTypes:  "authorization_code refresh_token",
		RedirectURI: req.RedirectURI,
	}

	var plainSecret string
	if req.Public {
		client.TokenEndpointAuthMethod = models.AuthMethodNone
	} else {
		client.TokenEndpointAuthMethod = models.AuthMethodClientPost
		var hash string
		plainSecret, hash, err = auth.NewClientSecret()
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to generate client secret"))
			return
		}
		client.Secret = hash
	}

	if err := cc.clients.CreateClient(client); err != nil {
		c.JSON(http.StatusConflict, models.NewAPIError(models.ErrConflict, "Client already exists"))
		return
	}

	ownerID := result.User.ID
	name := req.Name
	if err := cc.registry.Register(client.ID, models.ClientSourcePortal, &ownerID, &name); err != nil {
		log.WithFields(log.Fields{"client_id": client.ID, "error": err.Error()}).Warn("Failed to record client registration")
	}

	response := toClientResponse(client)
	response.ClientSecret = plainSecret
	c.JSON(http.StatusCreated, response)
}

// ListClients godoc
// @Summary List the authenticated user's OAuth clients
// @Tags Clients
// @Produce json
// @Success 200 {array} clientResponse
// @Security BearerAuth
// @Router /api/v1/protected/clients [get]
func (cc *ClientController) ListClients(c *gin.Context) {
	result := middleware.GetAuthResult(c)

	clients, err := cc.clients.GetClientsByUserID(result.User.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to list clients"))
		return
	}

	responses := make([]clientResponse, 0, len(clients))
	for i := range clients {
		responses = append(responses, toClientResponse(&clients[i]))
	}
	c.JSON(http.StatusOK, responses)
}

// RotateSecret godoc
// @Summary Rotate a client secret
// @Description Replaces the client secret; old credentials stop working immediately
// @Tags Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 200 {object} clientResponse
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id}/secret [post]
func (cc *ClientController) RotateSecret(c *gin.Context) {
	result := middleware.GetAuthResult(c)
	clientID := c.Param("id")

	client, err := cc.clients.GetClientByID(clientID)
	if err != nil || client.UserID != result.User.ID {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Client not found"))
		return
	}
	if client.IsPublic() {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "Public clients do not hold a secret"))
		return
	}

	plainSecret, hash, err := auth.NewClientSecret()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to generate client secret"))
		return
	}
	if err := cc.clients.UpdateSecret(clientID, result.User.ID, hash); err != nil {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Client not found"))
		return
	}

	client.Secret = hash
	response := toClientResponse(client)
	response.ClientSecret = plainSecret
	c.JSON(http.StatusOK, response)
}

// DeleteClient godoc
// @Summary Delete an OAuth client
// @Description Removes the client and revokes every code and token issued to it
// @Tags Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 204
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id} [delete]
func (cc *ClientController) DeleteClient(c *gin.Context) {
	result := middleware.GetAuthResult(c)
	clientID := c.Param("id")

	client, err := cc.clients.GetClientByID(clientID)
	if err != nil || client.UserID != result.User.ID {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrNotFound, "Client not found"))
		return
	}

	if err := cc.registry.Deregister(c.Request.Context(), clientID); err != nil {
		log.WithFields(log.Fields{"client_id": clientID, "error": err.Error()}).Error("Failed to delete client")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to delete client"))
		return
	}
	c.Status(http.StatusNoContent)
}
