package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-oauth2/oauth2/v4"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/config"
	"github.com/gatherhq/gather-api/internal/middleware"
	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
)

// OAuthController exposes the OAuth/OIDC surface: discovery, JWKS, userinfo,
// authorization, token exchange and dynamic client registration.
type OAuthController struct {
	cfg      *config.Config
	oauth    *auth.OAuthService
	guard    *auth.PkceGuard
	issuer   *auth.IdTokenIssuer
	registry *auth.ClientRegistry
	keys     *auth.SigningKeys
	clients  services.ClientService
	badges   services.BadgeService
}

func NewOAuthController(cfg *config.Config, oauthService *auth.OAuthService, guard *auth.PkceGuard, issuer *auth.IdTokenIssuer, registry *auth.ClientRegistry, keys *auth.SigningKeys, clients services.ClientService, badges services.BadgeService) *OAuthController {
	return &OAuthController{
		cfg:      cfg,
		oauth:    oauthService,
		guard:    guard,
		issuer:   issuer,
		registry: registry,
		keys:     keys,
		clients:  clients,
		badges:   badges,
	}
}

// Discovery godoc
// @Summary OIDC discovery document
// @Description Standard OpenID Connect provider metadata
// @Tags OAuth2
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /.well-known/openid-configuration [get]
func (oc *OAuthController) Discovery(c *gin.Context) {
	issuer := oc.cfg.IssuerForHost(c.Request.Host)

	c.JSON(http.StatusOK, gin.H{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/oauth/authorize",
		"token_endpoint":                        issuer + "/oauth/token",
		"registration_endpoint":                 issuer + "/oauth/register",
		"userinfo_endpoint":                     issuer + "/oauth/userinfo",
		"jwks_uri":                              issuer + "/.well-known/jwks.json",
		"scopes_supported":                      supportedScopes(),
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{models.AuthMethodClientPost, models.AuthMethodNone},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

// supportedScopes begins with openid, then the native scopes plus the OIDC
// aliases profile, email and offline_access, without duplicates.
func supportedScopes() []string {
	scopes := []string{"openid"}
	seen := map[string]bool{"openid": true}
	for _, s := range append(auth.KnownScopes(), "profile", "email", "offline_access") {
		if !seen[s] {
			seen[s] = true
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// JWKS godoc
// @Summary JSON Web Key Set
// @Description Public signing keys for ID token verification; empty when no key is configured
// @Tags OAuth2
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /.well-known/jwks.json [get]
func (oc *OAuthController) JWKS(c *gin.Context) {
	c.JSON(http.StatusOK, oc.keys.JWKSDocument())
}

// UserInfo godoc
// @Summary OIDC userinfo endpoint
// @Description Returns the authenticated user's claims; email visibility honors the user:email scope
// @Tags OAuth2
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} models.OAuth2Error
// @Security BearerAuth
// @Router /oauth/userinfo [get]
func (oc *OAuthController) UserInfo(c *gin.Context) {
	result := middleware.GetAuthResult(c)
	if result == nil {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "The access token is missing, expired or malformed",
		})
		return
	}

	includeEmail := result.SessionBypass() || result.HasScope(auth.ScopeUserEmail)
	entitlements, err := oc.badges.ActiveEntitlements(result.User.ID)
	if err != nil {
		log.WithFields(log.Fields{"user_id": result.User.ID, "error": err.Error()}).Warn("Entitlement lookup failed for userinfo")
		entitlements = nil
	}

	issuer := oc.cfg.IssuerForHost(c.Request.Host)
	c.JSON(http.StatusOK, auth.BuildUserClaims(result.User, issuer, entitlements, includeEmail))
}

// Authorize godoc
// @Summary Begin an authorization code flow
// @Description Validates the authorization request and returns the consent payload for the approval screen
// @Tags OAuth2
// @Produce json
// @Param response_type query string true "Must be code"
// @Param client_id query string true "Client ID"
// @Param redirect_uri query string false "Redirect URI"
// @Param scope query string false "Requested scopes, space separated"
// @Param state query string false "Opaque client state"
// @Param code_challenge query string false "PKCE code challenge"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.OAuth2Error
// @Router /oauth/authorize [get]
func (oc *OAuthController) Authorize(c *gin.Context) {
	req, err := oc.oauth.ParseAuthRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidRequest, err.Error()))
		return
	}

	result := middleware.GetAuthResult(c)
	if result == nil || !result.SessionBypass() {
		loginURL := "/login?redirect=" + url.QueryEscape(c.Request.URL.String())
		c.Redirect(http.StatusFound, loginURL)
		return
	}

	consent := gin.H{
		"client_id":    req.ClientID,
		"redirect_uri": req.RedirectURI,
		"scope":        auth.SplitScopes(req.Scope),
		"state":        req.State,
	}
	if client, err := oc.clients.GetClientByID(req.ClientID); err == nil {
		consent["client_name"] = client.Name
	}

	// The parse-time PKCE check never blocks; it only annotates the consent
	// payload so the approval screen can warn the user
	if err := oc.guard.CheckParse(c.Request.Context(), req.ClientID, req.CodeChallenge); err != nil {
		consent["warnings"] = []string{err.Error()}
	}

	c.JSON(http.StatusOK, consent)
}

// ApproveAuthorization godoc
// @Summary Complete an authorization code flow
// @Description Applies the completion-time PKCE check, issues the authorization code and redirects back to the client
// @Tags OAuth2
// @Accept application/x-www-form-urlencoded
// @Produce json
// @Param client_id formData string true "Client ID"
// @Param approve formData string true "Set to true to approve the grant"
// @Success 302 {string} string "Redirect to the client with code and state"
// @Failure 400 {object} models.OAuth2Error
// @Router /oauth/authorize [post]
func (oc *OAuthController) ApproveAuthorization(c *gin.Context) {
	req, err := oc.oauth.ParseAuthRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidRequest, err.Error()))
		return
	}

	result := middleware.GetAuthResult(c)
	if result == nil || !result.SessionBypass() {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, models.NewOAuth2Error(models.ErrInvalidToken, "A browser session is required to approve an authorization"))
		return
	}

	if c.PostForm("approve") != "true" {
		oc.redirectWithError(c, req.RedirectURI, req.State, "access_denied", "The user denied the authorization request")
		return
	}

	// Defense in depth: the PKCE policy is re-checked immediately before the
	// grant is created and fails closed on engine errors
	if err := oc.guard.CheckComplete(c.Request.Context(), req.ClientID, req.CodeChallenge); err != nil {
		pkceErr, ok := err.(*auth.PkceError)
		if !ok {
			pkceErr = auth.ErrPkceRequired
		}
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(pkceErr.Code, pkceErr.Description))
		return
	}

	req.UserID = strconv.FormatUint(uint64(result.User.ID), 10)
	redirectTo, err := oc.oauth.CompleteAuthorization(c.Request.Context(), req, c.Request.FormValue("nonce"))
	if err != nil {
		log.WithFields(log.Fields{"client_id": req.ClientID, "error": err.Error()}).Error("Authorization completion failed")
		oc.redirectWithError(c, req.RedirectURI, req.State, "server_error", "Failed to issue the authorization code")
		return
	}

	// Usage bookkeeping must never delay or fail the redirect
	oc.registry.RecordGrantAsync(req.ClientID)

	c.Redirect(http.StatusFound, redirectTo)
}

func (oc *OAuthController) redirectWithError(c *gin.Context, redirectURI, state, code, description string) {
	redirect, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" {
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(code, description))
		return
	}
	query := redirect.Query()
	query.Set("error", code)
	query.Set("error_description", description)
	if state != "" {
		query.Set("state", state)
	}
	redirect.RawQuery = query.Encode()
	c.Redirect(http.StatusFound, redirect.String())
}

// Token godoc
// @Summary Token endpoint
// @Description Exchanges an authorization code or refresh token for tokens; eligible responses gain an id_token
// @Tags OAuth2
// @Accept application/x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "authorization_code or refresh_token"
// @Param client_id formData string true "Client ID"
// @Param client_secret formData string false "Client secret (confidential clients)"
// @Param code formData string false "Authorization code"
// @Param redirect_uri formData string false "Redirect URI used at authorization"
// @Param code_verifier formData string false "PKCE code verifier"
// @Param refresh_token formData string false "Refresh token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.OAuth2Error
// @Failure 401 {object} models.OAuth2Error
// @Router /oauth/token [post]
func (oc *OAuthController) Token(c *gin.Context) {
	grantType := c.PostForm("grant_type")

	switch grantType {
	case "authorization_code":
		oc.handleAuthorizationCode(c)
	case "refresh_token":
		oc.handleRefreshToken(c)
	default:
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrUnsupportedGrantType, "Supported grant types are authorization_code and refresh_token"))
	}
}

func (oc *OAuthController) handleAuthorizationCode(c *gin.Context) {
	ti, err := oc.oauth.ExchangeCode(
		c.Request.Context(),
		c.PostForm("client_id"),
		c.PostForm("client_secret"),
		c.PostForm("code"),
		c.PostForm("redirect_uri"),
		c.PostForm("code_verifier"),
	)
	if err != nil {
		oc.respondGrantError(c, err)
		return
	}
	oc.respondWithTokens(c, ti)
}

func (oc *OAuthController) handleRefreshToken(c *gin.Context) {
	ti, err := oc.oauth.RefreshToken(
		c.Request.Context(),
		c.PostForm("client_id"),
		c.PostForm("client_secret"),
		c.PostForm("refresh_token"),
	)
	if err != nil {
		oc.respondGrantError(c, err)
		return
	}
	oc.respondWithTokens(c, ti)
}

func (oc *OAuthController) respondGrantError(c *gin.Context, err error) {
	switch err {
	case oautherrors.ErrInvalidClient:
		c.JSON(http.StatusUnauthorized, models.NewOAuth2Error(models.ErrInvalidClient, "Client authentication failed"))
	case oautherrors.ErrInvalidAuthorizeCode, oautherrors.ErrInvalidRefreshToken, oautherrors.ErrExpiredRefreshToken:
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidGrant, "The grant is invalid, expired or revoked"))
	default:
		log.WithField("error", err.Error()).Warn("Token grant rejected")
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidGrant, err.Error()))
	}
}

// respondWithTokens writes the engine's token response, passed through the
// ID token issuer. The issuer either returns the body untouched or an
// augmented copy; status and headers are identical either way.
func (oc *OAuthController) respondWithTokens(c *gin.Context, ti oauth2.TokenInfo) {
	response := gin.H{
		"access_token": ti.GetAccess(),
		"token_type":   "Bearer",
		"expires_in":   int64(ti.GetAccessExpiresIn().Seconds()),
		"scope":        ti.GetScope(),
	}
	if ti.GetRefresh() != "" {
		response["refresh_token"] = ti.GetRefresh()
	}

	body, err := json.Marshal(response)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewOAuth2Error("server_error", "Failed to serialize the token response"))
		return
	}

	body = oc.issuer.Augment(c.Request, body)

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// RegisterClient godoc
// @Summary Dynamic client registration
// @Description RFC 7591 style registration; public clients must use token_endpoint_auth_method "none"
// @Tags OAuth2
// @Accept json
// @Produce json
// @Param registration body object{client_name=string,redirect_uris=[]string,token_endpoint_auth_method=string,scope=string} true "Client metadata"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.OAuth2Error
// @Router /oauth/register [post]
func (oc *OAuthController) RegisterClient(c *gin.Context) {
	var req struct {
		ClientName              string   `json:"client_name"`
		RedirectURIs            []string `json:"redirect_uris" binding:"required,min=1"`
		TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
		Scope                   string   `json:"scope"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidRequest, err.Error()))
		return
	}

	domain, err := redirectOrigin(req.RedirectURIs[0])
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error("invalid_redirect_uri", "redirect_uris must contain absolute http(s) URLs"))
		return
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = models.AuthMethodClientPost
	}

	client := &models.OAuthClient{
		ID:                      uuid.New().String(),
		Name:                    req.ClientName,
		Domain:                  domain,
		Scopes:                  req.Scope,
		GrantTypes:              "authorization_code refresh_token",
		RedirectURI:             req.RedirectURIs[0],
		TokenEndpointAuthMethod: authMethod,
	}

	var plainSecret string
	if authMethod != models.AuthMethodNone {
		var hash string
		plainSecret, hash, err = auth.NewClientSecret()
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.NewOAuth2Error("server_error", "Failed to generate a client secret"))
			return
		}
		client.Secret = hash
	}

	if err := oc.clients.CreateClient(client); err != nil {
		c.JSON(http.StatusConflict, models.NewOAuth2Error("invalid_client_metadata", "A client with this ID already exists"))
		return
	}

	name := req.ClientName
	if err := oc.registry.Register(client.ID, models.ClientSourceDynamic, nil, &name); err != nil {
		log.WithFields(log.Fields{"client_id": client.ID, "error": err.Error()}).Warn("Failed to record client registration")
	}

	response := gin.H{
		"client_id":                  client.ID,
		"client_name":                client.Name,
		"redirect_uris":              req.RedirectURIs[:1],
		"token_endpoint_auth_method": authMethod,
		"grant_types":                []string{"authorization_code", "refresh_token"},
	}
	if plainSecret != "" {
		// The plaintext secret is shown exactly once
		response["client_secret"] = plainSecret
	}
	c.JSON(http.StatusCreated, response)
}

func redirectOrigin(redirectURI string) (string, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.New("redirect uri must be absolute")
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}
