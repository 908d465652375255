package controllers

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/config"
	"github.com/gatherhq/gather-api/internal/middleware"
	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testSigningJWK(t *testing.T) string {
	t.Helper()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwk := jose.JSONWebKey{Key: rsaKey, KeyID: "test-key", Algorithm: "RS256", Use: "sig"}
	raw, err := jwk.MarshalJSON()
	require.NoError(t, err)
	return string(raw)
}

type testApp struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.PersonalAccessToken{},
		&models.OAuthClient{},
		&models.OAuthClientRecord{},
		&models.OAuthCode{},
		&models.OAuthToken{},
		&models.Group{},
		&models.Event{},
		&models.Badge{},
		&models.UserBadge{},
	))

	cfg := &config.Config{
		APIHost:    "api.gather.test",
		PublicHost: "gather.test",
		JWTSecret:  "test-jwt-secret-key-32-characters",
		SessionTTL: time.Hour,
	}

	userService := services.NewUserService(db)
	sessionService := services.NewSessionService(db)
	patService := services.NewPatService(db)
	clientService := services.NewClientService(db)
	groupService := services.NewGroupService(db)
	eventService := services.NewEventService(db)
	badgeService := services.NewBadgeService(db)

	oauthService := auth.NewOAuthService(db, cfg.JWTSecret)
	resolver := auth.NewResolver(sessionService, patService, userService, oauthService)
	guard := auth.NewPkceGuard(oauthService.LookupClient)
	registry := auth.NewClientRegistry(db, oauthService)
	keys := auth.LoadSigningKeys(testSigningJWK(t))
	require.NotNil(t, keys)
	idTokens := auth.NewIdTokenIssuer(keys, oauthService, oauthService, userService, badgeService, cfg.IssuerForHost)

	authController := NewAuthController(userService, sessionService, cfg.SessionTTL)
	oauthController := NewOAuthController(cfg, oauthService, guard, idTokens, registry, keys, clientService, badgeService)
	clientController := NewClientController(clientService, registry)
	patController := NewPatController(patService)
	groupController := NewGroupController(groupService)
	eventController := NewEventController(eventService)
	badgeController := NewBadgeController(badgeService)

	router := gin.New()
	router.Use(middleware.Authenticate(resolver))

	router.GET("/.well-known/openid-configuration", oauthController.Discovery)
	router.GET("/.well-known/jwks.json", oauthController.JWKS)

	oauthGroup := router.Group("/oauth")
	{
		oauthGroup.GET("/authorize", oauthController.Authorize)
		oauthGroup.POST("/authorize", oauthController.ApproveAuthorization)
		oauthGroup.POST("/token", oauthController.Token)
		oauthGroup.POST("/register", oauthController.RegisterClient)
		oauthGroup.GET("/userinfo", oauthController.UserInfo)
		oauthGroup.POST("/userinfo", oauthController.UserInfo)
	}

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", authController.Signup)
			authGroup.POST("/login", authController.Login)
			authGroup.POST("/logout", authController.Logout)
		}

		protectedApi := v1.Group("/protected")
		protectedApi.Use(middleware.RequireAuth())
		{
			protectedApi.GET("/me", authController.Me)
			protectedApi.GET("/clients", clientController.ListClients)
			protectedApi.POST("/clients", clientController.CreateClient)
			protectedApi.POST("/clients/:id/secret", clientController.RotateSecret)
			protectedApi.DELETE("/clients/:id", clientController.DeleteClient)
			protectedApi.GET("/tokens", patController.ListTokens)
			protectedApi.POST("/tokens", patController.CreateToken)
			protectedApi.DELETE("/tokens/:id", patController.RevokeToken)
			protectedApi.GET("/events", middleware.RequireScope(auth.ScopeReadEvents), eventController.ListEvents)
			protectedApi.POST("/events", middleware.RequireScope(auth.ScopeManageEvents), eventController.CreateEvent)
			protectedApi.GET("/groups", middleware.RequireScope(auth.ScopeReadGroups), groupController.ListGroups)
			protectedApi.GET("/badges", middleware.RequireScope(auth.ScopeReadBadges), badgeController.ListBadges)
		}
	}

	return &testApp{router: router, db: db}
}

func (a *testApp) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	a.router.ServeHTTP(recorder, req)
	return recorder
}

func (a *testApp) doJSON(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return a.do(t, req)
}

func (a *testApp) doForm(t *testing.T, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return a.do(t, req)
}

// signupAndLogin registers a user and returns the session cookie
func (a *testApp) signupAndLogin(t *testing.T, username string) *http.Cookie {
	t.Helper()

	signup := `{"username":"` + username + `","email":"` + username + `@gather.test","name":"Test ` + username + `","password":"correct-horse-battery"}`
	recorder := a.doJSON(t, http.MethodPost, "/api/v1/auth/signup", signup, nil)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	login := `{"username":"` + username + `","password":"correct-horse-battery"}`
	recorder = a.doJSON(t, http.MethodPost, "/api/v1/auth/login", login, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == auth.SessionCookieName {
			require.NotEmpty(t, cookie.Value)
			return cookie
		}
	}
	t.Fatal("login response did not set the session cookie")
	return nil
}

// createPortalClient creates a developer-portal client and returns its response payload
func (a *testApp) createPortalClient(t *testing.T, cookie *http.Cookie, public bool) map[string]interface{} {
	t.Helper()

	body := `{"name":"Test App","redirect_uri":"http://localhost:9000/callback","scopes":"openid user read:events"`
	if public {
		body += `,"public":true`
	}
	body += `}`

	recorder := a.doJSON(t, http.MethodPost, "/api/v1/protected/clients", body, cookie)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}

func TestDiscoveryDocument(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	req.Host = "api.gather.test"
	recorder := app.do(t, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &doc))

	assert.Equal(t, "https://gather.test", doc["issuer"], "API host requests advertise the public issuer")
	assert.Equal(t, "https://gather.test/oauth/authorize", doc["authorization_endpoint"])
	assert.Equal(t, "https://gather.test/oauth/token", doc["token_endpoint"])
	assert.Equal(t, "https://gather.test/oauth/register", doc["registration_endpoint"])
	assert.Equal(t, []interface{}{"code"}, doc["response_types_supported"])
	assert.Equal(t, []interface{}{"authorization_code", "refresh_token"}, doc["grant_types_supported"])
	assert.Equal(t, []interface{}{"S256"}, doc["code_challenge_methods_supported"])

	scopes, ok := doc["scopes_supported"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "openid", scopes[0], "openid leads the supported scopes")

	seen := map[string]bool{}
	for _, s := range scopes {
		name := s.(string)
		assert.False(t, seen[name], "scopes_supported must not contain duplicates: %s", name)
		seen[name] = true
	}
	for _, want := range []string{"profile", "email", "offline_access", "read:events", "admin"} {
		assert.True(t, seen[want], "missing scope %s", want)
	}
}

func TestDiscoveryHonorsRequestHost(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	req.Host = "other.gather.test"
	recorder := app.do(t, req)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &doc))
	assert.Equal(t, "https://other.gather.test", doc["issuer"])
}

func TestJWKSServesPublicKey(t *testing.T) {
	app := newTestApp(t)

	recorder := app.do(t, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var doc struct {
		Keys []map[string]interface{} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "test-key", doc.Keys[0]["kid"])
	assert.Equal(t, "RSA", doc.Keys[0]["kty"])
	assert.NotContains(t, doc.Keys[0], "d", "JWKS must never expose private material")
}

func TestSessionLoginLogout(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signupAndLogin(t, "alice")

	recorder := app.doJSON(t, http.MethodGet, "/api/v1/protected/me", "", cookie)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"username":"alice"`)

	// Wrong password is rejected without leaking which part was wrong
	recorder = app.doJSON(t, http.MethodPost, "/api/v1/auth/login", `{"username":"alice","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(cookie)
	recorder = app.do(t, req)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = app.doJSON(t, http.MethodGet, "/api/v1/protected/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code, "logged-out session must stop working")
}

func TestPatScopeEnforcement(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signupAndLogin(t, "bob")

	recorder := app.doJSON(t, http.MethodPost, "/api/v1/protected/tokens",
		`{"name":"ci","scopes":["read:events"]}`, cookie)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	plaintext, _ := created["token"].(string)
	require.True(t, strings.HasPrefix(plaintext, auth.PatPrefix))

	bearer := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+plaintext)
		return app.do(t, req)
	}

	assert.Equal(t, http.StatusOK, bearer("/api/v1/protected/events").Code)

	forbidden := bearer("/api/v1/protected/groups")
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Contains(t, forbidden.Body.String(), "insufficient_scope")
	assert.Contains(t, forbidden.Body.String(), "read:groups")

	// Unknown scopes are rejected at creation
	recorder = app.doJSON(t, http.MethodPost, "/api/v1/protected/tokens",
		`{"name":"bad","scopes":["read:unicorns"]}`, cookie)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAuthorizationCodeFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signupAndLogin(t, "carol")
	client := app.createPortalClient(t, cookie, false)

	clientID := client["client_id"].(string)
	clientSecret := client["client_secret"].(string)
	require.True(t, strings.HasPrefix(clientSecret, auth.ClientSecretPrefix))

	// Step 1: consent payload
	authorizeURL := "/oauth/authorize?response_type=code&client_id=" + clientID +
		"&redirect_uri=" + url.QueryEscape("http://localhost:9000/callback") +
		"&scope=" + url.QueryEscape("openid user") + "&state=st-123"
	req := httptest.NewRequest(http.MethodGet, authorizeURL, nil)
	req.AddCookie(cookie)
	recorder := app.do(t, req)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var consent map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &consent))
	assert.Equal(t, clientID, consent["client_id"])
	assert.Equal(t, "Test App", consent["client_name"])
	assert.NotContains(t, consent, "warnings", "confidential client needs no PKCE warning")

	// Step 2: approval issues the code
	form := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {"http://localhost:9000/callback"},
		"scope":         {"openid user"},
		"state":         {"st-123"},
		"approve":       {"true"},
		"nonce":         {"n-123"},
	}
	recorder = app.doForm(t, "/oauth/authorize", form, cookie)
	require.Equal(t, http.StatusFound, recorder.Code, recorder.Body.String())

	location, err := url.Parse(recorder.Header().Get("Location"))
	require.NoError(t, err)
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, "st-123", location.Query().Get("state"))

	// Step 3: code exchange
	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
		"redirect_uri":  {"http://localhost:9000/callback"},
	}
	recorder = app.doForm(t, "/oauth/token", tokenForm, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Equal(t, "no-store", recorder.Header().Get("Cache-Control"))

	var tokens map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &tokens))
	accessToken, _ := tokens["access_token"].(string)
	require.NotEmpty(t, accessToken)
	assert.NotEmpty(t, tokens["refresh_token"])
	assert.Equal(t, "Bearer", tokens["token_type"])

	// openid grant with signing keys configured yields an id_token
	idToken, _ := tokens["id_token"].(string)
	require.NotEmpty(t, idToken, "openid grant must carry an id_token")
	assert.Equal(t, 3, len(strings.Split(idToken, ".")))

	// Step 4: the access token works at userinfo; user scope implies user:email
	req = httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	recorder = app.do(t, req)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &claims))
	assert.Equal(t, "carol", claims["preferred_username"])
	assert.Equal(t, "carol@gather.test", claims["email"])

	// Step 5: the completed grant marks the client as used
	var record models.OAuthClientRecord
	require.NoError(t, app.db.First(&record, "client_id = ?", clientID).Error)
	require.Eventually(t, func() bool {
		app.db.First(&record, "client_id = ?", clientID)
		return record.LastGrantAt != nil
	}, 2*time.Second, 10*time.Millisecond, "grant usage is recorded asynchronously")

	// Step 6: refresh rotation
	refreshForm := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"refresh_token": {tokens["refresh_token"].(string)},
	}
	recorder = app.doForm(t, "/oauth/token", refreshForm, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var rotated map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &rotated))
	assert.NotEqual(t, accessToken, rotated["access_token"])
}

func TestPublicClientRequiresPkceAtCompletion(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signupAndLogin(t, "dave")
	client := app.createPortalClient(t, cookie, true)
	clientID := client["client_id"].(string)
	assert.NotContains(t, client, "client_secret", "public clients get no secret")

	// Parse-time check is advisory: the consent payload still renders, with a warning
	authorizeURL := "/oauth/authorize?response_type=code&client_id=" + clientID +
		"&redirect_uri=" + url.QueryEscape("http://localhost:9000/callback") + "&scope=user"
	req := httptest.NewRequest(http.MethodGet, authorizeURL, nil)
	req.AddCookie(cookie)
	recorder := app.do(t, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var consent map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &consent))
	warnings, _ := consent["warnings"].([]interface{})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "code_challenge")

	// Completion fails closed with HTTP 400
	form := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {"http://localhost:9000/callback"},
		"scope":         {"user"},
		"approve":       {"true"},
	}
	recorder = app.doForm(t, "/oauth/authorize", form, cookie)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "pkce_required")
	assert.Contains(t, recorder.Body.String(), "PKCE")
}

func TestDynamicClientRegistration(t *testing.T) {
	app := newTestApp(t)

	body := `{"client_name":"CLI Tool","redirect_uris":["http://127.0.0.1:8765/callback"],"scope":"user read:events"}`
	recorder := app.doJSON(t, http.MethodPost, "/oauth/register", body, nil)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	clientID, _ := payload["client_id"].(string)
	require.NotEmpty(t, clientID)
	secret, _ := payload["client_secret"].(string)
	assert.True(t, strings.HasPrefix(secret, auth.ClientSecretPrefix))

	var record models.OAuthClientRecord
	require.NoError(t, app.db.First(&record, "client_id = ?", clientID).Error)
	assert.Equal(t, models.ClientSourceDynamic, record.Source)
	assert.Nil(t, record.OwnerID)
	assert.Nil(t, record.LastGrantAt)

	// Public registration skips the secret
	body = `{"client_name":"SPA","redirect_uris":["http://127.0.0.1:8765/callback"],"token_endpoint_auth_method":"none"}`
	recorder = app.doJSON(t, http.MethodPost, "/oauth/register", body, nil)
	require.Equal(t, http.StatusCreated, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.NotContains(t, payload, "client_secret")

	// Missing redirect URIs are rejected
	recorder = app.doJSON(t, http.MethodPost, "/oauth/register", `{"client_name":"Broken"}`, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestTokenEndpointErrors(t *testing.T) {
	app := newTestApp(t)

	recorder := app.doForm(t, "/oauth/token", url.Values{"grant_type": {"password"}}, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "unsupported_grant_type")

	recorder = app.doForm(t, "/oauth/token", url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {"ghost"},
		"code":       {"bogus"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestClientDeletionRevokesTokens(t *testing.T) {
	app := newTestApp(t)
	cookie := app.signupAndLogin(t, "erin")
	client := app.createPortalClient(t, cookie, false)
	clientID := client["client_id"].(string)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/protected/clients/"+clientID, nil)
	req.AddCookie(cookie)
	recorder := app.do(t, req)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	var clients, records int64
	app.db.Model(&models.OAuthClient{}).Count(&clients)
	app.db.Model(&models.OAuthClientRecord{}).Count(&records)
	assert.Zero(t, clients)
	assert.Zero(t, records)
}

func TestUserinfoRejectsAnonymous(t *testing.T) {
	app := newTestApp(t)

	recorder := app.do(t, httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Header().Get("WWW-Authenticate"), "invalid_token")
}
