package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(router *gin.Engine) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	router.ServeHTTP(recorder, req)
	return recorder
}

// injectResult plants a pre-resolved credential the way Authenticate would
func injectResult(result *auth.Result) gin.HandlerFunc {
	return func(c *gin.Context) {
		if result != nil {
			c.Set(authResultKey, result)
		}
		c.Next()
	}
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func sessionResult() *auth.Result {
	return &auth.Result{
		User:   &models.User{ID: 1, Username: "alice", Role: "user"},
		Scopes: nil,
		Scheme: auth.SchemeSession,
	}
}

func patResult(scopes ...string) *auth.Result {
	return &auth.Result{
		User:   &models.User{ID: 2, Username: "bob", Role: "user"},
		Scopes: scopes,
		Scheme: auth.SchemePat,
	}
}

func TestRequireAuth(t *testing.T) {
	t.Run("unauthenticated request gets RFC 6750 401", func(t *testing.T) {
		router := gin.New()
		router.GET("/resource", injectResult(nil), RequireAuth(), okHandler)

		recorder := performRequest(router)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Contains(t, recorder.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
		assert.Contains(t, recorder.Body.String(), "invalid_token")
	})

	t.Run("authenticated request passes", func(t *testing.T) {
		router := gin.New()
		router.GET("/resource", injectResult(sessionResult()), RequireAuth(), okHandler)

		recorder := performRequest(router)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}

func TestRequireScope(t *testing.T) {
	t.Run("session bypasses scope checks", func(t *testing.T) {
		router := gin.New()
		router.GET("/resource", injectResult(sessionResult()), RequireScope("manage:badges"), okHandler)

		recorder := performRequest(router)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("covering scope passes", func(t *testing.T) {
		router := gin.New()
		router.GET("/resource", injectResult(patResult("manage:events")), RequireScope("read:events"), okHandler)

		recorder := performRequest(router)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("missing scope gets 403 naming the scope", func(t *testing.T) {
		router := gin.New()
		router.GET("/resource", injectResult(patResult("read:events")), RequireScope("manage:events"), okHandler)

		recorder := performRequest(router)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "insufficient_scope")
		assert.Contains(t, recorder.Body.String(), "manage:events")
		assert.Contains(t, recorder.Header().Get("WWW-Authenticate"), "manage:events")
	})

	t.Run("unauthenticated gets 401, not 403", func(t *testing.T) {
		router := gin.New()
		router.GET("/resource", injectResult(nil), RequireScope("read:events"), okHandler)

		recorder := performRequest(router)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestRequireRole(t *testing.T) {
	t.Run("matching role passes", func(t *testing.T) {
		admin := &auth.Result{User: &models.User{ID: 3, Role: "admin"}, Scheme: auth.SchemeSession}
		router := gin.New()
		router.GET("/resource", injectResult(admin), RequireRole("admin"), okHandler)

		recorder := performRequest(router)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("wrong role gets 403", func(t *testing.T) {
		router := gin.New()
		router.GET("/resource", injectResult(sessionResult()), RequireRole("admin"), okHandler)

		recorder := performRequest(router)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})
}

func TestGetAuthResult(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, GetAuthResult(c))

	c.Set(authResultKey, "not a result")
	assert.Nil(t, GetAuthResult(c))

	result := sessionResult()
	c.Set(authResultKey, result)
	assert.Equal(t, result, GetAuthResult(c))
}
