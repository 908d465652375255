package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gatherhq/gather-api/internal/auth"
)

// authResultKey is the gin context key carrying the resolved credential
const authResultKey = "authResult"

// Authenticate resolves the request credential (session cookie, PAT or OAuth
// bearer, in that order) and stores the result in the context. It never
// rejects: routes that demand authentication stack RequireAuth or
// RequireScope on top.
func Authenticate(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if result := resolver.Resolve(c.Request); result != nil {
			c.Set(authResultKey, result)
		}
		c.Next()
	}
}

// GetAuthResult returns the resolved credential, or nil when the request is
// unauthenticated
func GetAuthResult(c *gin.Context) *auth.Result {
	value, exists := c.Get(authResultKey)
	if !exists {
		return nil
	}
	result, ok := value.(*auth.Result)
	if !ok {
		return nil
	}
	return result
}

// RequireAuth aborts unauthenticated requests with an RFC 6750 401
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetAuthResult(c) == nil {
			respondUnauthorized(c)
			return
		}
		c.Next()
	}
}

// RequireScope aborts requests whose credential does not cover the required
// scope. Session-authenticated requests bypass scope checks entirely; PAT and
// OAuth credentials are checked against the transitive closure of their
// granted scopes. The rejection names the exact missing scope so a legitimate
// client can request a wider grant.
func RequireScope(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := GetAuthResult(c)
		if result == nil {
			respondUnauthorized(c)
			return
		}
		if !result.HasScope(required) {
			c.Header("WWW-Authenticate", fmt.Sprintf(`Bearer error="insufficient_scope", scope=%q`, required))
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "insufficient_scope",
				"error_description": fmt.Sprintf("The request requires the %q scope", required),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole aborts requests whose user does not hold the required role
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := GetAuthResult(c)
		if result == nil {
			respondUnauthorized(c)
			return
		}
		if result.User.Role != requiredRole {
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "forbidden",
				"error_description": fmt.Sprintf("The %q role is required", requiredRole),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func respondUnauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":             "invalid_token",
		"error_description": "A valid session, personal access token or OAuth bearer token is required",
	})
	c.Abort()
}
