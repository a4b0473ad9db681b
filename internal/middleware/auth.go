package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"authhub/internal/models"
	"authhub/internal/repositories"
	"authhub/internal/services"
)

const userContextKey = "currentUser"

// AccessTokenCookie is the cookie the gate reads before falling back to the
// Authorization header.
const AccessTokenCookie = "accessToken"

// AuthMiddleware is the request gate for protected routes: it pulls the
// access token from the cookie or the bearer header, verifies it, resolves
// the account and attaches it to the request context.
func AuthMiddleware(tokens services.TokenService, users repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAccessToken(c)
		if token == "" {
			abortUnauthorized(c, "unauthorized request")
			return
		}

		claims, err := tokens.VerifyAccessToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid access token")
			return
		}

		user, err := users.GetByID(claims.UserID)
		if err != nil {
			abortUnauthorized(c, "invalid access token")
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func extractAccessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"statusCode": http.StatusUnauthorized,
		"data":       nil,
		"message":    message,
		"success":    false,
	})
}

// CurrentUser returns the account the gate resolved for this request.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
