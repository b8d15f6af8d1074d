package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const UserIDKey = "user_id"

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrMalformedToken = errors.New("malformed authorization header")
)

// Middleware verifies the bearer token and stores the caller's id under
// UserIDKey. Browsers cannot set headers on websocket upgrades, so a
// "token" query parameter is accepted as well.
func Middleware(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			logrus.WithError(err).WithField("path", c.FullPath()).Debug("auth: rejecting request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization is required"})
			return
		}
		claims, err := provider.VerifyToken(c.Request.Context(), tokenStr)
		if err != nil {
			logrus.WithError(err).Warn("auth: invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(UserIDKey, claims.UID)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMalformedToken
	}
	return parts[1], nil
}

// UserID returns the authenticated caller, if any.
func UserID(c *gin.Context) (string, bool) {
	value, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	uid, ok := value.(string)
	return uid, ok && uid != ""
}
