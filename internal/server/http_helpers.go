package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tabletop-maps/internal/auth"
	"tabletop-maps/internal/maps"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const msgMapNotFound = "Map not found for the given gameId"

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondError maps the maps error taxonomy onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, op string, err error) {
	var verr *maps.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(c, http.StatusBadRequest, verr.Error())
	case maps.IsNotFound(err):
		writeError(c, http.StatusNotFound, "not found")
	case maps.IsUnauthorized(err):
		if _, ok := auth.UserID(c); !ok && s.auth != nil {
			writeError(c, http.StatusUnauthorized, "Authorization is required")
			return
		}
		writeError(c, http.StatusForbidden, "forbidden")
	case maps.IsUpstream(err):
		logrus.WithError(err).WithField("op", op).Error("upstream failure")
		writeError(c, http.StatusBadGateway, "storage temporarily unavailable")
	default:
		logrus.WithError(err).WithField("op", op).Error("request failed")
		writeError(c, http.StatusInternalServerError, "Internal Server Error")
	}
}

// authorize enforces access to a game when authentication is enabled.
func (s *Server) authorize(c *gin.Context, gameID uint, access maps.Access) bool {
	if s.auth == nil {
		return true
	}
	uid, _ := auth.UserID(c)
	if err := s.coord.Authorize(c.Request.Context(), gameID, uid, access); err != nil {
		logrus.WithFields(logrus.Fields{
			"game_id": gameID,
			"user_id": uid,
			"access":  access.String(),
		}).Info("access denied")
		s.respondError(c, "authorize", err)
		return false
	}
	return true
}

// actingAs checks the path user against the authenticated caller. Without
// authentication the path user is taken at its word.
func (s *Server) actingAs(c *gin.Context, userID string) bool {
	if s.auth == nil {
		return true
	}
	uid, ok := auth.UserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Authorization is required")
		return false
	}
	if uid != userID {
		writeError(c, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}
