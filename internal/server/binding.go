package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type bindMessages map[string]map[string]string

type gameURI struct {
	GameID uint `uri:"gameId" binding:"required"`
}

type userURI struct {
	UserID string `uri:"userId" binding:"required,userid"`
}

type gameUserURI struct {
	GameID uint   `uri:"gameId" binding:"required"`
	UserID string `uri:"userId" binding:"required,userid"`
}

func bindJSON(c *gin.Context, req any, messages bindMessages, fallback string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, resolveBindError(err, messages, fallback))
		return false
	}
	return true
}

// bindURI answers 404 for ids that cannot name a game.
func bindURI(c *gin.Context, req any) bool {
	if err := c.ShouldBindUri(req); err != nil {
		writeError(c, http.StatusNotFound, "not found")
		return false
	}
	return true
}

func resolveBindError(err error, messages bindMessages, fallback string) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, verr := range verrs {
			if fieldMsgs, ok := messages[verr.Field()]; ok {
				if msg, ok := fieldMsgs[verr.Tag()]; ok {
					return msg
				}
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return "invalid request"
}
