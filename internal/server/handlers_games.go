package server

import (
	"net/http"

	"tabletop-maps/internal/maps"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type createGameRequest struct {
	Name        string `json:"name" binding:"required,gamename"`
	Description string `json:"description"`
}

var createGameMessages = bindMessages{
	"Name": {
		"required": "name is required",
		"gamename": "name must be 60 characters or fewer and use plain text",
	},
}

func (s *Server) handleListGames(c *gin.Context) {
	games, err := s.games.ListGames(c.Request.Context())
	if err != nil {
		s.respondError(c, "list games", maps.Upstream("list games", err))
		return
	}
	if games == nil {
		games = []maps.Game{}
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (s *Server) handleCreateGame(c *gin.Context) {
	var uri userURI
	if !bindURI(c, &uri) {
		return
	}
	if !s.actingAs(c, uri.UserID) {
		return
	}
	var req createGameRequest
	if !bindJSON(c, &req, createGameMessages, "invalid game") {
		return
	}
	name, _ := validateGameName(req.Name)
	description, err := validateDescription(req.Description)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	game, err := s.games.CreateGame(c.Request.Context(), name, description, uri.UserID)
	if err != nil {
		s.respondError(c, "create game", maps.Upstream("create game", err))
		return
	}
	logrus.WithFields(logrus.Fields{
		"game_id":    game.ID,
		"creator_id": uri.UserID,
	}).Info("game created")
	c.JSON(http.StatusCreated, gin.H{"game": game})
}

func (s *Server) handleJoinGame(c *gin.Context) {
	var uri gameUserURI
	if !bindURI(c, &uri) {
		return
	}
	if !s.actingAs(c, uri.UserID) {
		return
	}
	if err := s.games.AddPlayer(c.Request.Context(), uri.GameID, uri.UserID); err != nil {
		s.respondError(c, "add player", maps.Upstream("add player", err))
		return
	}
	logrus.WithFields(logrus.Fields{
		"game_id": uri.GameID,
		"user_id": uri.UserID,
	}).Info("player requested to join")
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}

func (s *Server) handleAcceptPlayer(c *gin.Context) {
	var uri gameUserURI
	if !bindURI(c, &uri) {
		return
	}
	if !s.authorize(c, uri.GameID, maps.AccessEdit) {
		return
	}
	if err := s.games.AcceptPlayer(c.Request.Context(), uri.GameID, uri.UserID); err != nil {
		s.respondError(c, "accept player", maps.Upstream("accept player", err))
		return
	}
	logrus.WithFields(logrus.Fields{
		"game_id": uri.GameID,
		"user_id": uri.UserID,
	}).Info("player accepted")
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}
