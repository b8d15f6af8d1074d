package server

import (
	"net/http"
	"time"

	"tabletop-maps/internal/maps"
	"tabletop-maps/internal/web"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (s *Server) statusData(c *gin.Context) (web.StatusData, error) {
	ctx := c.Request.Context()
	games, err := s.games.ListGames(ctx)
	if err != nil {
		return web.StatusData{}, err
	}
	counts := s.live.ViewerCounts()
	data := web.StatusData{
		Games:      make([]web.GameStatus, 0, len(games)),
		InMemory:   s.inMemory,
		RenderedAt: time.Now().UTC(),
	}
	for _, game := range games {
		_, err := s.store.GetMap(ctx, game.ID)
		if err != nil && !maps.IsNotFound(err) {
			return web.StatusData{}, err
		}
		data.Games = append(data.Games, web.GameStatus{
			GameID:  game.ID,
			Name:    game.Name,
			Viewers: counts[game.ID],
			HasMap:  err == nil,
		})
		data.LiveViewers += counts[game.ID]
	}
	return data, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	data, err := s.statusData(c)
	if err != nil {
		logrus.WithError(err).Error("status page failed")
		c.String(http.StatusBadGateway, "storage temporarily unavailable")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := web.Status(data).Render(c.Request.Context(), c.Writer); err != nil {
		logrus.WithError(err).Warn("render status page")
	}
}
