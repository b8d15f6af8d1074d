package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"tabletop-maps/internal/maps"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// persistTimeout bounds durable writes once they no longer follow the
// request; a client hanging up must not abandon a half-finished save.
const persistTimeout = 30 * time.Second

func persistContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), persistTimeout)
}

type gameRef struct {
	ID uint `json:"id"`
}

type mapViewResponse struct {
	MapURL        *string             `json:"mapUrl"`
	DrawnElements []maps.DrawnElement `json:"drawnElements"`
	Game          gameRef             `json:"game"`
	Tokens        []maps.Token        `json:"tokens"`
}

type mapResponse struct {
	ID            uint                `json:"id"`
	GameID        uint                `json:"gameId"`
	Name          string              `json:"name"`
	MapURL        *string             `json:"mapUrl"`
	DrawnElements []maps.DrawnElement `json:"drawnElements"`
}

type mapDataPayload struct {
	MapURL        *string             `json:"mapUrl"`
	DrawnElements []maps.DrawnElement `json:"drawnElements"`
}

type saveMapRequest struct {
	MapData *mapDataPayload `json:"mapData"`
}

func toMapResponse(m *maps.Map) mapResponse {
	elems := m.DrawnElements
	if elems == nil {
		elems = []maps.DrawnElement{}
	}
	return mapResponse{
		ID:            m.ID,
		GameID:        m.GameID,
		Name:          m.Name,
		MapURL:        m.ImageRef,
		DrawnElements: elems,
	}
}

func (s *Server) handleGetMap(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	if !s.authorize(c, uri.GameID, maps.AccessView) {
		return
	}
	view, err := s.coord.GetMapView(c.Request.Context(), uri.GameID)
	if maps.IsNotFound(err) {
		writeError(c, http.StatusNotFound, msgMapNotFound)
		return
	}
	if err != nil {
		s.respondError(c, "get map", err)
		return
	}
	elems := view.DrawnElements
	if elems == nil {
		elems = []maps.DrawnElement{}
	}
	tokens := view.Tokens
	if tokens == nil {
		tokens = []maps.Token{}
	}
	c.JSON(http.StatusOK, mapViewResponse{
		MapURL:        view.ImageRef,
		DrawnElements: elems,
		Game:          gameRef{ID: view.GameID},
		Tokens:        tokens,
	})
}

func (s *Server) handleUploadMap(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	if !s.authorize(c, uri.GameID, maps.AccessEdit) {
		return
	}
	limit := s.cfg.MaxUploadBytes
	if limit > 0 {
		// multipart framing needs headroom above the image itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+64*1024)
	}
	header, err := c.FormFile("mapImage")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "mapImage is too large")
			return
		}
		writeError(c, http.StatusBadRequest, "mapImage is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "mapImage could not be read")
		return
	}
	defer file.Close()
	reader := io.Reader(file)
	if limit > 0 {
		reader = io.LimitReader(file, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		writeError(c, http.StatusBadRequest, "mapImage could not be read")
		return
	}

	ctx, cancel := persistContext(c)
	defer cancel()
	m, err := s.coord.UploadBackground(ctx, uri.GameID, data)
	if err != nil {
		s.respondError(c, "upload background", err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"game_id": uri.GameID,
		"bytes":   len(data),
	}).Info("map background uploaded")
	c.JSON(http.StatusOK, gin.H{"map": toMapResponse(m)})
}

func (s *Server) handleSaveMapStatus(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	if !s.authorize(c, uri.GameID, maps.AccessEdit) {
		return
	}
	var req saveMapRequest
	if err := readJSON(c.Request.Body, &req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid map data")
		return
	}
	if req.MapData == nil {
		writeError(c, http.StatusBadRequest, "mapData is required")
		return
	}
	if req.MapData.DrawnElements == nil {
		writeError(c, http.StatusBadRequest, "drawnElements is required")
		return
	}
	imageRef := req.MapData.MapURL
	if imageRef != nil && strings.TrimSpace(*imageRef) == "" {
		imageRef = nil
	}

	ctx, cancel := persistContext(c)
	defer cancel()
	m, err := s.coord.SaveSnapshot(ctx, uri.GameID, imageRef, req.MapData.DrawnElements)
	if maps.IsNotFound(err) {
		writeError(c, http.StatusNotFound, msgMapNotFound)
		return
	}
	if err != nil {
		s.respondError(c, "save snapshot", err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"game_id":  uri.GameID,
		"elements": len(m.DrawnElements),
	}).Info("map snapshot saved")
	c.JSON(http.StatusOK, gin.H{"message": "Map status updated successfully"})
}
