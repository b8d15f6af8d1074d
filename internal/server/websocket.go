package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tabletop-maps/internal/auth"
	"tabletop-maps/internal/maps"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	relayTimeout = 5 * time.Second
)

// wsSink adapts a websocket connection to maps.Sink. The broadcaster is
// its only writer; pings go through WriteControl which may run alongside.
type wsSink struct {
	conn *websocket.Conn
}

func (w wsSink) WriteMessage(data []byte) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w wsSink) Close() error {
	return w.conn.Close()
}

type clientMessage struct {
	Type    string          `json:"type"`
	GameID  uint            `json:"gameId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinedPayload struct {
	SessionID string `json:"sessionId"`
	GameID    uint   `json:"gameId"`
	Color     string `json:"color"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (s *Server) handleMapWebsocket(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	exists, err := s.games.GameExists(c.Request.Context(), uri.GameID)
	if err != nil {
		s.respondError(c, "game exists", maps.Upstream("game exists", err))
		return
	}
	if !exists {
		writeError(c, http.StatusNotFound, "not found")
		return
	}
	if !s.authorize(c, uri.GameID, maps.AccessView) {
		return
	}
	uid, _ := auth.UserID(c)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.allowedOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).WithField("game_id", uri.GameID).Debug("ws upgrade failed")
		return
	}
	session := s.live.Connect(wsSink{conn: conn})
	s.live.Join(uri.GameID, session)
	s.sendJoined(session, uri.GameID)
	logrus.WithFields(logrus.Fields{
		"game_id":    uri.GameID,
		"session_id": session.ID(),
		"remote":     c.Request.RemoteAddr,
	}).Info("ws connected")

	go s.pingWS(conn, session)
	go s.readWS(conn, session, uid)
}

func (s *Server) sendJoined(session *maps.Session, gameID uint) {
	payload, _ := json.Marshal(joinedPayload{
		SessionID: session.ID(),
		GameID:    gameID,
		Color:     session.Color(),
	})
	s.live.SendTo(session, maps.Event{Type: maps.EventJoined, Payload: payload})
}

func (s *Server) sendWSError(session *maps.Session, message string) {
	payload, _ := json.Marshal(errorPayload{Message: message})
	s.live.SendTo(session, maps.Event{Type: maps.EventError, Payload: payload})
}

func (s *Server) pingWS(conn *websocket.Conn, session *maps.Session) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				s.live.Leave(session)
				return
			}
		}
	}
}

func (s *Server) readWS(conn *websocket.Conn, session *maps.Session, uid string) {
	defer s.live.Leave(session)
	if s.cfg.MaxLiveEditBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxLiveEditBytes)
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	limiter := rate.NewLimiter(rate.Limit(s.cfg.LiveEditsPerSecond), s.cfg.LiveEditBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"session_id": session.ID(),
				"error":      err,
			}).Info("ws disconnected")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if s.cfg.LiveEditsPerSecond > 0 && !limiter.Allow() {
			s.sendWSError(session, "rate limit exceeded")
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendWSError(session, "invalid message")
			continue
		}
		s.dispatchWS(session, uid, msg)
	}
}

func (s *Server) dispatchWS(session *maps.Session, uid string, msg clientMessage) {
	if msg.Type == "join" {
		s.rejoinWS(session, uid, msg.GameID)
		return
	}
	gameID, ok := s.live.GameOf(session)
	if !ok {
		s.sendWSError(session, "not joined to a game")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case "saveMap":
		err = s.coord.RelayMapUpdate(ctx, gameID, msg.Payload)
	case "liveEdit":
		err = s.coord.PushLiveEdit(ctx, gameID, msg.Payload)
	default:
		s.sendWSError(session, "unknown message type")
		return
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"game_id":    gameID,
			"session_id": session.ID(),
			"type":       msg.Type,
		}).Warn("ws message rejected")
		s.sendWSError(session, err.Error())
	}
}

func (s *Server) rejoinWS(session *maps.Session, uid string, gameID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	exists, err := s.games.GameExists(ctx, gameID)
	if err != nil || !exists {
		s.sendWSError(session, "game not found")
		return
	}
	if s.auth != nil {
		if err := s.coord.Authorize(ctx, gameID, uid, maps.AccessView); err != nil {
			s.sendWSError(session, "forbidden")
			return
		}
	}
	s.live.Join(gameID, session)
	s.sendJoined(session, gameID)
}
