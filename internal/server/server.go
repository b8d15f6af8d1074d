package server

import (
	"net/http"
	"strings"
	"time"

	"tabletop-maps/internal/auth"
	"tabletop-maps/internal/config"
	"tabletop-maps/internal/maps"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators a Server is assembled from.
type Deps struct {
	Config      config.Config
	Store       maps.Store
	Tokens      maps.TokenCatalog
	Games       maps.GameRegistry
	Assets      maps.AssetHost
	Broadcaster *maps.Broadcaster
	// Auth is nil when requests are not authenticated.
	Auth auth.Provider
	// AssetDir is served under AssetBaseURL when set.
	AssetDir string
	InMemory bool
}

type Server struct {
	cfg      config.Config
	coord    *maps.Coordinator
	live     *maps.Broadcaster
	store    maps.Store
	games    maps.GameRegistry
	auth     auth.Provider
	assetDir string
	inMemory bool
}

func New(deps Deps) *Server {
	registerValidators()
	live := deps.Broadcaster
	if live == nil {
		live = maps.NewBroadcaster(deps.Config.SessionQueueSize)
	}
	coord := maps.NewCoordinator(maps.CoordinatorOptions{
		Store:          deps.Store,
		Tokens:         deps.Tokens,
		Games:          deps.Games,
		Assets:         deps.Assets,
		Live:           live,
		AutoCreateMap:  deps.Config.AutoCreateMapOnSave,
		MaxUploadBytes: deps.Config.MaxUploadBytes,
	})
	return &Server{
		cfg:      deps.Config,
		coord:    coord,
		live:     live,
		store:    deps.Store,
		games:    deps.Games,
		auth:     deps.Auth,
		assetDir: deps.AssetDir,
		inMemory: deps.InMemory,
	}
}

// Coordinator exposes the map coordinator for callers wiring extra transports.
func (s *Server) Coordinator() *maps.Coordinator {
	return s.coord
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), cors.New(s.corsConfig()))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "Ok")
	})
	if s.assetDir != "" && strings.HasPrefix(s.cfg.AssetBaseURL, "/") {
		router.Static(s.cfg.AssetBaseURL, s.assetDir)
	}

	api := router.Group("/")
	if s.auth != nil {
		api.Use(auth.Middleware(s.auth))
	}
	api.GET("/", s.handleStatus)
	api.GET("/map/:gameId", s.handleGetMap)
	api.POST("/map/uploadMap/:gameId", s.handleUploadMap)
	api.POST("/map/saveMapStatus/:gameId", s.handleSaveMapStatus)
	api.GET("/ws/map/:gameId", s.handleMapWebsocket)

	api.GET("/games", s.handleListGames)
	api.POST("/games/createGame/:userId", s.handleCreateGame)
	api.POST("/games/:gameId/join/:userId", s.handleJoinGame)
	api.POST("/games/:gameId/accept/:userId", s.handleAcceptPlayer)
	return router
}

func (s *Server) corsConfig() cors.Config {
	origins := make([]string, 0, len(s.cfg.CORSDomains))
	for _, origin := range s.cfg.CORSDomains {
		if !strings.Contains(origin, "://") {
			logrus.WithField("origin", origin).Warn("ignoring CORS origin without scheme")
			continue
		}
		origins = append(origins, strings.TrimSuffix(origin, "/"))
	}
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// allowedOrigin applies the CORS origin list to websocket upgrades.
func (s *Server) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.CORSDomains) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORSDomains {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		entry := logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"route":    route,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
