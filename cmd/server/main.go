package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tabletop-maps/internal/assets"
	"tabletop-maps/internal/auth"
	"tabletop-maps/internal/config"
	"tabletop-maps/internal/db"
	"tabletop-maps/internal/maps"
	"tabletop-maps/internal/persistence"
	"tabletop-maps/internal/relay"
	"tabletop-maps/internal/server"

	firebase "firebase.google.com/go"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		logrus.WithError(err).Warn("failed to load .env")
	}
	cfg := config.Load()
	config.ConfigureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{Config: cfg}
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg)
		if err != nil {
			logrus.WithError(err).Fatal("database connection failed")
		}
		if err := db.Migrate(conn); err != nil {
			logrus.WithError(err).Fatal("database migration failed")
		}
		store := persistence.NewGormStore(conn)
		deps.Store, deps.Tokens, deps.Games = store, store, store
	} else {
		logrus.Warn("DATABASE_URL is not set; maps are kept in memory")
		store := maps.NewMemoryStore()
		deps.Store, deps.Tokens, deps.Games = store, store, store
		deps.InMemory = true
	}

	var app *firebase.App
	if cfg.FirebaseProjectID != "" {
		var err error
		app, err = newFirebaseApp(ctx, cfg)
		if err != nil {
			logrus.WithError(err).Fatal("firebase initialization failed")
		}
	}

	switch cfg.AuthMode {
	case config.AuthFirebase:
		if app == nil {
			logrus.Fatal("AUTH_MODE=firebase requires FIREBASE_PROJECT_ID")
		}
		provider, err := auth.NewFirebaseProvider(ctx, app)
		if err != nil {
			logrus.WithError(err).Fatal("firebase auth unavailable")
		}
		deps.Auth = provider
	case config.AuthJWT:
		provider, err := auth.NewJWTProvider(cfg.JWTSecret)
		if err != nil {
			logrus.WithError(err).Fatal("jwt auth unavailable")
		}
		deps.Auth = provider
	default:
		logrus.Warn("authentication disabled; every caller may read and edit maps")
	}

	if app != nil && cfg.FirebaseStorageBucket != "" {
		host, err := assets.NewBucketHost(ctx, app, cfg.FirebaseStorageBucket)
		if err != nil {
			logrus.WithError(err).Fatal("storage bucket unavailable")
		}
		deps.Assets = host
	} else {
		host, err := assets.NewLocalHost(cfg.AssetDir, cfg.AssetBaseURL)
		if err != nil {
			logrus.WithError(err).Fatal("asset directory unavailable")
		}
		deps.Assets = host
		deps.AssetDir = host.Dir()
	}

	deps.Broadcaster = maps.NewBroadcaster(cfg.SessionQueueSize)
	if cfg.RedisURL != "" {
		startRelay(ctx, cfg, deps.Broadcaster)
	}

	srv := server.New(deps)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":      httpServer.Addr,
			"auth_mode": cfg.AuthMode,
			"in_memory": deps.InMemory,
		}).Info("tabletop maps server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("graceful shutdown failed")
	}
	logrus.Info("server stopped")
}

func newFirebaseApp(ctx context.Context, cfg config.Config) (*firebase.App, error) {
	fbConfig := &firebase.Config{
		ProjectID:     cfg.FirebaseProjectID,
		StorageBucket: cfg.FirebaseStorageBucket,
	}
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	}
	return firebase.NewApp(ctx, fbConfig, opts...)
}

func startRelay(ctx context.Context, cfg config.Config, live *maps.Broadcaster) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.WithError(err).Fatal("invalid REDIS_URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Fatal("redis unavailable")
	}
	r := relay.NewRedisRelay(client, cfg.RedisPrefix)
	live.SetRelay(r)
	go func() {
		defer client.Close()
		if err := r.Run(ctx, live); err != nil {
			logrus.WithError(err).Error("relay stopped")
		}
	}()
}
