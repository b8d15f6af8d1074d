package main

import (
	"errors"
	"flag"
	"os"
	"strings"

	"tabletop-maps/internal/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

func main() {
	dir := flag.String("dir", "db/migrations", "migrations directory")
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		logrus.WithError(err).Warn("failed to load .env")
	}
	config.ConfigureLogging(config.Load())

	m, err := migrate.New("file://"+*dir, mustDatabaseURL())
	if err != nil {
		logrus.WithError(err).Fatal("migration setup failed")
	}
	defer m.Close()

	if *down > 0 {
		if err := m.Steps(-*down); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logrus.WithError(err).Fatal("database rollback failed")
		}
		logrus.WithField("steps", *down).Info("database migrations rolled back")
		return
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logrus.WithError(err).Fatal("database migration failed")
	}
	version, dirty, _ := m.Version()
	logrus.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("database migrations applied")
}

// mustDatabaseURL only accepts postgres; the SQL files use postgres DDL.
func mustDatabaseURL() string {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logrus.Fatal("DATABASE_URL is not set")
	}
	if !isPostgresURL(dsn) {
		logrus.Fatal("cmd/migrate only supports postgres; other dialects are migrated by the server on start")
	}
	return dsn
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
