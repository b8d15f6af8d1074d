package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

var migrationName = regexp.MustCompile(`^[a-z0-9_]+$`)

func main() {
	name := flag.String("name", "", "migration name, e.g. add_token_tags")
	dir := flag.String("dir", filepath.Join("db", "migrations"), "migrations directory")
	flag.Parse()

	upPath, downPath, err := createMigration(*dir, *name, time.Now().UTC())
	if err != nil {
		logrus.WithError(err).Fatal("create migration failed")
	}
	logrus.WithFields(logrus.Fields{"up": upPath, "down": downPath}).Info("migration created")
}

func createMigration(dir, name string, now time.Time) (string, string, error) {
	if name == "" {
		return "", "", fmt.Errorf("migration name is required")
	}
	if !migrationName.MatchString(name) {
		return "", "", fmt.Errorf("migration name %q must be snake_case", name)
	}

	base := fmt.Sprintf("%s_%s", now.Format("20060102150405"), name)
	upPath := filepath.Join(dir, base+".up.sql")
	downPath := filepath.Join(dir, base+".down.sql")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create migrations dir: %w", err)
	}
	if err := writeFile(upPath, "-- "+name+" (up)\n"); err != nil {
		return "", "", fmt.Errorf("create up migration: %w", err)
	}
	if err := writeFile(downPath, "-- "+name+" (down)\n"); err != nil {
		return "", "", fmt.Errorf("create down migration: %w", err)
	}
	return upPath, downPath, nil
}

func writeFile(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
