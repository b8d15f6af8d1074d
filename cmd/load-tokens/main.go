package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tabletop-maps/internal/config"
	"tabletop-maps/internal/db"
	"tabletop-maps/internal/maps"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// tokenRecord is one catalog row: name,image_url[,game_id]. Rows with a
// game id become custom tokens of that game.
type tokenRecord struct {
	Name     string
	ImageURL string
	GameID   *uint
}

func main() {
	filePath := flag.String("file", "tokens.csv", "path to tokens csv")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		logrus.WithError(err).Warn("failed to load .env")
	}
	cfg := config.Load()
	config.ConfigureLogging(cfg)

	conn, err := db.Open(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}
	if err := db.Migrate(conn); err != nil {
		logrus.WithError(err).Fatal("database migration failed")
	}

	file, err := os.Open(*filePath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open tokens file")
	}
	defer file.Close()

	records, err := readTokens(file)
	if err != nil {
		logrus.WithError(err).Fatal("failed to read tokens")
	}
	loaded, err := loadTokens(conn, records)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load tokens")
	}
	logrus.WithFields(logrus.Fields{"rows": len(records), "tokens": loaded}).Info("token catalog loaded")
}

func readTokens(r io.Reader) ([]tokenRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var records []tokenRecord
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		name := strings.TrimSpace(row[0])
		imageURL := strings.TrimSpace(row[1])
		if name == "" || imageURL == "" {
			continue
		}
		if err := maps.ValidateImageRef(&imageURL); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		record := tokenRecord{Name: name, ImageURL: imageURL}
		if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
			id, err := strconv.ParseUint(strings.TrimSpace(row[2]), 10, 64)
			if err != nil || id == 0 {
				return nil, fmt.Errorf("row %d: invalid game id %q", i+1, row[2])
			}
			gameID := uint(id)
			record.GameID = &gameID
		}
		records = append(records, record)
	}
	return records, nil
}

// loadTokens inserts records that are not in the catalog yet, so the same
// file can be loaded repeatedly.
func loadTokens(conn *gorm.DB, records []tokenRecord) (int, error) {
	loaded := 0
	for _, record := range records {
		query := conn.Where("name = ? AND image_url = ?", record.Name, record.ImageURL)
		if record.GameID == nil {
			query = query.Where("game_id IS NULL")
		} else {
			query = query.Where("game_id = ?", *record.GameID)
		}
		var existing db.Token
		err := query.First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return loaded, err
		}
		entry := db.Token{
			Name:     record.Name,
			ImageURL: record.ImageURL,
			IsCustom: record.GameID != nil,
			GameID:   record.GameID,
		}
		if err := conn.Create(&entry).Error; err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}
