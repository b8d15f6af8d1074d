// Package persistence implements the map store, token catalog and game
// directory on top of gorm.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tabletop-maps/internal/db"
	"tabletop-maps/internal/maps"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

var (
	_ maps.Store        = (*GormStore)(nil)
	_ maps.TokenCatalog = (*GormStore)(nil)
	_ maps.GameRegistry = (*GormStore)(nil)
)

func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

func (s *GormStore) GetMap(ctx context.Context, gameID uint) (*maps.Map, error) {
	var record db.Map
	err := s.db.WithContext(ctx).Where("game_id = ?", gameID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, maps.ErrNotFound
	}
	if err != nil {
		return nil, maps.Upstream("get map", err)
	}
	return toDomainMap(record)
}

func (s *GormStore) UpsertBackgroundImage(ctx context.Context, gameID uint, imageRef string) (*maps.Map, error) {
	var record db.Map
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("game_id = ?", gameID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ref := imageRef
			record = db.Map{
				GameID:             gameID,
				Name:               maps.DefaultMapName,
				BackgroundImageURL: &ref,
				DrawnElements:      datatypes.JSON("[]"),
			}
			return tx.Create(&record).Error
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&db.Map{}).Where("id = ?", record.ID).Update("background_image_url", imageRef).Error; err != nil {
			return err
		}
		return tx.First(&record, record.ID).Error
	})
	if isUniqueViolation(err) {
		// Lost a create race: the map exists now, so only the image changes.
		if err := s.db.WithContext(ctx).Model(&db.Map{}).Where("game_id = ?", gameID).
			Update("background_image_url", imageRef).Error; err != nil {
			return nil, maps.Upstream("update background", err)
		}
		return s.GetMap(ctx, gameID)
	}
	if err != nil {
		return nil, maps.Upstream("upsert background", err)
	}
	return toDomainMap(record)
}

// ReplaceSnapshot writes strokes and image in one UPDATE so readers never
// see half of a snapshot.
func (s *GormStore) ReplaceSnapshot(ctx context.Context, gameID uint, imageRef *string, elems []maps.DrawnElement) (*maps.Map, error) {
	if elems == nil {
		elems = []maps.DrawnElement{}
	}
	payload, err := json.Marshal(elems)
	if err != nil {
		return nil, fmt.Errorf("encode drawn elements: %w", err)
	}
	updates := map[string]any{
		"drawn_elements": datatypes.JSON(payload),
		"updated_at":     time.Now().UTC(),
	}
	if imageRef != nil {
		updates["background_image_url"] = *imageRef
	}
	var record db.Map
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Map{}).Where("game_id = ?", gameID).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		err := tx.Where("game_id = ?", gameID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return maps.ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, maps.Upstream("replace snapshot", err)
	}
	return toDomainMap(record)
}

func (s *GormStore) EnsureMap(ctx context.Context, gameID uint) (*maps.Map, error) {
	var record db.Map
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("game_id = ?", gameID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = db.Map{
				GameID:        gameID,
				Name:          maps.DefaultMapName,
				DrawnElements: datatypes.JSON("[]"),
			}
			return tx.Create(&record).Error
		}
		return err
	})
	if isUniqueViolation(err) {
		return s.GetMap(ctx, gameID)
	}
	if err != nil {
		return nil, maps.Upstream("ensure map", err)
	}
	return toDomainMap(record)
}

func toDomainMap(record db.Map) (*maps.Map, error) {
	elems := []maps.DrawnElement{}
	if len(record.DrawnElements) > 0 {
		if err := json.Unmarshal(record.DrawnElements, &elems); err != nil {
			return nil, maps.Upstream("decode drawn elements", err)
		}
	}
	return &maps.Map{
		ID:            record.ID,
		GameID:        record.GameID,
		Name:          record.Name,
		ImageRef:      record.BackgroundImageURL,
		DrawnElements: elems,
		UpdatedAt:     record.UpdatedAt,
	}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
