package persistence

import (
	"context"
	"errors"
	"strings"

	"tabletop-maps/internal/db"
	"tabletop-maps/internal/maps"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *GormStore) ListVisibleTokens(ctx context.Context, gameID uint) ([]maps.Token, error) {
	var records []db.Token
	err := s.db.WithContext(ctx).
		Where("is_custom = ? OR game_id = ?", false, gameID).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, maps.Upstream("list tokens", err)
	}
	tokens := make([]maps.Token, 0, len(records))
	for _, record := range records {
		tokens = append(tokens, maps.Token{
			ID:       record.ID,
			Name:     record.Name,
			ImageURL: record.ImageURL,
			IsCustom: record.IsCustom,
			GameID:   record.GameID,
		})
	}
	return tokens, nil
}

// AddToken stores a token definition. Token editing belongs to another
// service; this exists for seeding and tests.
func (s *GormStore) AddToken(ctx context.Context, token maps.Token) (maps.Token, error) {
	record := db.Token{
		Name:     token.Name,
		ImageURL: token.ImageURL,
		IsCustom: token.IsCustom,
		GameID:   token.GameID,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return maps.Token{}, maps.Upstream("add token", err)
	}
	token.ID = record.ID
	return token, nil
}

func (s *GormStore) CreateGame(ctx context.Context, name, description, creatorID string) (*maps.Game, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, &maps.ValidationError{Field: "userId", Reason: "is required"}
	}
	record := db.Game{
		Name:        name,
		Description: description,
		CreatorID:   creatorID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		creator := db.GameParticipant{
			GameID:   record.ID,
			UserID:   creatorID,
			Role:     db.RoleCreator,
			Accepted: true,
		}
		if err := tx.Create(&creator).Error; err != nil {
			return err
		}
		record.Participants = []db.GameParticipant{creator}
		return nil
	})
	if err != nil {
		return nil, maps.Upstream("create game", err)
	}
	game := toDomainGame(record)
	return &game, nil
}

func (s *GormStore) ListGames(ctx context.Context) ([]maps.Game, error) {
	var records []db.Game
	err := s.db.WithContext(ctx).
		Preload("Participants", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, maps.Upstream("list games", err)
	}
	games := make([]maps.Game, 0, len(records))
	for _, record := range records {
		games = append(games, toDomainGame(record))
	}
	return games, nil
}

func (s *GormStore) AddPlayer(ctx context.Context, gameID uint, userID string) error {
	exists, err := s.GameExists(ctx, gameID)
	if err != nil {
		return err
	}
	if !exists {
		return maps.ErrNotFound
	}
	record := db.GameParticipant{
		GameID: gameID,
		UserID: userID,
		Role:   db.RolePlayer,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return maps.Upstream("add player", err)
	}
	return nil
}

func (s *GormStore) AcceptPlayer(ctx context.Context, gameID uint, userID string) error {
	var record db.GameParticipant
	err := s.db.WithContext(ctx).Where("game_id = ? AND user_id = ?", gameID, userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return maps.ErrNotFound
	}
	if err != nil {
		return maps.Upstream("find participant", err)
	}
	if err := s.db.WithContext(ctx).Model(&db.GameParticipant{}).Where("id = ?", record.ID).Update("accepted", true).Error; err != nil {
		return maps.Upstream("accept player", err)
	}
	return nil
}

func (s *GormStore) GameExists(ctx context.Context, gameID uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&db.Game{}).Where("id = ?", gameID).Count(&count).Error; err != nil {
		return false, maps.Upstream("game exists", err)
	}
	return count > 0, nil
}

func (s *GormStore) Participation(ctx context.Context, gameID uint, userID string) (maps.Participation, error) {
	var record db.GameParticipant
	err := s.db.WithContext(ctx).Where("game_id = ? AND user_id = ?", gameID, userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return maps.Participation{}, maps.ErrNotFound
	}
	if err != nil {
		return maps.Participation{}, maps.Upstream("participation", err)
	}
	return maps.Participation{Role: maps.Role(record.Role), Accepted: record.Accepted}, nil
}

func toDomainGame(record db.Game) maps.Game {
	game := maps.Game{
		ID:           record.ID,
		Name:         record.Name,
		Description:  record.Description,
		CreatorID:    record.CreatorID,
		CreatedAt:    record.CreatedAt,
		Participants: make([]maps.Participant, 0, len(record.Participants)),
	}
	for _, p := range record.Participants {
		game.Participants = append(game.Participants, maps.Participant{
			UserID:   p.UserID,
			Role:     maps.Role(p.Role),
			Accepted: p.Accepted,
		})
	}
	return game
}
