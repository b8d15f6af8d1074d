package maps

import (
	"context"
	"time"
)

type Game struct {
	ID           uint          `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	CreatorID    string        `json:"creatorId"`
	CreatedAt    time.Time     `json:"createdAt"`
	Participants []Participant `json:"participants"`
}

type Participant struct {
	UserID   string `json:"userId"`
	Role     Role   `json:"role"`
	Accepted bool   `json:"accepted"`
}

// GameRegistry is the small slice of game and participant CRUD the map
// service exposes next to the map endpoints.
type GameRegistry interface {
	GameDirectory
	CreateGame(ctx context.Context, name, description, creatorID string) (*Game, error)
	ListGames(ctx context.Context) ([]Game, error)
	// AddPlayer records a pending player; joining twice is a no-op.
	AddPlayer(ctx context.Context, gameID uint, userID string) error
	AcceptPlayer(ctx context.Context, gameID uint, userID string) error
}
