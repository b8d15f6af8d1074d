package maps

import "context"

// Store persists one map record per game.
//
// GetMap returns ErrNotFound when the game has no map yet. Every write is
// atomic for concurrent readers: they observe the state before or after it.
type Store interface {
	GetMap(ctx context.Context, gameID uint) (*Map, error)
	// UpsertBackgroundImage creates the map with no strokes when absent,
	// otherwise replaces only the image reference.
	UpsertBackgroundImage(ctx context.Context, gameID uint, imageRef string) (*Map, error)
	// ReplaceSnapshot swaps the whole stroke sequence, and the image
	// reference when imageRef is non-nil. ErrNotFound when no map exists.
	ReplaceSnapshot(ctx context.Context, gameID uint, imageRef *string, elems []DrawnElement) (*Map, error)
	// EnsureMap creates an empty map for the game when it has none.
	EnsureMap(ctx context.Context, gameID uint) (*Map, error)
}

type TokenCatalog interface {
	// ListVisibleTokens returns global tokens plus the game's own custom
	// tokens, in a stable order.
	ListVisibleTokens(ctx context.Context, gameID uint) ([]Token, error)
}

type GameDirectory interface {
	GameExists(ctx context.Context, gameID uint) (bool, error)
	// Participation returns ErrNotFound when the user has not joined the game.
	Participation(ctx context.Context, gameID uint, userID string) (Participation, error)
}

type AssetHost interface {
	Store(ctx context.Context, data []byte, mimeType string) (string, error)
}
