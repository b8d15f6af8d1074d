package maps

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps games, maps and tokens in process. It backs the server
// when no DATABASE_URL is configured, and the tests.
type MemoryStore struct {
	mu          sync.Mutex
	nextGameID  uint
	nextMapID   uint
	nextTokenID uint
	games       map[uint]*Game
	maps        map[uint]*Map
	tokens      []Token
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ TokenCatalog = (*MemoryStore)(nil)
	_ GameRegistry = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextGameID:  1,
		nextMapID:   1,
		nextTokenID: 1,
		games:       make(map[uint]*Game),
		maps:        make(map[uint]*Map),
	}
}

func (s *MemoryStore) GetMap(ctx context.Context, gameID uint) (*Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return CloneMap(m), nil
}

func (s *MemoryStore) UpsertBackgroundImage(ctx context.Context, gameID uint, imageRef string) (*Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.ensureLocked(gameID)
	ref := imageRef
	m.ImageRef = &ref
	m.UpdatedAt = time.Now().UTC()
	return CloneMap(m), nil
}

func (s *MemoryStore) ReplaceSnapshot(ctx context.Context, gameID uint, imageRef *string, elems []DrawnElement) (*Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	if imageRef != nil {
		ref := *imageRef
		m.ImageRef = &ref
	}
	m.DrawnElements = cloneElements(elems)
	m.UpdatedAt = time.Now().UTC()
	return CloneMap(m), nil
}

func (s *MemoryStore) EnsureMap(ctx context.Context, gameID uint) (*Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloneMap(s.ensureLocked(gameID)), nil
}

func (s *MemoryStore) ensureLocked(gameID uint) *Map {
	m, ok := s.maps[gameID]
	if ok {
		return m
	}
	m = &Map{
		ID:            s.nextMapID,
		GameID:        gameID,
		Name:          DefaultMapName,
		DrawnElements: []DrawnElement{},
		UpdatedAt:     time.Now().UTC(),
	}
	s.nextMapID++
	s.maps[gameID] = m
	return m
}

// AddToken registers a token definition and returns it with its id.
func (s *MemoryStore) AddToken(token Token) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.ID = s.nextTokenID
	s.nextTokenID++
	s.tokens = append(s.tokens, token)
	return token
}

func (s *MemoryStore) ListVisibleTokens(ctx context.Context, gameID uint) ([]Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Token, 0, len(s.tokens))
	for _, token := range s.tokens {
		if token.VisibleIn(gameID) {
			out = append(out, token)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateGame(ctx context.Context, name, description, creatorID string) (*Game, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, invalid("userId", "is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	game := &Game{
		ID:           s.nextGameID,
		Name:         name,
		Description:  description,
		CreatorID:    creatorID,
		CreatedAt:    time.Now().UTC(),
		Participants: []Participant{{UserID: creatorID, Role: RoleCreator, Accepted: true}},
	}
	s.nextGameID++
	s.games[game.ID] = game
	out := cloneGame(game)
	return &out, nil
}

func (s *MemoryStore) ListGames(ctx context.Context) ([]Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Game, 0, len(s.games))
	for _, game := range s.games {
		out = append(out, cloneGame(game))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AddPlayer(ctx context.Context, gameID uint, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return ErrNotFound
	}
	for _, p := range game.Participants {
		if p.UserID == userID {
			return nil
		}
	}
	game.Participants = append(game.Participants, Participant{UserID: userID, Role: RolePlayer})
	return nil
}

func (s *MemoryStore) AcceptPlayer(ctx context.Context, gameID uint, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return ErrNotFound
	}
	for i := range game.Participants {
		if game.Participants[i].UserID == userID {
			game.Participants[i].Accepted = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) GameExists(ctx context.Context, gameID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.games[gameID]
	return ok, nil
}

func (s *MemoryStore) Participation(ctx context.Context, gameID uint, userID string) (Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return Participation{}, ErrNotFound
	}
	for _, p := range game.Participants {
		if p.UserID == userID {
			return Participation{Role: p.Role, Accepted: p.Accepted}, nil
		}
	}
	return Participation{}, ErrNotFound
}

func cloneGame(game *Game) Game {
	out := *game
	out.Participants = append([]Participant(nil), game.Participants...)
	return out
}
