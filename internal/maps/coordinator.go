package maps

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// LiveChannel fans events out to the viewers of a game.
type LiveChannel interface {
	Broadcast(ctx context.Context, gameID uint, event Event) error
}

type CoordinatorOptions struct {
	Store          Store
	Tokens         TokenCatalog
	Games          GameDirectory
	Assets         AssetHost
	Live           LiveChannel
	AutoCreateMap  bool
	MaxUploadBytes int64
}

// Coordinator is the entry point for reading and changing a game's map.
// Durable writes go to the Store and are never broadcast from here; live
// edits go to the LiveChannel and are never persisted.
type Coordinator struct {
	store          Store
	tokens         TokenCatalog
	games          GameDirectory
	assets         AssetHost
	live           LiveChannel
	autoCreate     bool
	maxUploadBytes int64
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	return &Coordinator{
		store:          opts.Store,
		tokens:         opts.Tokens,
		games:          opts.Games,
		assets:         opts.Assets,
		live:           opts.Live,
		autoCreate:     opts.AutoCreateMap,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

func (c *Coordinator) GetMapView(ctx context.Context, gameID uint) (*MapView, error) {
	m, err := c.store.GetMap(ctx, gameID)
	if err != nil {
		return nil, Upstream("get map", err)
	}
	tokens, err := c.tokens.ListVisibleTokens(ctx, gameID)
	if err != nil {
		return nil, Upstream("list tokens", err)
	}
	return &MapView{
		GameID:        gameID,
		ImageRef:      m.ImageRef,
		DrawnElements: m.DrawnElements,
		Tokens:        tokens,
	}, nil
}

// UploadBackground stores the image with the asset host and points the
// game's map at it, creating the map when needed. Viewers are not notified.
func (c *Coordinator) UploadBackground(ctx context.Context, gameID uint, data []byte) (*Map, error) {
	if len(data) == 0 {
		return nil, invalid("mapImage", "is required")
	}
	if c.maxUploadBytes > 0 && int64(len(data)) > c.maxUploadBytes {
		return nil, invalid("mapImage", "must be %d bytes or fewer", c.maxUploadBytes)
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, invalid("mapImage", "unsupported content type %s", mime.String())
	}
	if err := c.requireGame(ctx, gameID); err != nil {
		return nil, err
	}
	ref, err := c.assets.Store(ctx, data, mime.String())
	if err != nil {
		return nil, Upstream("store asset", err)
	}
	m, err := c.store.UpsertBackgroundImage(ctx, gameID, ref)
	if err != nil {
		return nil, Upstream("upsert background", err)
	}
	logrus.WithFields(logrus.Fields{"game_id": gameID, "image_ref": ref}).Info("map background updated")
	return m, nil
}

// SaveSnapshot replaces the persisted strokes, and the image reference when
// one is given. Concurrent saves are last-write-wins.
func (c *Coordinator) SaveSnapshot(ctx context.Context, gameID uint, imageRef *string, elems []DrawnElement) (*Map, error) {
	imageRef = normalizeImageRef(imageRef)
	if err := ValidateImageRef(imageRef); err != nil {
		return nil, err
	}
	if err := ValidateElements(elems); err != nil {
		return nil, err
	}
	if elems == nil {
		elems = []DrawnElement{}
	}
	m, err := c.store.ReplaceSnapshot(ctx, gameID, imageRef, elems)
	if IsNotFound(err) && c.autoCreate {
		if err := c.requireGame(ctx, gameID); err != nil {
			return nil, err
		}
		if _, err := c.store.EnsureMap(ctx, gameID); err != nil {
			return nil, Upstream("create map", err)
		}
		logrus.WithField("game_id", gameID).Info("map created on first snapshot")
		m, err = c.store.ReplaceSnapshot(ctx, gameID, imageRef, elems)
	}
	if err != nil {
		return nil, Upstream("replace snapshot", err)
	}
	return m, nil
}

// PushLiveEdit forwards payload untouched to every viewer of the game.
func (c *Coordinator) PushLiveEdit(ctx context.Context, gameID uint, payload json.RawMessage) error {
	return c.push(ctx, gameID, EventLiveEdit, payload)
}

// RelayMapUpdate rebroadcasts a client's full map state as mapUpdated.
func (c *Coordinator) RelayMapUpdate(ctx context.Context, gameID uint, payload json.RawMessage) error {
	return c.push(ctx, gameID, EventMapUpdated, payload)
}

func (c *Coordinator) push(ctx context.Context, gameID uint, eventType string, payload json.RawMessage) error {
	if len(payload) > 0 && !json.Valid(payload) {
		return invalid("payload", "must be valid JSON")
	}
	return c.live.Broadcast(ctx, gameID, Event{Type: eventType, Payload: payload})
}

// Authorize checks the creator / accepted-player predicate for userID.
func (c *Coordinator) Authorize(ctx context.Context, gameID uint, userID string, access Access) error {
	if userID == "" {
		return ErrUnauthorized
	}
	p, err := c.games.Participation(ctx, gameID, userID)
	if IsNotFound(err) {
		if err := c.requireGame(ctx, gameID); err != nil {
			return err
		}
		return ErrUnauthorized
	}
	if err != nil {
		return Upstream("participation", err)
	}
	allowed := p.CanView()
	if access == AccessEdit {
		allowed = p.CanEdit()
	}
	if !allowed {
		return ErrUnauthorized
	}
	return nil
}

func (c *Coordinator) requireGame(ctx context.Context, gameID uint) error {
	exists, err := c.games.GameExists(ctx, gameID)
	if err != nil {
		return Upstream("game exists", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
