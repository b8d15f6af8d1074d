package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"tabletop-maps/internal/assets"
	"tabletop-maps/internal/auth"
	"tabletop-maps/internal/config"
	"tabletop-maps/internal/maps"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

type testEnv struct {
	srv    *Server
	store  *maps.MemoryStore
	ts     *httptest.Server
	tokens *auth.JWTProvider
}

func testConfig() config.Config {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.AssetBaseURL = "/uploads"
	return cfg
}

func newTestEnv(t *testing.T, cfg config.Config, withAuth bool) *testEnv {
	t.Helper()
	store := maps.NewMemoryStore()
	return newTestEnvWithStore(t, cfg, withAuth, store, store)
}

// newTestEnvWithStore serves maps from mapStore while games and tokens
// stay in the memory store.
func newTestEnvWithStore(t *testing.T, cfg config.Config, withAuth bool, store *maps.MemoryStore, mapStore maps.Store) *testEnv {
	t.Helper()
	dir := t.TempDir()
	host, err := assets.NewLocalHost(dir, cfg.AssetBaseURL)
	if err != nil {
		t.Fatalf("asset host: %v", err)
	}
	deps := Deps{
		Config:   cfg,
		Store:    mapStore,
		Tokens:   store,
		Games:    store,
		Assets:   host,
		AssetDir: host.Dir(),
		InMemory: true,
	}
	env := &testEnv{store: store}
	if withAuth {
		provider, err := auth.NewJWTProvider("test-secret")
		if err != nil {
			t.Fatalf("jwt provider: %v", err)
		}
		deps.Auth = provider
		env.tokens = provider
	}
	env.srv = New(deps)
	env.ts = newTestServer(t, env.srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) tokenFor(t *testing.T, uid string) string {
	t.Helper()
	token, err := e.tokens.Sign(uid, nil)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// seedGame creates a game owned by creator directly in the store.
func (e *testEnv) seedGame(t *testing.T, creator string) uint {
	t.Helper()
	game, err := e.store.CreateGame(context.Background(), "Dungeon", "", creator)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game.ID
}
