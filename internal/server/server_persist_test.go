package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"tabletop-maps/internal/maps"
)

// slowStore holds snapshot writes until delay passes or ctx is cancelled.
type slowStore struct {
	*maps.MemoryStore
	delay time.Duration
}

func (s *slowStore) ReplaceSnapshot(ctx context.Context, gameID uint, imageRef *string, elems []maps.DrawnElement) (*maps.Map, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.MemoryStore.ReplaceSnapshot(ctx, gameID, imageRef, elems)
}

func TestSaveSurvivesClientDisconnect(t *testing.T) {
	memory := maps.NewMemoryStore()
	env := newTestEnvWithStore(t, testConfig(), false, memory, &slowStore{MemoryStore: memory, delay: 300 * time.Millisecond})
	gameID := env.seedGame(t, "gm")
	if _, err := memory.EnsureMap(context.Background(), gameID); err != nil {
		t.Fatalf("ensure map: %v", err)
	}

	data, err := json.Marshal(map[string]any{
		"mapData": map[string]any{
			"drawnElements": []any{strokePayload("#00ff00", [2]float64{5, 5}, [2]float64{6, 6})},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+savePath(gameID), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 100 * time.Millisecond}
	if resp, err := client.Do(req); err == nil {
		resp.Body.Close()
		t.Fatalf("expected the client to give up before the save finished, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		m, err := memory.GetMap(context.Background(), gameID)
		if err != nil {
			t.Fatalf("get map: %v", err)
		}
		if len(m.DrawnElements) == 1 {
			if m.DrawnElements[0].Color != "#00ff00" {
				t.Fatalf("unexpected stroke %#v", m.DrawnElements[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot was not persisted after the client disconnected")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
