package maps

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type coordinatorFixture struct {
	store  *MemoryStore
	live   *Broadcaster
	assets *mockAssetHost
	coord  *Coordinator
	gameID uint
}

func newCoordinatorFixture(t *testing.T, autoCreate bool) *coordinatorFixture {
	t.Helper()
	store := NewMemoryStore()
	game, err := store.CreateGame(context.Background(), "G1", "", "gm")
	require.NoError(t, err)
	live := NewBroadcaster(16)
	assets := &mockAssetHost{}
	return &coordinatorFixture{
		store:  store,
		live:   live,
		assets: assets,
		gameID: game.ID,
		coord: NewCoordinator(CoordinatorOptions{
			Store:          store,
			Tokens:         store,
			Games:          store,
			Assets:         assets,
			Live:           live,
			AutoCreateMap:  autoCreate,
			MaxUploadBytes: 1 << 20,
		}),
	}
}

func TestGetMapViewWithoutMap(t *testing.T) {
	f := newCoordinatorFixture(t, true)
	_, err := f.coord.GetMapView(context.Background(), f.gameID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.coord.GetMapView(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUploadThenSnapshotScenario(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	f.assets.On("Store", mock.Anything, pngBytes, "image/png").Return("imgA", nil).Once()

	_, err := f.coord.GetMapView(ctx, f.gameID)
	require.ErrorIs(t, err, ErrNotFound)

	m, err := f.coord.UploadBackground(ctx, f.gameID, pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "imgA", *m.ImageRef)
	assert.Empty(t, m.DrawnElements)

	elems := []DrawnElement{stroke("red", 4, Point{X: 0, Y: 0}, Point{X: 10, Y: 10})}
	_, err = f.coord.SaveSnapshot(ctx, f.gameID, nil, elems)
	require.NoError(t, err)

	view, err := f.coord.GetMapView(ctx, f.gameID)
	require.NoError(t, err)
	require.NotNil(t, view.ImageRef)
	assert.Equal(t, "imgA", *view.ImageRef)
	assert.Equal(t, elems, view.DrawnElements)
	assert.Empty(t, view.Tokens)
	f.assets.AssertExpectations(t)
}

func TestSecondUploadKeepsStrokes(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	f.assets.On("Store", mock.Anything, mock.Anything, "image/png").Return("r1", nil).Once()
	f.assets.On("Store", mock.Anything, mock.Anything, "image/png").Return("r2", nil).Once()

	_, err := f.coord.UploadBackground(ctx, f.gameID, pngBytes)
	require.NoError(t, err)
	elems := []DrawnElement{stroke("#00ff00", 2, Point{X: 1, Y: 2})}
	_, err = f.coord.SaveSnapshot(ctx, f.gameID, nil, elems)
	require.NoError(t, err)
	_, err = f.coord.UploadBackground(ctx, f.gameID, pngBytes)
	require.NoError(t, err)

	view, err := f.coord.GetMapView(ctx, f.gameID)
	require.NoError(t, err)
	assert.Equal(t, "r2", *view.ImageRef)
	assert.Equal(t, elems, view.DrawnElements)
}

func TestUploadFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	f.assets.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()

	_, err := f.coord.UploadBackground(ctx, f.gameID, pngBytes)
	require.Error(t, err)
	assert.True(t, IsUpstream(err))

	_, err = f.store.GetMap(ctx, f.gameID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUploadRejectsNonImage(t *testing.T) {
	f := newCoordinatorFixture(t, true)
	_, err := f.coord.UploadBackground(context.Background(), f.gameID, []byte("just some text"))
	assert.True(t, IsValidation(err))
	_, err = f.coord.UploadBackground(context.Background(), f.gameID, nil)
	assert.True(t, IsValidation(err))
	f.assets.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadUnknownGame(t *testing.T) {
	f := newCoordinatorFixture(t, true)
	_, err := f.coord.UploadBackground(context.Background(), 404, pngBytes)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSnapshotPartialImageUpdate(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	_, err := f.store.UpsertBackgroundImage(ctx, f.gameID, "before")
	require.NoError(t, err)

	_, err = f.coord.SaveSnapshot(ctx, f.gameID, strPtr("after"), []DrawnElement{})
	require.NoError(t, err)
	view, err := f.coord.GetMapView(ctx, f.gameID)
	require.NoError(t, err)
	assert.Equal(t, "after", *view.ImageRef)

	_, err = f.coord.SaveSnapshot(ctx, f.gameID, nil, []DrawnElement{})
	require.NoError(t, err)
	view, err = f.coord.GetMapView(ctx, f.gameID)
	require.NoError(t, err)
	assert.Equal(t, "after", *view.ImageRef)
}

func TestSaveSnapshotStoresTrimmedImageRef(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)

	m, err := f.coord.SaveSnapshot(ctx, f.gameID, strPtr("  https://cdn.test/map.png \n"), []DrawnElement{})
	require.NoError(t, err)
	require.NotNil(t, m.ImageRef)
	assert.Equal(t, "https://cdn.test/map.png", *m.ImageRef)

	stored, err := f.store.GetMap(ctx, f.gameID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/map.png", *stored.ImageRef)
}

func TestSaveSnapshotIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	elems := []DrawnElement{stroke("blue", 3, Point{X: 5, Y: 5}, Point{X: 6, Y: 7})}

	_, err := f.coord.SaveSnapshot(ctx, f.gameID, strPtr("img"), elems)
	require.NoError(t, err)
	first, err := f.coord.GetMapView(ctx, f.gameID)
	require.NoError(t, err)
	_, err = f.coord.SaveSnapshot(ctx, f.gameID, strPtr("img"), elems)
	require.NoError(t, err)
	second, err := f.coord.GetMapView(ctx, f.gameID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSaveSnapshotAutoCreatePolicy(t *testing.T) {
	ctx := context.Background()

	on := newCoordinatorFixture(t, true)
	m, err := on.coord.SaveSnapshot(ctx, on.gameID, nil, []DrawnElement{})
	require.NoError(t, err)
	assert.Nil(t, m.ImageRef)
	_, err = on.coord.SaveSnapshot(ctx, 404, nil, []DrawnElement{})
	require.ErrorIs(t, err, ErrNotFound)

	off := newCoordinatorFixture(t, false)
	_, err = off.coord.SaveSnapshot(ctx, off.gameID, nil, []DrawnElement{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSnapshotValidatesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	_, err := f.store.UpsertBackgroundImage(ctx, f.gameID, "img")
	require.NoError(t, err)
	good := []DrawnElement{stroke("red", 1, Point{X: 1, Y: 1})}
	_, err = f.coord.SaveSnapshot(ctx, f.gameID, nil, good)
	require.NoError(t, err)

	_, err = f.coord.SaveSnapshot(ctx, f.gameID, strPtr("other"), []DrawnElement{stroke("red", -4, Point{X: 1, Y: 1})})
	require.True(t, IsValidation(err))

	m, err := f.store.GetMap(ctx, f.gameID)
	require.NoError(t, err)
	assert.Equal(t, "img", *m.ImageRef)
	assert.Equal(t, good, m.DrawnElements)
}

func TestConcurrentSnapshotsNeverInterleave(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	_, err := f.store.EnsureMap(ctx, f.gameID)
	require.NoError(t, err)

	elemsA := make([]DrawnElement, 50)
	elemsB := make([]DrawnElement, 50)
	for i := range elemsA {
		elemsA[i] = stroke("red", 1, Point{X: float64(i), Y: 0})
		elemsB[i] = stroke("blue", 2, Point{X: 0, Y: float64(i)})
	}

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for _, elems := range [][]DrawnElement{elemsA, elemsB} {
			wg.Add(1)
			go func(elems []DrawnElement) {
				defer wg.Done()
				_, err := f.coord.SaveSnapshot(ctx, f.gameID, nil, elems)
				assert.NoError(t, err)
			}(elems)
		}
		wg.Wait()

		view, err := f.coord.GetMapView(ctx, f.gameID)
		require.NoError(t, err)
		if !assert.ObjectsAreEqual(elemsA, view.DrawnElements) && !assert.ObjectsAreEqual(elemsB, view.DrawnElements) {
			t.Fatalf("round %d: snapshot is a mix of both saves", round)
		}
	}
}

func TestLiveEditReachesEveryViewerButIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	_, err := f.store.UpsertBackgroundImage(ctx, f.gameID, "img")
	require.NoError(t, err)

	senderSink, otherSink := newChanSink(), newChanSink()
	f.live.Join(f.gameID, f.live.Connect(senderSink))
	f.live.Join(f.gameID, f.live.Connect(otherSink))

	payload := json.RawMessage(`{"type":"strokeInProgress","points":[{"x":1,"y":2}]}`)
	require.NoError(t, f.coord.PushLiveEdit(ctx, f.gameID, payload))

	for _, sink := range []*chanSink{senderSink, otherSink} {
		event := receiveEvent(t, sink, time.Second)
		assert.Equal(t, EventLiveEdit, event.Type)
		assert.JSONEq(t, string(payload), string(event.Payload))
	}

	view, err := f.coord.GetMapView(ctx, f.gameID)
	require.NoError(t, err)
	assert.Empty(t, view.DrawnElements)
}

func TestRelayMapUpdateUsesMapUpdatedEvent(t *testing.T) {
	f := newCoordinatorFixture(t, true)
	sink := newChanSink()
	f.live.Join(f.gameID, f.live.Connect(sink))

	require.NoError(t, f.coord.RelayMapUpdate(context.Background(), f.gameID, json.RawMessage(`{"drawnElements":[]}`)))
	assert.Equal(t, EventMapUpdated, receiveEvent(t, sink, time.Second).Type)

	err := f.coord.PushLiveEdit(context.Background(), f.gameID, json.RawMessage(`{broken`))
	assert.True(t, IsValidation(err))
	expectNoEvent(t, sink, 100*time.Millisecond)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, true)
	require.NoError(t, f.store.AddPlayer(ctx, f.gameID, "pending"))
	require.NoError(t, f.store.AddPlayer(ctx, f.gameID, "player"))
	require.NoError(t, f.store.AcceptPlayer(ctx, f.gameID, "player"))

	assert.NoError(t, f.coord.Authorize(ctx, f.gameID, "gm", AccessEdit))
	assert.NoError(t, f.coord.Authorize(ctx, f.gameID, "gm", AccessView))
	assert.NoError(t, f.coord.Authorize(ctx, f.gameID, "player", AccessView))
	assert.ErrorIs(t, f.coord.Authorize(ctx, f.gameID, "player", AccessEdit), ErrUnauthorized)
	assert.ErrorIs(t, f.coord.Authorize(ctx, f.gameID, "pending", AccessView), ErrUnauthorized)
	assert.ErrorIs(t, f.coord.Authorize(ctx, f.gameID, "stranger", AccessView), ErrUnauthorized)
	assert.ErrorIs(t, f.coord.Authorize(ctx, f.gameID, "", AccessView), ErrUnauthorized)
	assert.ErrorIs(t, f.coord.Authorize(ctx, 404, "gm", AccessView), ErrNotFound)
}
