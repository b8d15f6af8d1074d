package relay

import (
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeliverer struct {
	games []uint
	data  [][]byte
}

func (d *recordingDeliverer) DeliverLocal(gameID uint, data []byte) {
	d.games = append(d.games, gameID)
	d.data = append(d.data, data)
}

func newTestRelay(t *testing.T) *RedisRelay {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRelay(client, "test:")
}

func TestRelayDeliversForeignMessages(t *testing.T) {
	local := newTestRelay(t)
	remote := newTestRelay(t)
	payload, err := remote.encode(7, []byte(`{"type":"liveEdit"}`))
	require.NoError(t, err)

	dst := &recordingDeliverer{}
	local.handle(local.channel(7), payload, dst)

	require.Len(t, dst.games, 1)
	assert.Equal(t, uint(7), dst.games[0])
	assert.JSONEq(t, `{"type":"liveEdit"}`, string(dst.data[0]))
}

func TestRelaySkipsOwnMessages(t *testing.T) {
	r := newTestRelay(t)
	payload, err := r.encode(7, []byte(`{}`))
	require.NoError(t, err)

	dst := &recordingDeliverer{}
	r.handle(r.channel(7), payload, dst)
	assert.Empty(t, dst.games)
}

func TestRelayRejectsMismatchedOrMalformed(t *testing.T) {
	local := newTestRelay(t)
	remote := newTestRelay(t)
	payload, err := remote.encode(7, []byte(`{}`))
	require.NoError(t, err)

	dst := &recordingDeliverer{}
	local.handle(local.channel(8), payload, dst)
	local.handle("other:map:7", payload, dst)
	local.handle(local.channel(7), []byte("not json"), dst)
	local.handle(local.channel(7), []byte(`{"origin":"x","gameId":7}`), dst)
	assert.Empty(t, dst.games)
}

func TestRelayChannelNames(t *testing.T) {
	r := newTestRelay(t)
	assert.Equal(t, "test:map:12", r.channel(12))
	assert.Equal(t, "test:map:*", r.pattern())
	id, ok := r.gameFromChannel("test:map:12")
	assert.True(t, ok)
	assert.Equal(t, uint(12), id)
}
