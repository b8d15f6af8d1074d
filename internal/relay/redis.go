// Package relay shares map broadcasts between service instances through
// Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Deliverer receives broadcasts that originated on another instance.
type Deliverer interface {
	DeliverLocal(gameID uint, data []byte)
}

type envelope struct {
	Origin string          `json:"origin"`
	GameID uint            `json:"gameId"`
	Data   json.RawMessage `json:"data"`
}

type RedisRelay struct {
	client    *redis.Client
	keyPrefix string
	origin    string
}

func NewRedisRelay(client *redis.Client, keyPrefix string) *RedisRelay {
	if client == nil {
		panic("redis client cannot be nil for RedisRelay")
	}
	if keyPrefix == "" {
		keyPrefix = "maps:"
	}
	return &RedisRelay{
		client:    client,
		keyPrefix: keyPrefix,
		origin:    uuid.NewString(),
	}
}

func (r *RedisRelay) channel(gameID uint) string {
	return fmt.Sprintf("%smap:%d", r.keyPrefix, gameID)
}

func (r *RedisRelay) pattern() string {
	return r.keyPrefix + "map:*"
}

func (r *RedisRelay) Publish(ctx context.Context, gameID uint, data []byte) error {
	payload, err := r.encode(gameID, data)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel(gameID), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", r.channel(gameID), err)
	}
	return nil
}

// Run subscribes to every game channel and hands foreign messages to dst
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context, dst Deliverer) error {
	sub := r.client.PSubscribe(ctx, r.pattern())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", r.pattern(), err)
	}
	logrus.WithField("pattern", r.pattern()).Info("relay subscribed")
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(msg.Channel, []byte(msg.Payload), dst)
		}
	}
}

func (r *RedisRelay) handle(channel string, payload []byte, dst Deliverer) {
	env, err := r.decode(payload)
	if err != nil {
		logrus.WithField("channel", channel).WithError(err).Warn("relay: dropping malformed message")
		return
	}
	if env.Origin == r.origin {
		return
	}
	if gameID, ok := r.gameFromChannel(channel); !ok || gameID != env.GameID {
		logrus.WithField("channel", channel).Warn("relay: channel does not match game")
		return
	}
	dst.DeliverLocal(env.GameID, env.Data)
}

func (r *RedisRelay) encode(gameID uint, data []byte) ([]byte, error) {
	return json.Marshal(envelope{Origin: r.origin, GameID: gameID, Data: data})
}

func (r *RedisRelay) decode(payload []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return envelope{}, err
	}
	if len(env.Data) == 0 {
		return envelope{}, fmt.Errorf("empty data")
	}
	return env, nil
}

func (r *RedisRelay) gameFromChannel(channel string) (uint, bool) {
	raw := strings.TrimPrefix(channel, r.keyPrefix+"map:")
	if raw == channel {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
