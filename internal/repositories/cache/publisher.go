package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChangesChannel is the pub/sub channel realtime clients subscribe to.
const ChangesChannel = "ledger:changes"

// Change is one realtime notification about a ledger row.
type Change struct {
	Entity    string    `json:"entity"`
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangePublisher fans ledger changes out to realtime subscribers. Publishing
// is optional; callers ignore errors beyond logging.
type ChangePublisher interface {
	Publish(ctx context.Context, change Change) error
}

type publisherClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisChangePublisher struct {
	client  publisherClient
	channel string
}

func NewRedisChangePublisher(client publisherClient) *RedisChangePublisher {
	return &RedisChangePublisher{client: client, channel: ChangesChannel}
}

func (p *RedisChangePublisher) Publish(ctx context.Context, change Change) error {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// NopChangePublisher drops every change.
type NopChangePublisher struct{}

func (NopChangePublisher) Publish(context.Context, Change) error { return nil }
