package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ethereumSource/internal/model"
)

const DefaultRedisBuffer = 1000

// Redis publishes every record on a channel and keeps the most recent ones in
// a capped sorted set named "events:<channel>", scored by arrival time, so late
// subscribers can catch up.
type Redis struct {
	client  *redis.Client
	channel string
	buffer  int64
}

// NewRedis connects to the server at url. A non-positive buffer uses DefaultRedisBuffer.
func NewRedis(url, channel string, buffer int64) (*Redis, error) {
	if channel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisClient(redis.NewClient(opts), channel, buffer), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, channel string, buffer int64) *Redis {
	if buffer <= 0 {
		buffer = DefaultRedisBuffer
	}
	return &Redis{client: client, channel: channel, buffer: buffer}
}

// BufferKey is the sorted set holding recent records.
func (r *Redis) BufferKey() string {
	return "events:" + r.channel
}

func (r *Redis) OnEvent(ctx context.Context, record model.Record, _ []string) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	score := float64(time.Now().UnixNano())
	key := r.BufferKey()

	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		if err := p.ZAdd(ctx, key, redis.Z{Score: score, Member: string(data)}).Err(); err != nil {
			return err
		}
		if err := p.ZRemRangeByRank(ctx, key, 0, -r.buffer-1).Err(); err != nil {
			return err
		}
		return p.Publish(ctx, r.channel, string(data)).Err()
	})
	if err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
