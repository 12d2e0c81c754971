package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/beaconobs/pkg/protocol"
)

// RedisSink publishes every bus event to a redis channel, letting multiple
// beaconobs replicas (or an external consumer) observe the same event
// stream. It never participates in WS delivery itself — Bus stays the only
// thing that writes to a *Session.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(addr, channel string) *RedisSink {
	return &RedisSink{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

func (r *RedisSink) Publish(ctx context.Context, frame protocol.EventFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		slog.Error("bus: redis sink marshal failed", "error", err)
		return
	}
	if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
		slog.Warn("bus: redis publish failed", "error", err)
	}
}

func (r *RedisSink) Close() error { return r.client.Close() }
