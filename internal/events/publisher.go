// Package events is the fire-and-forget sink for video lifecycle
// notifications. Publishing never blocks or errors into the caller's
// streaming path; failures are logged and dropped.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/videohub/backend/pkg/queue"
)

const (
	// ChannelVideoActions is the Redis pub/sub channel for live consumers.
	ChannelVideoActions = "events:video_action"

	publishTimeout = 5 * time.Second
)

// Publisher delivers named events with a JSON payload, fire-and-forget.
type Publisher interface {
	Publish(event string, payload any)
}

// RedisPublisher publishes events on a Redis channel and enqueues a durable
// copy for the analytics worker.
type RedisPublisher struct {
	client *redis.Client
	queue  *queue.Queue
	logger *zap.Logger
}

// NewRedisPublisher creates the Redis-backed event sink.
func NewRedisPublisher(client *redis.Client, q *queue.Queue, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, queue: q, logger: logger}
}

// Publish sends the event to the pub/sub channel, and for video_action
// events also enqueues a worker job. The Redis round-trips run on their
// own goroutine so a stalled Redis never delays stream starts or
// finalizations. Errors are logged, never returned.
func (p *RedisPublisher) Publish(event string, payload any) {
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload, "at": time.Now().Unix()})
	if err != nil {
		p.logger.Warn("event marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.client.Publish(ctx, ChannelVideoActions, body).Err(); err != nil {
			p.logger.Warn("event publish failed", zap.String("event", event), zap.Error(err))
		}
		if ve, ok := payload.(queue.VideoEventPayload); ok {
			if err := p.queue.EnqueueVideoEvent(ctx, ve); err != nil {
				p.logger.Warn("event enqueue failed", zap.String("event", event), zap.Error(err))
			}
		}
	}()
}

// Nop is a Publisher that discards all events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(string, any) {}
