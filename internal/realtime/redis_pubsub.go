package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "camera:"
	publishTimeout = 5 * time.Second
)

// relayEnvelope is the message published to Redis for cross-instance
// camera-room fan-out.
type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
	At      int64           `json:"at"`
}

// RedisPubSub bridges camera-room actions across instances via Redis
// pub/sub. It implements RelayPublisher and RelaySubscriber.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for camera actions.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishCameraAction publishes an action to the camera's Redis channel.
func (r *RedisPubSub) PublishCameraAction(cameraID, originInstance string, payload []byte) error {
	body, err := json.Marshal(relayEnvelope{Origin: originInstance, Payload: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+cameraID, body).Err()
}

// SubscribeCamera subscribes to a camera's Redis channel and calls handler
// for each message. Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeCamera(cameraID string, handler func(originInstance string, payload []byte)) (cancel func(), err error) {
	channel := channelPrefix + cameraID
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				handler(env.Origin, env.Payload)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
