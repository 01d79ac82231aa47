package events

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/videohub/backend/pkg/queue"
)

// stallServer accepts connections and reads requests but never replies,
// so every Redis command hangs until its timeout.
func stallServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { _, _ = io.Copy(io.Discard, conn) }()
		}
	}()
	return ln.Addr().String()
}

func TestPublishNeverBlocksCaller(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: stallServer(t)})
	defer client.Close()
	pub := NewRedisPublisher(client, queue.NewQueue(client, zap.NewNop()), zap.NewNop())

	start := time.Now()
	pub.Publish("video_action", queue.VideoEventPayload{
		SessionID: "s1",
		CameraID:  uuid.New(),
		UserID:    uuid.New(),
		Username:  "alice",
		Action:    "stream_start",
		At:        time.Now(),
	})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Publish blocked the caller for %v with Redis stalled", elapsed)
	}
}

func TestPublishUnmarshalablePayloadDropped(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: stallServer(t)})
	defer client.Close()
	pub := NewRedisPublisher(client, queue.NewQueue(client, zap.NewNop()), zap.NewNop())

	// Channels cannot marshal; the event is dropped without panicking.
	pub.Publish("video_action", make(chan int))
}
