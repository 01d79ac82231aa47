package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/videohub/backend/internal/stream"
)

func TestSendDataBlocksUntilBufferRoom(t *testing.T) {
	c := newTestClient("c1")
	c.binary = make(chan []byte, 1)

	if err := c.SendData(context.Background(), []byte{1}); err != nil {
		t.Fatalf("SendData into empty buffer: %v", err)
	}

	// Buffer full: the producer blocks until the write side drains it.
	done := make(chan error, 1)
	go func() { done <- c.SendData(context.Background(), []byte{2}) }()

	select {
	case err := <-done:
		t.Fatalf("SendData returned %v before the buffer drained", err)
	case <-time.After(20 * time.Millisecond):
	}

	<-c.binary
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendData after drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendData still blocked after drain")
	}
}

func TestSendDataHonorsContextDeadline(t *testing.T) {
	c := newTestClient("c1")
	c.binary = make(chan []byte) // never drained

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.SendData(ctx, []byte{1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SendData error = %v, want deadline exceeded", err)
	}
}

func TestSendDataOnClosedConn(t *testing.T) {
	c := newTestClient("c1")
	c.binary = make(chan []byte) // never drained
	c.close()

	err := c.SendData(context.Background(), []byte{1})
	if !errors.Is(err, stream.ErrConnClosed) {
		t.Fatalf("SendData error = %v, want ErrConnClosed", err)
	}
}

func TestStatusMessagesNeverBlock(t *testing.T) {
	c := newTestClient("c1")
	c.send = make(chan WSMessage, 1)

	// Second enqueue overflows the buffer; both must return immediately.
	done := make(chan struct{})
	go func() {
		c.SendError("first")
		c.SendError("second")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("status enqueue blocked on a full buffer")
	}
}
