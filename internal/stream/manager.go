package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/cameras"
	"github.com/videohub/backend/internal/events"
	"github.com/videohub/backend/internal/mediastore"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/queue"
)

// Event actions published to the event sink.
const (
	ActionStreamStart    = "stream_start"
	ActionStreamStop     = "stream_stop"
	ActionStreamComplete = "stream_complete"
	ActionStreamError    = "stream_error"
	ActionDisconnect     = "disconnect"
)

const finalizeTimeout = 5 * time.Second

var (
	// ErrNoActiveSession is returned for player actions on a connection
	// with no live stream.
	ErrNoActiveSession = errors.New("no active session")
	// ErrConnClosed is returned by a Conn whose transport has been closed.
	ErrConnClosed = errors.New("connection closed")
)

// Conn is the outbound side of one streaming connection. SendData blocks
// until the transport accepts the chunk, the context expires, or the
// connection closes: that block is the producer's backpressure point.
type Conn interface {
	ID() string
	SendData(ctx context.Context, chunk []byte) error
	SendStatus(message string, cameraID uuid.UUID)
	SendError(message string)
}

// Rooms groups connections watching the same camera for action fan-out.
type Rooms interface {
	Join(cameraID, connID string)
	Leave(cameraID, connID string)
	BroadcastAction(cameraID, excludeConnID string, payload any)
}

// CameraDirectory resolves camera records and records usage against them.
type CameraDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Camera, error)
	MarkAccess(ctx context.Context, id uuid.UUID) error
	AddPlayDuration(ctx context.Context, id uuid.UUID, seconds int64) error
}

// Options are delivery tunables.
type Options struct {
	ChunkSize    int           // bytes per pushed chunk; default 64 KiB
	WriteTimeout time.Duration // max wait for a slow client per chunk; 0 = no limit
}

// Manager owns the lifecycle of push-based streams: start, chunked
// delivery, stop, and cleanup on every termination path. One session per
// connection; whichever terminal signal fires first finalizes it, later
// signals are no-ops.
type Manager struct {
	registry     *Registry
	cameras      CameraDirectory
	store        mediastore.Store
	rooms        Rooms
	events       events.Publisher
	logger       *zap.Logger
	chunkSize    int
	writeTimeout time.Duration
}

// NewManager creates a streaming session manager.
func NewManager(dir CameraDirectory, store mediastore.Store, rooms Rooms, pub events.Publisher, logger *zap.Logger, opts Options) *Manager {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64 * 1024
	}
	return &Manager{
		registry:     NewRegistry(),
		cameras:      dir,
		store:        store,
		rooms:        rooms,
		events:       pub,
		logger:       logger,
		chunkSize:    opts.ChunkSize,
		writeTimeout: opts.WriteTimeout,
	}
}

// ActiveSessions returns the number of live streaming sessions.
func (m *Manager) ActiveSessions() int { return m.registry.Len() }

// Start begins pushing the camera's video to the connection. An existing
// transfer on the same connection is terminated first, so at most one is
// ever open per connection. A missing camera record leaves the connection
// idle: nothing is registered or accounted. All failures are also reported
// to the connection as error messages.
func (m *Manager) Start(ctx context.Context, conn Conn, cameraID uuid.UUID) error {
	cam, err := m.cameras.GetByID(ctx, cameraID)
	if err != nil {
		if errors.Is(err, cameras.ErrNotFound) {
			conn.SendError("Camera not found")
		} else {
			conn.SendError("Internal server error")
		}
		return err
	}

	sess := newSession(connUserID(conn), connUsername(conn), cameraID)
	if prev := m.registry.Put(conn.ID(), sess); prev != nil {
		// Put removed prev from the registry, so this goroutine is its
		// sole finalizer.
		m.finalize(prev, ActionStreamStop)
	}

	if err := m.cameras.MarkAccess(ctx, cameraID); err != nil {
		m.registry.removeExact(conn.ID(), sess)
		sess.Release()
		conn.SendError("Internal server error")
		return err
	}

	src, _, err := m.store.Open(ctx, cam.VideoURL)
	if err != nil {
		// The session is already registered and accounted; a failed byte
		// source finalizes it as errored rather than leaving it dangling.
		if errors.Is(err, mediastore.ErrNotFound) {
			conn.SendError("Video file not found")
		} else {
			conn.SendError("Failed to start video stream")
		}
		if m.registry.removeExact(conn.ID(), sess) {
			m.finalize(sess, ActionStreamError)
		}
		return err
	}
	sess.attach(src)

	m.rooms.Join(cameraID.String(), conn.ID())
	m.publish(sess, ActionStreamStart, nil)
	conn.SendStatus("Stream started", cameraID)

	m.logger.Info("stream started",
		zap.String("session_id", sess.ID),
		zap.String("camera_id", cameraID.String()),
		zap.String("username", sess.Username))

	go m.pump(sess, conn, src)
	return nil
}

// Stop terminates the connection's stream on explicit client request. The
// connection leaves the camera's room either way; stopping with no active
// session is a no-op apart from the status notification.
func (m *Manager) Stop(conn Conn, cameraID uuid.UUID) {
	if sess, ok := m.registry.Remove(conn.ID()); ok {
		m.finalize(sess, ActionStreamStop)
	}
	m.rooms.Leave(cameraID.String(), conn.ID())
	conn.SendStatus("Stream stopped", cameraID)
}

// Disconnect finalizes the connection's stream after its transport went
// away. Safe to call for connections that never streamed.
func (m *Manager) Disconnect(connID string) {
	sess, ok := m.registry.Remove(connID)
	if !ok {
		return
	}
	m.rooms.Leave(sess.CameraID.String(), connID)
	m.finalize(sess, ActionDisconnect)
}

// Relay broadcasts a playback-control action (pause, seek, ...) to the
// other connections watching the same camera and notifies the event sink.
// Requires an active session on this connection.
func (m *Manager) Relay(conn Conn, cameraID uuid.UUID, action string, data map[string]any) error {
	sess := m.registry.Get(conn.ID())
	if sess == nil {
		return ErrNoActiveSession
	}

	m.publish(sess, action, nil)

	payload := map[string]any{
		"action":   action,
		"user_id":  sess.UserID.String(),
		"username": sess.Username,
	}
	for k, v := range data {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}
	m.rooms.BroadcastAction(cameraID.String(), conn.ID(), payload)
	return nil
}

// pump pushes sequential chunks until end of data, a transfer error, or
// cancellation. Each push blocks on the connection's backpressure point.
func (m *Manager) pump(sess *Session, conn Conn, src io.Reader) {
	buf := make([]byte, m.chunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := m.push(sess, conn, chunk); err != nil {
				if sess.ctx.Err() != nil {
					return // terminated elsewhere; that path finalizes
				}
				action := ActionStreamError
				if errors.Is(err, ErrConnClosed) {
					action = ActionDisconnect
				}
				if m.registry.removeExact(conn.ID(), sess) {
					if action == ActionStreamError {
						conn.SendError("Failed to stream video file")
					}
					m.finalize(sess, action)
				}
				return
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			if m.registry.removeExact(conn.ID(), sess) {
				conn.SendStatus("Stream ended", sess.CameraID)
				m.finalize(sess, ActionStreamComplete)
			}
			return
		}
		if sess.ctx.Err() != nil {
			return // source closed by cancellation, not a transfer fault
		}
		if m.registry.removeExact(conn.ID(), sess) {
			conn.SendError("Failed to stream video file")
			m.finalize(sess, ActionStreamError)
		}
		return
	}
}

func (m *Manager) push(sess *Session, conn Conn, chunk []byte) error {
	ctx := sess.ctx
	if m.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(sess.ctx, m.writeTimeout)
		defer cancel()
	}
	return conn.SendData(ctx, chunk)
}

// finalize releases the transfer, attributes the session's wall-clock
// duration to the camera's counters, and notifies the event sink. Callers
// must hold sole ownership of the session (registry removal won it).
func (m *Manager) finalize(sess *Session, action string) {
	sess.Release()
	duration := sess.DurationSeconds()

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := m.cameras.AddPlayDuration(ctx, sess.CameraID, duration); err != nil {
		m.logger.Error("add play duration",
			zap.String("session_id", sess.ID),
			zap.Int64("duration", duration),
			zap.Error(err))
	}

	m.publish(sess, action, &duration)

	m.logger.Info("session finalized",
		zap.String("session_id", sess.ID),
		zap.String("camera_id", sess.CameraID.String()),
		zap.String("action", action),
		zap.Int64("duration", duration))
}

func (m *Manager) publish(sess *Session, action string, duration *int64) {
	m.events.Publish("video_action", queue.VideoEventPayload{
		SessionID: sess.ID,
		CameraID:  sess.CameraID,
		UserID:    sess.UserID,
		Username:  sess.Username,
		Action:    action,
		Duration:  duration,
		At:        time.Now(),
	})
}

// Identity is implemented by connections that carry user identity.
type Identity interface {
	UserID() uuid.UUID
	Username() string
}

func connUserID(conn Conn) uuid.UUID {
	if id, ok := conn.(Identity); ok {
		return id.UserID()
	}
	return uuid.Nil
}

func connUsername(conn Conn) string {
	if id, ok := conn.(Identity); ok {
		return id.Username()
	}
	return ""
}
