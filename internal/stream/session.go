package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one active push-based delivery of one camera's video to one
// connection. It owns the in-flight byte source (the active transfer);
// releasing it closes the source and cancels the pump exactly once.
type Session struct {
	ID        string
	CameraID  uuid.UUID
	UserID    uuid.UUID
	Username  string
	StartedAt time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	source  io.Closer
	release sync.Once
}

func newSession(userID uuid.UUID, username string, cameraID uuid.UUID) *Session {
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        fmt.Sprintf("%s_%s_%d", userID, cameraID, now.UnixMilli()),
		CameraID:  cameraID,
		UserID:    userID,
		Username:  username,
		StartedAt: now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// attach binds the opened byte source to the session.
func (s *Session) attach(src io.Closer) { s.source = src }

// Release cancels the pump and closes the byte source. Safe to call from
// any termination path; only the first call has effect.
func (s *Session) Release() {
	s.release.Do(func() {
		s.cancel()
		if s.source != nil {
			_ = s.source.Close()
		}
	})
}

// DurationSeconds returns whole seconds elapsed since the session started.
func (s *Session) DurationSeconds() int64 {
	return int64(time.Since(s.StartedAt) / time.Second)
}

// Registry is the process-wide map of active sessions keyed by connection
// identity. Remove reports whether the session was still present, which is
// the single-finalize guard: concurrent termination signals race on Remove
// and only the winner finalizes.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Put registers a session for a connection and returns the previous one,
// if any, so the caller can terminate it first.
func (r *Registry) Put(connID string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[connID]
	r.sessions[connID] = s
	return prev
}

// Get returns the active session for a connection, or nil.
func (r *Registry) Get(connID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[connID]
}

// Remove deletes and returns the session for a connection, reporting
// whether it was present.
func (r *Registry) Remove(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
	}
	return s, ok
}

// removeExact deletes the entry only if it still maps to s. Keeps a
// replaced session's finalization from tearing down its successor.
func (r *Registry) removeExact(connID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[connID] != s {
		return false
	}
	delete(r.sessions, connID)
	return true
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
