package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/cameras"
	"github.com/videohub/backend/internal/mediastore"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/queue"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fixture builds a manager over a local store holding one camera's video.
func newTestManager(t *testing.T, video []byte, opts Options) (*Manager, *fakeDirectory, *fakeRooms, *recordingPublisher, uuid.UUID) {
	t.Helper()
	store, err := mediastore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cameraID := uuid.New()
	ref := "uploads/clip.mp4"
	if video != nil {
		if err := store.Put(context.Background(), ref, bytes.NewReader(video), int64(len(video)), "video/mp4"); err != nil {
			t.Fatal(err)
		}
	}
	dir := &fakeDirectory{cams: map[uuid.UUID]*models.Camera{
		cameraID: {ID: cameraID, Name: "lobby", VideoURL: "/" + ref},
	}}
	rooms := &fakeRooms{}
	pub := &recordingPublisher{}
	m := NewManager(dir, store, rooms, pub, zap.NewNop(), opts)
	return m, dir, rooms, pub, cameraID
}

func TestStartCompletesAndAccounts(t *testing.T) {
	video := bytes.Repeat([]byte{0xAB}, 10)
	m, dir, rooms, pub, cameraID := newTestManager(t, video, Options{ChunkSize: 4})
	conn := newFakeConn("conn-1")

	if err := m.Start(context.Background(), conn, cameraID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "stream completion", func() bool { return pub.actionCount(ActionStreamComplete) == 1 })

	if got := conn.allBytes(); !bytes.Equal(got, video) {
		t.Errorf("delivered %d bytes, want %d", len(got), len(video))
	}
	if chunks := conn.chunkSizes(); len(chunks) != 3 || chunks[0] != 4 || chunks[2] != 2 {
		t.Errorf("chunk sizes = %v, want [4 4 2]", chunks)
	}
	if n := dir.markCount(); n != 1 {
		t.Errorf("MarkAccess called %d times, want 1", n)
	}
	actions := pub.actions()
	if len(actions) != 2 || actions[0] != ActionStreamStart || actions[1] != ActionStreamComplete {
		t.Errorf("published actions = %v, want [stream_start stream_complete]", actions)
	}
	if last := pub.last(); last.Duration == nil {
		t.Error("terminal event has no duration")
	}
	if m.ActiveSessions() != 0 {
		t.Errorf("active sessions = %d after completion, want 0", m.ActiveSessions())
	}
	if joins := rooms.joined(); len(joins) != 1 || joins[0] != cameraID.String() {
		t.Errorf("room joins = %v", joins)
	}
	if !conn.hasStatus("Stream started") || !conn.hasStatus("Stream ended") {
		t.Errorf("statuses = %v, want started and ended", conn.statusList())
	}
}

func TestStartUnknownCameraLeavesConnIdle(t *testing.T) {
	m, dir, _, pub, _ := newTestManager(t, nil, Options{})
	conn := newFakeConn("conn-1")

	err := m.Start(context.Background(), conn, uuid.New())
	if !errors.Is(err, cameras.ErrNotFound) {
		t.Fatalf("Start error = %v, want camera not found", err)
	}
	if !conn.hasError("Camera not found") {
		t.Errorf("errors = %v, want camera-not-found message", conn.errorList())
	}
	if m.ActiveSessions() != 0 {
		t.Error("session registered for unknown camera")
	}
	if dir.markCount() != 0 || len(dir.playDurations()) != 0 {
		t.Error("usage accounted for a stream that never started")
	}
	if len(pub.actions()) != 0 {
		t.Errorf("events published: %v", pub.actions())
	}
}

func TestStartMissingFileFinalizesErrored(t *testing.T) {
	// Camera record exists, video object does not.
	m, dir, _, pub, cameraID := newTestManager(t, nil, Options{})
	conn := newFakeConn("conn-1")

	err := m.Start(context.Background(), conn, cameraID)
	if !errors.Is(err, mediastore.ErrNotFound) {
		t.Fatalf("Start error = %v, want not found", err)
	}
	if !conn.hasError("Video file not found") {
		t.Errorf("errors = %v", conn.errorList())
	}
	// The session was already registered and marked, so it finalizes as
	// errored rather than dangling.
	if dir.markCount() != 1 {
		t.Errorf("MarkAccess called %d times, want 1", dir.markCount())
	}
	if len(dir.playDurations()) != 1 {
		t.Fatalf("AddPlayDuration called %d times, want 1", len(dir.playDurations()))
	}
	actions := pub.actions()
	if len(actions) != 1 || actions[0] != ActionStreamError {
		t.Errorf("published actions = %v, want [stream_error]", actions)
	}
	if m.ActiveSessions() != 0 {
		t.Error("errored session left in registry")
	}
}

func TestDoubleStartReplacesSession(t *testing.T) {
	video := bytes.Repeat([]byte{0x01}, 1<<20)
	m, dir, _, pub, cameraID := newTestManager(t, video, Options{})
	conn := newFakeConn("conn-1")
	conn.blockSend = true

	if err := m.Start(context.Background(), conn, cameraID); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := m.Start(context.Background(), conn, cameraID); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	// The first session was finalized by the replacing Start.
	waitFor(t, "first session finalized", func() bool { return len(dir.playDurations()) == 1 })
	if m.ActiveSessions() != 1 {
		t.Fatalf("active sessions = %d, want 1", m.ActiveSessions())
	}
	if got := pub.actionCount(ActionStreamStop); got != 1 {
		t.Errorf("stream_stop published %d times, want 1", got)
	}

	m.Stop(conn, cameraID)
	waitFor(t, "second session finalized", func() bool { return len(dir.playDurations()) == 2 })
	if m.ActiveSessions() != 0 {
		t.Errorf("active sessions = %d after stop, want 0", m.ActiveSessions())
	}
}

func TestStopAndDisconnectFinalizeOnce(t *testing.T) {
	video := bytes.Repeat([]byte{0x01}, 1<<20)
	m, dir, _, pub, cameraID := newTestManager(t, video, Options{})
	conn := newFakeConn("conn-1")
	conn.blockSend = true

	if err := m.Start(context.Background(), conn, cameraID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.Stop(conn, cameraID) }()
	go func() { defer wg.Done(); m.Disconnect(conn.ID()) }()
	wg.Wait()

	if n := len(dir.playDurations()); n != 1 {
		t.Fatalf("session finalized %d times, want exactly 1", n)
	}
	terminal := pub.actionCount(ActionStreamStop) + pub.actionCount(ActionDisconnect)
	if terminal != 1 {
		t.Errorf("terminal events published %d times, want 1", terminal)
	}
	if m.ActiveSessions() != 0 {
		t.Error("session left in registry")
	}
}

func TestStopWithoutSessionIsNoop(t *testing.T) {
	m, dir, rooms, _, cameraID := newTestManager(t, nil, Options{})
	conn := newFakeConn("conn-1")

	m.Stop(conn, cameraID)

	if len(dir.playDurations()) != 0 {
		t.Error("stop without session accounted a duration")
	}
	if !conn.hasStatus("Stream stopped") {
		t.Errorf("statuses = %v, want stream-stopped notification", conn.statusList())
	}
	if leaves := rooms.left(); len(leaves) != 1 {
		t.Errorf("room leaves = %v, want 1", leaves)
	}
}

func TestDisconnectWithoutSessionIsNoop(t *testing.T) {
	m, dir, rooms, _, _ := newTestManager(t, nil, Options{})
	m.Disconnect("never-streamed")
	if len(dir.playDurations()) != 0 || len(rooms.left()) != 0 {
		t.Error("disconnect for idle connection had side effects")
	}
}

func TestSlowClientTimesOutAsError(t *testing.T) {
	video := bytes.Repeat([]byte{0x01}, 1<<20)
	m, dir, _, pub, cameraID := newTestManager(t, video, Options{WriteTimeout: 20 * time.Millisecond})
	conn := newFakeConn("conn-1")
	conn.blockSend = true

	if err := m.Start(context.Background(), conn, cameraID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "timeout finalization", func() bool { return pub.actionCount(ActionStreamError) == 1 })

	if len(dir.playDurations()) != 1 {
		t.Errorf("AddPlayDuration called %d times, want 1", len(dir.playDurations()))
	}
	if !conn.hasError("Failed to stream video file") {
		t.Errorf("errors = %v", conn.errorList())
	}
	if m.ActiveSessions() != 0 {
		t.Error("timed-out session left in registry")
	}
}

func TestClosedConnFinalizesAsDisconnect(t *testing.T) {
	video := bytes.Repeat([]byte{0x01}, 1<<20)
	m, dir, _, pub, cameraID := newTestManager(t, video, Options{})
	conn := newFakeConn("conn-1")
	conn.sendErr = ErrConnClosed

	if err := m.Start(context.Background(), conn, cameraID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "disconnect finalization", func() bool { return pub.actionCount(ActionDisconnect) == 1 })

	if len(dir.playDurations()) != 1 {
		t.Errorf("AddPlayDuration called %d times, want 1", len(dir.playDurations()))
	}
	if len(conn.errorList()) != 0 {
		t.Errorf("error sent on a closed connection: %v", conn.errorList())
	}
}

func TestRelayRequiresActiveSession(t *testing.T) {
	m, _, _, _, cameraID := newTestManager(t, nil, Options{})
	conn := newFakeConn("conn-1")

	err := m.Relay(conn, cameraID, "pause", nil)
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Relay error = %v, want ErrNoActiveSession", err)
	}
}

func TestRelayBroadcastsWithIdentity(t *testing.T) {
	video := bytes.Repeat([]byte{0x01}, 1<<20)
	m, _, rooms, pub, cameraID := newTestManager(t, video, Options{})
	conn := newFakeConn("conn-1")
	conn.blockSend = true

	if err := m.Start(context.Background(), conn, cameraID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Relay(conn, cameraID, "seek", map[string]any{
		"currentTime": 12.5,
		"action":      "spoofed", // reserved keys cannot be overridden
	}); err != nil {
		t.Fatalf("Relay: %v", err)
	}

	b := rooms.lastBroadcast()
	if b == nil {
		t.Fatal("no broadcast recorded")
	}
	if b.cameraID != cameraID.String() || b.exclude != conn.ID() {
		t.Errorf("broadcast routing = %q exclude %q", b.cameraID, b.exclude)
	}
	payload, ok := b.payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", b.payload)
	}
	if payload["action"] != "seek" || payload["username"] != conn.Username() {
		t.Errorf("payload = %v", payload)
	}
	if payload["currentTime"] != 12.5 {
		t.Errorf("payload lost action data: %v", payload)
	}
	if got := pub.actionCount("seek"); got != 1 {
		t.Errorf("seek event published %d times, want 1", got)
	}

	m.Disconnect(conn.ID())
}

// --- fakes ---

type fakeConn struct {
	id        string
	userID    uuid.UUID
	username  string
	blockSend bool
	sendErr   error

	mu       sync.Mutex
	chunks   [][]byte
	statuses []string
	errs     []string
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, userID: uuid.New(), username: "alice"}
}

func (c *fakeConn) ID() string        { return c.id }
func (c *fakeConn) UserID() uuid.UUID { return c.userID }
func (c *fakeConn) Username() string  { return c.username }

func (c *fakeConn) SendData(ctx context.Context, chunk []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.blockSend {
		<-ctx.Done()
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
	return nil
}

func (c *fakeConn) SendStatus(message string, _ uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, message)
}

func (c *fakeConn) SendError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, message)
}

func (c *fakeConn) allBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, ch := range c.chunks {
		out = append(out, ch...)
	}
	return out
}

func (c *fakeConn) chunkSizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	sizes := make([]int, len(c.chunks))
	for i, ch := range c.chunks {
		sizes[i] = len(ch)
	}
	return sizes
}

func (c *fakeConn) hasStatus(s string) bool {
	for _, got := range c.statusList() {
		if strings.Contains(got, s) {
			return true
		}
	}
	return false
}

func (c *fakeConn) hasError(s string) bool {
	for _, got := range c.errorList() {
		if strings.Contains(got, s) {
			return true
		}
	}
	return false
}

func (c *fakeConn) statusList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.statuses...)
}

func (c *fakeConn) errorList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errs...)
}

type fakeDirectory struct {
	mu        sync.Mutex
	cams      map[uuid.UUID]*models.Camera
	marks     []uuid.UUID
	durations []int64
}

func (d *fakeDirectory) GetByID(_ context.Context, id uuid.UUID) (*models.Camera, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cam, ok := d.cams[id]
	if !ok {
		return nil, cameras.ErrNotFound
	}
	return cam, nil
}

func (d *fakeDirectory) MarkAccess(_ context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marks = append(d.marks, id)
	return nil
}

func (d *fakeDirectory) AddPlayDuration(_ context.Context, id uuid.UUID, seconds int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.durations = append(d.durations, seconds)
	return nil
}

func (d *fakeDirectory) markCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.marks)
}

func (d *fakeDirectory) playDurations() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.durations...)
}

type broadcast struct {
	cameraID string
	exclude  string
	payload  any
}

type fakeRooms struct {
	mu         sync.Mutex
	joins      []string
	leaves     []string
	broadcasts []broadcast
}

func (r *fakeRooms) Join(cameraID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, cameraID)
}

func (r *fakeRooms) Leave(cameraID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves = append(r.leaves, cameraID)
}

func (r *fakeRooms) BroadcastAction(cameraID, excludeConnID string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, broadcast{cameraID, excludeConnID, payload})
}

func (r *fakeRooms) joined() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.joins...)
}

func (r *fakeRooms) left() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.leaves...)
}

func (r *fakeRooms) lastBroadcast() *broadcast {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.broadcasts) == 0 {
		return nil
	}
	b := r.broadcasts[len(r.broadcasts)-1]
	return &b
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.VideoEventPayload
}

func (p *recordingPublisher) Publish(_ string, payload any) {
	ve, ok := payload.(queue.VideoEventPayload)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ve)
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Action
	}
	return out
}

func (p *recordingPublisher) actionCount(action string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) last() queue.VideoEventPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return queue.VideoEventPayload{}
	}
	return p.events[len(p.events)-1]
}

func TestDisconnectAttributesElapsedSeconds(t *testing.T) {
	m, dir, _, pub, cameraID := newTestManager(t, nil, Options{})

	sess := newSession(uuid.New(), "viewer", cameraID)
	sess.StartedAt = time.Now().Add(-5 * time.Second)
	m.registry.Put("conn-1", sess)

	m.Disconnect("conn-1")

	waitFor(t, "session finalized", func() bool { return pub.actionCount(ActionDisconnect) == 1 })
	durations := dir.playDurations()
	if len(durations) != 1 {
		t.Fatalf("AddPlayDuration called %d times, want 1", len(durations))
	}
	if durations[0] != 5 {
		t.Errorf("attributed duration = %d, want 5", durations[0])
	}
}
