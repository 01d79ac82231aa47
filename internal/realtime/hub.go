package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// RelayPublisher publishes camera-room actions to other instances.
type RelayPublisher interface {
	PublishCameraAction(cameraID, originInstance string, payload []byte) error
}

// RelaySubscriber subscribes to a camera's action channel and invokes the
// handler for incoming cross-instance actions.
type RelaySubscriber interface {
	SubscribeCamera(cameraID string, handler func(originInstance string, payload []byte)) (cancel func(), err error)
}

// Hub tracks connected clients and groups them into camera rooms for
// playback-action fan-out. Cross-instance relay goes through Redis
// pub/sub; the instance ID suppresses echo of our own publishes.
type Hub struct {
	instanceID string
	clients    map[string]*Client            // connID -> client
	rooms      map[string]map[string]*Client // cameraID -> connID -> client
	subs       map[string]func()             // cameraID -> cancel subscription
	mu         sync.RWMutex
	logger     *zap.Logger
	pub        RelayPublisher
	sub        RelaySubscriber
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, pub RelayPublisher, sub RelaySubscriber) *Hub {
	return &Hub{
		instanceID: uuid.New().String(),
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		subs:       make(map[string]func()),
		logger:     logger,
		pub:        pub,
		sub:        sub,
	}
}

// Register adds a connected client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("conn_id", c.id), zap.String("username", c.username))
}

// Unregister removes a client from the hub and from every camera room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	for cameraID, room := range h.rooms {
		if _, ok := room[c.id]; ok {
			delete(room, c.id)
			h.dropRoomIfEmptyLocked(cameraID)
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("conn_id", c.id))
}

// Join adds a connection to a camera room. The first member triggers the
// cross-instance subscription for that camera. The subscribe round-trip
// happens outside the hub lock so a stalled Redis cannot freeze
// register/broadcast for every other connection.
func (h *Hub) Join(cameraID, connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	created := false
	if h.rooms[cameraID] == nil {
		h.rooms[cameraID] = make(map[string]*Client)
		created = true
	}
	h.rooms[cameraID][connID] = c
	h.mu.Unlock()

	if !created || h.sub == nil {
		return
	}
	cancel, err := h.sub.SubscribeCamera(cameraID, func(origin string, payload []byte) {
		if origin == h.instanceID {
			return
		}
		h.broadcastLocal(cameraID, "", json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("camera subscribe failed", zap.String("camera_id", cameraID), zap.Error(err))
		return
	}

	h.mu.Lock()
	if _, live := h.rooms[cameraID]; live && h.subs[cameraID] == nil {
		h.subs[cameraID] = cancel
		h.mu.Unlock()
		return
	}
	// Room emptied (or was re-subscribed) while we were subscribing.
	h.mu.Unlock()
	cancel()
}

// Leave removes a connection from a camera room, dropping the
// cross-instance subscription when the room empties.
func (h *Hub) Leave(cameraID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[cameraID]
	if !ok {
		return
	}
	delete(room, connID)
	h.dropRoomIfEmptyLocked(cameraID)
}

func (h *Hub) dropRoomIfEmptyLocked(cameraID string) {
	if len(h.rooms[cameraID]) != 0 {
		return
	}
	delete(h.rooms, cameraID)
	if cancel, ok := h.subs[cameraID]; ok {
		cancel()
		delete(h.subs, cameraID)
	}
}

// BroadcastAction sends a playback action to every other member of the
// camera's room, locally and on other instances.
func (h *Hub) BroadcastAction(cameraID, excludeConnID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcastLocal(cameraID, excludeConnID, json.RawMessage(data))
	if h.pub != nil {
		if err := h.pub.PublishCameraAction(cameraID, h.instanceID, data); err != nil {
			h.logger.Warn("camera action publish failed", zap.String("camera_id", cameraID), zap.Error(err))
		}
	}
}

func (h *Hub) broadcastLocal(cameraID, excludeConnID string, data json.RawMessage) {
	msg := WSMessage{Event: "video-action", Data: data}

	h.mu.RLock()
	room := h.rooms[cameraID]
	members := make([]*Client, 0, len(room))
	for id, c := range room {
		if id != excludeConnID {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(msg)
	}
}

// RoomSize returns the number of connections watching a camera.
func (h *Hub) RoomSize(cameraID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[cameraID])
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
