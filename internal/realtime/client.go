package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the JSON WebSocket message envelope. Video bytes travel
// outside it as binary frames.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents one authenticated WebSocket connection.
type Client struct {
	id       string
	userID   uuid.UUID
	username string
	role     string

	hub     *Hub
	manager *stream.Manager
	conn    *websocket.Conn
	send    chan WSMessage
	binary  chan []byte
	closed  chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// ID returns the connection identity used as the session registry key.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user's ID.
func (c *Client) UserID() uuid.UUID { return c.userID }

// Username returns the authenticated user's name.
func (c *Client) Username() string { return c.username }

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// token travels in the query string since browsers cannot set headers on
// WebSocket requests.
func ServeWs(hub *Hub, manager *stream.Manager, logger *zap.Logger, jwtValidate func(token string) (userID uuid.UUID, username, role string, err error), sendBuffer int) gin.HandlerFunc {
	if sendBuffer <= 0 {
		sendBuffer = 8
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userID, username, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			id:       uuid.New().String(),
			userID:   userID,
			username: username,
			role:     role,
			hub:      hub,
			manager:  manager,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			binary:   make(chan []byte, sendBuffer),
			closed:   make(chan struct{}),
			logger:   logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// SendData hands one video chunk to the write pump. It blocks until the
// transport has buffer room, the context expires, or the connection
// closes — the producer's backpressure point.
func (c *Client) SendData(ctx context.Context, chunk []byte) error {
	select {
	case c.binary <- chunk:
		return nil
	case <-c.closed:
		return stream.ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendStatus sends a video-status message. Non-blocking; dropped if the
// send buffer is full.
func (c *Client) SendStatus(message string, cameraID uuid.UUID) {
	data, _ := json.Marshal(map[string]string{"message": message, "cameraId": cameraID.String()})
	c.enqueue(WSMessage{Event: "video-status", Data: data})
}

// SendError sends an error message. Non-blocking.
func (c *Client) SendError(message string) {
	data, _ := json.Marshal(map[string]string{"message": message})
	c.enqueue(WSMessage{Event: "error", Data: data})
}

func (c *Client) enqueue(msg WSMessage) {
	select {
	case c.send <- msg:
	case <-c.closed:
	default:
		// buffer full, skip
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.closed) })
}

type startPayload struct {
	CameraID string `json:"cameraId"`
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.manager.Disconnect(c.id)
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "start-video-stream":
			cameraID, ok := c.parseCameraID(msg.Data)
			if !ok {
				continue
			}
			if err := c.manager.Start(context.Background(), c, cameraID); err != nil {
				c.logger.Warn("start stream",
					zap.String("conn_id", c.id),
					zap.String("camera_id", cameraID.String()),
					zap.Error(err))
			}
		case "stop-video-stream":
			cameraID, ok := c.parseCameraID(msg.Data)
			if !ok {
				continue
			}
			c.manager.Stop(c, cameraID)
		case "video-action":
			c.handleAction(msg.Data)
		default:
			// ignore
		}
	}
}

func (c *Client) parseCameraID(data json.RawMessage) (uuid.UUID, bool) {
	var p startPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.SendError("Invalid payload")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(p.CameraID)
	if err != nil {
		c.SendError("Invalid camera id")
		return uuid.Nil, false
	}
	return id, true
}

func (c *Client) handleAction(data json.RawMessage) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		c.SendError("Invalid payload")
		return
	}
	rawID, _ := payload["cameraId"].(string)
	cameraID, err := uuid.Parse(rawID)
	if err != nil {
		c.SendError("Invalid camera id")
		return
	}
	action, _ := payload["action"].(string)
	if action == "" {
		c.SendError("Invalid payload")
		return
	}
	delete(payload, "cameraId")
	delete(payload, "action")

	if err := c.manager.Relay(c, cameraID, action, payload); err != nil {
		c.SendError("No active video session")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case chunk := <-c.binary:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
