package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoPlayerLog is one playback lifecycle event row, written by the
// analytics worker from the event queue.
type VideoPlayerLog struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	CameraID   uuid.UUID `json:"camera_id"`
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	Duration   *int64    `json:"duration,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
