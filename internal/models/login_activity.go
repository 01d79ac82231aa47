package models

import (
	"time"

	"github.com/google/uuid"
)

// LoginActivity is one authentication attempt row. UserID is nil for
// failed attempts against unknown usernames.
type LoginActivity struct {
	ID         int64      `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Username   string     `json:"username"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	Success    bool       `json:"success"`
	OccurredAt time.Time  `json:"occurred_at"`
}
