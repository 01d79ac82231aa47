package models

import (
	"time"

	"github.com/google/uuid"
)

// CameraStatus is the operational state of a camera record.
type CameraStatus string

const (
	CameraOnline      CameraStatus = "online"
	CameraOffline     CameraStatus = "offline"
	CameraMaintenance CameraStatus = "maintenance"
)

// ValidResolutions are the accepted camera resolutions.
var ValidResolutions = map[string]bool{
	"640x480":   true,
	"1280x720":  true,
	"1920x1080": true,
	"2560x1440": true,
	"3840x2160": true,
}

// Camera represents a camera record with its stored video asset and
// aggregate usage counters. VideoFileSize is informational only: byte
// length for serving is always recomputed from the underlying storage.
type Camera struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Location       string       `json:"location"`
	VideoURL       string       `json:"video_url"`
	VideoFileName  string       `json:"video_file_name,omitempty"`
	VideoFileSize  int64        `json:"video_file_size"`
	Status         CameraStatus `json:"status"`
	Resolution     string       `json:"resolution"`
	FrameRate      int          `json:"frame_rate"`
	IsRecording    bool         `json:"is_recording"`
	CreatedBy      uuid.UUID    `json:"created_by"`
	LastAccessedAt *time.Time   `json:"last_accessed_at,omitempty"`
	PlayCount      int64        `json:"play_count"`
	TotalPlayTime  int64        `json:"total_play_time"` // cumulative play seconds
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
