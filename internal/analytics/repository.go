package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/videohub/backend/internal/models"
)

// Repository handles video_player_logs persistence and usage queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertPlayerLog records one playback lifecycle event.
func (r *Repository) InsertPlayerLog(ctx context.Context, sessionID string, cameraID, userID uuid.UUID, username, action string, duration *int64, occurredAt time.Time) error {
	const q = `INSERT INTO video_player_logs (session_id, camera_id, user_id, username, action, duration, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q, sessionID, cameraID, userID, username, action, duration, occurredAt)
	return err
}

// ListRecent returns the most recent player log rows.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.VideoPlayerLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, camera_id, user_id, username, action, duration, occurred_at
		 FROM video_player_logs ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.VideoPlayerLog
	for rows.Next() {
		var l models.VideoPlayerLog
		if err := rows.Scan(&l.ID, &l.SessionID, &l.CameraID, &l.UserID, &l.Username, &l.Action, &l.Duration, &l.OccurredAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// ListByCamera returns recent player log rows for one camera.
func (r *Repository) ListByCamera(ctx context.Context, cameraID uuid.UUID, limit int) ([]models.VideoPlayerLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, camera_id, user_id, username, action, duration, occurred_at
		 FROM video_player_logs WHERE camera_id = $1 ORDER BY occurred_at DESC LIMIT $2`, cameraID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.VideoPlayerLog
	for rows.Next() {
		var l models.VideoPlayerLog
		if err := rows.Scan(&l.ID, &l.SessionID, &l.CameraID, &l.UserID, &l.Username, &l.Action, &l.Duration, &l.OccurredAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// UsageSummary holds aggregate playback stats across all cameras.
type UsageSummary struct {
	TotalCameras   int   `json:"total_cameras"`
	TotalPlayCount int64 `json:"total_play_count"`
	TotalPlayTime  int64 `json:"total_play_time"`
	SessionsLogged int64 `json:"sessions_logged"`
}

// GetUsageSummary returns aggregate usage counters.
func (r *Repository) GetUsageSummary(ctx context.Context) (*UsageSummary, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM cameras),
		(SELECT COALESCE(SUM(play_count), 0) FROM cameras),
		(SELECT COALESCE(SUM(total_play_time), 0) FROM cameras),
		(SELECT COUNT(*) FROM video_player_logs WHERE action = 'stream_start')`
	var s UsageSummary
	if err := r.pool.QueryRow(ctx, q).Scan(&s.TotalCameras, &s.TotalPlayCount, &s.TotalPlayTime, &s.SessionsLogged); err != nil {
		return nil, err
	}
	return &s, nil
}

// TopCamera is one row of the most-played cameras report.
type TopCamera struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	PlayCount     int64     `json:"play_count"`
	TotalPlayTime int64     `json:"total_play_time"`
}

// GetTopCameras returns cameras ordered by play count.
func (r *Repository) GetTopCameras(ctx context.Context, limit int) ([]TopCamera, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, location, play_count, total_play_time
		 FROM cameras ORDER BY play_count DESC, total_play_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []TopCamera
	for rows.Next() {
		var t TopCamera
		if err := rows.Scan(&t.ID, &t.Name, &t.Location, &t.PlayCount, &t.TotalPlayTime); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListLoginActivity returns recent login attempts, newest first, optionally
// bounded by an occurred_at window. Zero time values mean unbounded.
func (r *Repository) ListLoginActivity(ctx context.Context, start, end time.Time, limit int) ([]models.LoginActivity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, username, COALESCE(ip_address, ''), COALESCE(user_agent, ''), success, occurred_at
		 FROM login_activity
		 WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		   AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		 ORDER BY occurred_at DESC LIMIT $3`,
		nullableTime(start), nullableTime(end), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.LoginActivity
	for rows.Next() {
		var a models.LoginActivity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Username, &a.IPAddress, &a.UserAgent, &a.Success, &a.OccurredAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
