package cameras

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/videohub/backend/internal/models"
)

// ErrNotFound is returned when a camera record does not exist.
var ErrNotFound = errors.New("camera not found")

const cameraColumns = `id, name, COALESCE(description,''), location, video_url, COALESCE(video_file_name,''),
	video_file_size, status, resolution, frame_rate, is_recording, created_by,
	last_accessed_at, play_count, total_play_time, created_at, updated_at`

// Repository handles camera persistence and aggregate usage counters.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a cameras repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCamera(row pgx.Row) (*models.Camera, error) {
	var cam models.Camera
	err := row.Scan(&cam.ID, &cam.Name, &cam.Description, &cam.Location, &cam.VideoURL, &cam.VideoFileName,
		&cam.VideoFileSize, &cam.Status, &cam.Resolution, &cam.FrameRate, &cam.IsRecording, &cam.CreatedBy,
		&cam.LastAccessedAt, &cam.PlayCount, &cam.TotalPlayTime, &cam.CreatedAt, &cam.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cam, nil
}

// GetByID returns a camera by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Camera, error) {
	return scanCamera(r.pool.QueryRow(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id))
}

// List returns all cameras newest first.
func (r *Repository) List(ctx context.Context) ([]models.Camera, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+cameraColumns+` FROM cameras ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Camera
	for rows.Next() {
		cam, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *cam)
	}
	return list, rows.Err()
}

// CreateParams holds fields for inserting a camera.
type CreateParams struct {
	Name          string
	Description   string
	Location      string
	VideoURL      string
	VideoFileName string
	VideoFileSize int64
	Resolution    string
	FrameRate     int
	CreatedBy     uuid.UUID
}

// Create inserts a new camera record.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.Camera, error) {
	const q = `INSERT INTO cameras (name, description, location, video_url, video_file_name, video_file_size, resolution, frame_rate, created_by)
		VALUES ($1, NULLIF($2,''), $3, $4, NULLIF($5,''), $6, $7, $8, $9)
		RETURNING ` + cameraColumns
	return scanCamera(r.pool.QueryRow(ctx, q,
		p.Name, p.Description, p.Location, p.VideoURL, p.VideoFileName, p.VideoFileSize, p.Resolution, p.FrameRate, p.CreatedBy))
}

// UpdateParams holds mutable metadata fields.
type UpdateParams struct {
	Name        string
	Description string
	Location    string
	Status      models.CameraStatus
}

// Update mutates camera metadata.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Camera, error) {
	const q = `UPDATE cameras SET name = $2, description = NULLIF($3,''), location = $4, status = $5, updated_at = NOW()
		WHERE id = $1 RETURNING ` + cameraColumns
	return scanCamera(r.pool.QueryRow(ctx, q, id, p.Name, p.Description, p.Location, string(p.Status)))
}

// Delete removes a camera record.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cameras WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAccess sets last_accessed_at to now and increments play_count, in a
// single atomic statement. Called once per playback intent.
func (r *Repository) MarkAccess(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE cameras SET last_accessed_at = NOW(), play_count = play_count + 1, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddPlayDuration adds seconds to total_play_time with an in-place
// increment, correct under concurrent sessions on the same camera.
func (r *Repository) AddPlayDuration(ctx context.Context, id uuid.UUID, seconds int64) error {
	if seconds < 0 {
		seconds = 0
	}
	const q = `UPDATE cameras SET total_play_time = total_play_time + $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, seconds)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
