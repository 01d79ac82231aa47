package cameras

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
)

const (
	cameraKeyPrefix = "camera:"
	allCamerasKey   = "cameras:all"
	cameraTTL       = time.Hour
	allCamerasTTL   = 30 * time.Minute
)

// Cache is a Redis read-through cache of camera records. It is advisory:
// every method degrades to a miss on Redis errors.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCache creates a camera cache.
func NewCache(client *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Get returns the cached camera, or nil on miss.
func (c *Cache) Get(ctx context.Context, id uuid.UUID) *models.Camera {
	raw, err := c.client.Get(ctx, cameraKeyPrefix+id.String()).Bytes()
	if err != nil {
		return nil
	}
	var cam models.Camera
	if err := json.Unmarshal(raw, &cam); err != nil {
		return nil
	}
	return &cam
}

// Set caches one camera record.
func (c *Cache) Set(ctx context.Context, cam *models.Camera) {
	raw, err := json.Marshal(cam)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cameraKeyPrefix+cam.ID.String(), raw, cameraTTL).Err(); err != nil {
		c.logger.Debug("camera cache set failed", zap.Error(err))
	}
}

// SetAll caches the full camera list and each individual record.
func (c *Cache) SetAll(ctx context.Context, cams []models.Camera) {
	raw, err := json.Marshal(cams)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, allCamerasKey, raw, allCamerasTTL).Err(); err != nil {
		c.logger.Debug("camera list cache set failed", zap.Error(err))
		return
	}
	for i := range cams {
		c.Set(ctx, &cams[i])
	}
}

// GetAll returns the cached camera list, or nil on miss.
func (c *Cache) GetAll(ctx context.Context) []models.Camera {
	raw, err := c.client.Get(ctx, allCamerasKey).Bytes()
	if err != nil {
		return nil
	}
	var cams []models.Camera
	if err := json.Unmarshal(raw, &cams); err != nil {
		return nil
	}
	return cams
}

// Invalidate drops a camera and the list from the cache, after mutation.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, cameraKeyPrefix+id.String(), allCamerasKey).Err(); err != nil {
		c.logger.Debug("camera cache invalidate failed", zap.Error(err))
	}
}
