package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/cameras"
	"github.com/videohub/backend/internal/mediastore"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/response"
)

const contentTypeMP4 = "video/mp4"

// Handler serves video assets over HTTP: byte-range requests and
// whole-file buffered fetches.
type Handler struct {
	cameras CameraDirectory
	store   mediastore.Store
	logger  *zap.Logger
}

// NewHandler creates a stream HTTP handler.
func NewHandler(dir CameraDirectory, store mediastore.Store, logger *zap.Logger) *Handler {
	return &Handler{cameras: dir, store: store, logger: logger}
}

// Serve handles GET /stream/:cameraId with an optional Range header.
// Responds 200 with the full body, or 206 with exactly the requested
// bytes. This path never touches access counters: marking happens once per
// playback intent, not per range fetch.
func (h *Handler) Serve(c *gin.Context) {
	cam, ok := h.resolveCamera(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Total length is always recomputed from storage, never trusted from
	// the camera record.
	size, err := h.store.Stat(ctx, cam.VideoURL)
	if err != nil {
		if errors.Is(err, mediastore.ErrNotFound) {
			response.NotFound(c, "video file not found")
			return
		}
		h.logger.Error("stat video", zap.String("camera_id", cam.ID.String()), zap.Error(err))
		response.Internal(c, "failed to stream video file")
		return
	}

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		h.serveFull(c, cam.VideoURL, size)
		return
	}

	rng, err := ParseRange(rangeHeader, size)
	if err != nil {
		if errors.Is(err, ErrRangeNotSatisfiable) {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
			response.RangeNotSatisfiable(c, "requested range not satisfiable")
			return
		}
		response.BadRequest(c, "malformed range header")
		return
	}

	src, err := h.store.OpenRange(ctx, cam.VideoURL, rng.Start, rng.End)
	if err != nil {
		h.logger.Error("open range", zap.String("camera_id", cam.ID.String()), zap.Error(err))
		response.Internal(c, "failed to stream video file")
		return
	}
	defer src.Close()

	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, size))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", fmt.Sprintf("%d", rng.Size()))
	c.Header("Content-Type", contentTypeMP4)
	c.Status(http.StatusPartialContent)

	if _, err := io.CopyN(c.Writer, src, rng.Size()); err != nil {
		// Mid-transfer failure: abort, log, no retry. The client re-issues
		// a fresh range.
		h.logger.Warn("range copy aborted",
			zap.String("camera_id", cam.ID.String()),
			zap.Int64("start", rng.Start),
			zap.Error(err))
	}
}

func (h *Handler) serveFull(c *gin.Context, ref string, size int64) {
	src, _, err := h.store.Open(c.Request.Context(), ref)
	if err != nil {
		h.logger.Error("open video", zap.String("ref", ref), zap.Error(err))
		response.Internal(c, "failed to stream video file")
		return
	}
	defer src.Close()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", fmt.Sprintf("%d", size))
	c.Header("Content-Type", contentTypeMP4)
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, src); err != nil {
		h.logger.Warn("full copy aborted", zap.String("ref", ref), zap.Error(err))
	}
}

// ServeBuffer handles POST /stream/buffer/:cameraId: reads the entire
// asset and returns it as one payload. The buffered fetch is a complete
// playback intent, so it marks access.
func (h *Handler) ServeBuffer(c *gin.Context) {
	cam, ok := h.resolveCamera(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.cameras.MarkAccess(ctx, cam.ID); err != nil {
		h.logger.Error("mark access", zap.String("camera_id", cam.ID.String()), zap.Error(err))
		response.Internal(c, "failed to update camera")
		return
	}

	src, _, err := h.store.Open(ctx, cam.VideoURL)
	if err != nil {
		if errors.Is(err, mediastore.ErrNotFound) {
			response.NotFound(c, "video file not found")
			return
		}
		h.logger.Error("open video", zap.String("camera_id", cam.ID.String()), zap.Error(err))
		response.Internal(c, "failed to read video file")
		return
	}
	defer src.Close()

	buf, err := io.ReadAll(src)
	if err != nil {
		h.logger.Error("read video", zap.String("camera_id", cam.ID.String()), zap.Error(err))
		response.Internal(c, "failed to read video file")
		return
	}
	c.Data(http.StatusOK, contentTypeMP4, buf)
}

func (h *Handler) resolveCamera(c *gin.Context) (*models.Camera, bool) {
	id, err := uuid.Parse(c.Param("cameraId"))
	if err != nil {
		response.BadRequest(c, "invalid camera id")
		return nil, false
	}
	cam, err := h.cameras.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, cameras.ErrNotFound) {
			response.NotFound(c, "camera not found")
			return nil, false
		}
		h.logger.Error("get camera", zap.String("camera_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to fetch camera")
		return nil, false
	}
	return cam, true
}
