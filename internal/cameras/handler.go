package cameras

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/mediastore"
	"github.com/videohub/backend/internal/middleware"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/response"
)

const maxUploadSize = 100 * 1024 * 1024 // 100MB

// Handler handles camera CRUD endpoints.
type Handler struct {
	repo   *Repository
	cache  *Cache
	store  mediastore.Store
	logger *zap.Logger
}

// NewHandler creates a cameras handler.
func NewHandler(repo *Repository, cache *Cache, store mediastore.Store, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, cache: cache, store: store, logger: logger}
}

// List handles GET /cameras.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	if cached := h.cache.GetAll(ctx); cached != nil {
		response.OK(c, cached)
		return
	}
	list, err := h.repo.List(ctx)
	if err != nil {
		h.logger.Error("list cameras", zap.Error(err))
		response.Internal(c, "failed to fetch cameras")
		return
	}
	h.cache.SetAll(ctx, list)
	response.OK(c, list)
}

// Get handles GET /cameras/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid camera id")
		return
	}
	ctx := c.Request.Context()
	if cam := h.cache.Get(ctx, id); cam != nil {
		response.OK(c, cam)
		return
	}
	cam, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "camera not found")
			return
		}
		response.Internal(c, "failed to fetch camera")
		return
	}
	h.cache.Set(ctx, cam)
	response.OK(c, cam)
}

// Create handles POST /cameras (admin, multipart with a video file). The
// uploaded file is stored via the media store; transcoding to a streamable
// container is handled by an external pipeline before assets go live.
func (h *Handler) Create(c *gin.Context) {
	name := c.PostForm("name")
	location := c.PostForm("location")
	resolution := c.PostForm("resolution")
	frameRate, _ := strconv.Atoi(c.PostForm("frame_rate"))

	if name == "" || location == "" || resolution == "" || frameRate == 0 {
		response.BadRequest(c, "required fields are missing")
		return
	}
	if !models.ValidResolutions[resolution] {
		response.BadRequest(c, "invalid resolution")
		return
	}
	if frameRate < 15 || frameRate > 60 {
		response.BadRequest(c, "frame rate must be between 15 and 60")
		return
	}

	file, header, err := c.Request.FormFile("video")
	if err != nil {
		response.BadRequest(c, "video file is required")
		return
	}
	defer file.Close()
	if header.Size > maxUploadSize {
		response.BadRequest(c, "video file exceeds 100MB limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		response.BadRequest(c, "only video files are allowed")
		return
	}

	fileName := fmt.Sprintf("%s%s", uuid.New().String(), path.Ext(header.Filename))
	videoURL := "/uploads/" + fileName

	ctx := c.Request.Context()
	if err := h.store.Put(ctx, "uploads/"+fileName, file, header.Size, contentType); err != nil {
		h.logger.Error("store video", zap.Error(err))
		response.Internal(c, "failed to store video")
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	cam, err := h.repo.Create(ctx, CreateParams{
		Name:          name,
		Description:   c.PostForm("description"),
		Location:      location,
		VideoURL:      videoURL,
		VideoFileName: fileName,
		VideoFileSize: header.Size,
		Resolution:    resolution,
		FrameRate:     frameRate,
		CreatedBy:     userID,
	})
	if err != nil {
		h.logger.Error("create camera", zap.Error(err))
		response.Internal(c, "failed to create camera")
		return
	}
	h.cache.Invalidate(ctx, cam.ID)
	h.cache.Set(ctx, cam)
	response.Created(c, cam)
}

// UpdateRequest is the body for PATCH /cameras/:id.
type UpdateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Location    string `json:"location" binding:"required"`
	Status      string `json:"status"`
}

// Update handles PATCH /cameras/:id (admin).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid camera id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	status := models.CameraOnline
	switch req.Status {
	case "", "online":
	case "offline":
		status = models.CameraOffline
	case "maintenance":
		status = models.CameraMaintenance
	default:
		response.BadRequest(c, "invalid status")
		return
	}
	ctx := c.Request.Context()
	cam, err := h.repo.Update(ctx, id, UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		Status:      status,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "camera not found")
			return
		}
		response.Internal(c, "failed to update camera")
		return
	}
	h.cache.Invalidate(ctx, id)
	response.OK(c, cam)
}

// Delete handles DELETE /cameras/:id (admin).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid camera id")
		return
	}
	ctx := c.Request.Context()
	if err := h.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "camera not found")
			return
		}
		response.Internal(c, "failed to delete camera")
		return
	}
	h.cache.Invalidate(ctx, id)
	response.NoContent(c)
}
