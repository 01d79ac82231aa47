package analytics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/response"
)

// Handler serves usage and playback-history endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Summary handles GET /api/analytics/summary.
func (h *Handler) Summary(c *gin.Context) {
	s, err := h.repo.GetUsageSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load usage summary", zap.Error(err))
		response.Internal(c, "Failed to load usage summary")
		return
	}
	response.OK(c, s)
}

// TopCameras handles GET /api/analytics/top-cameras.
func (h *Handler) TopCameras(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	list, err := h.repo.GetTopCameras(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load top cameras", zap.Error(err))
		response.Internal(c, "Failed to load top cameras")
		return
	}
	if list == nil {
		list = []TopCamera{}
	}
	response.OK(c, list)
}

// PlayerLogs handles GET /api/analytics/player-logs.
// Accepts optional camera_id and limit query params.
func (h *Handler) PlayerLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	if raw := c.Query("camera_id"); raw != "" {
		cameraID, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "Invalid camera id")
			return
		}
		list, err := h.repo.ListByCamera(c.Request.Context(), cameraID, limit)
		if err != nil {
			h.logger.Error("failed to load player logs", zap.String("camera_id", raw), zap.Error(err))
			response.Internal(c, "Failed to load player logs")
			return
		}
		response.OK(c, list)
		return
	}

	list, err := h.repo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load player logs", zap.Error(err))
		response.Internal(c, "Failed to load player logs")
		return
	}
	response.OK(c, list)
}

// LoginActivity handles GET /api/analytics/login-activity.
// Accepts optional start_date and end_date query params (RFC 3339 or YYYY-MM-DD).
func (h *Handler) LoginActivity(c *gin.Context) {
	start, ok := parseDateParam(c, "start_date")
	if !ok {
		return
	}
	end, ok := parseDateParam(c, "end_date")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	list, err := h.repo.ListLoginActivity(c.Request.Context(), start, end, limit)
	if err != nil {
		h.logger.Error("failed to load login activity", zap.Error(err))
		response.Internal(c, "Failed to load login activity")
		return
	}
	if list == nil {
		list = []models.LoginActivity{}
	}
	response.OK(c, list)
}

func parseDateParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	response.BadRequest(c, "Invalid "+name)
	return time.Time{}, false
}
