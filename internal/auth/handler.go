package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/events"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/response"
	"github.com/videohub/backend/pkg/utils"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"` // optional, defaults to user
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   *Repository
	jwt    *JWTService
	events events.Publisher
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, pub events.Publisher, logger *zap.Logger) *Handler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Handler{repo: repo, jwt: jwt, events: pub, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.RoleUser
	switch req.Role {
	case "", "user":
	case "admin":
		role = models.RoleAdmin
	default:
		response.BadRequest(c, "invalid role")
		return
	}

	if _, err := h.repo.GetByUsername(c.Request.Context(), req.Username); err == nil {
		response.BadRequest(c, "username already taken")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), req.Username, req.Email, hash, role)
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Username, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		h.recordLogin(c, nil, req.Username, false)
		response.Unauthorized(c, "invalid username or password")
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		h.recordLogin(c, &user.ID, user.Username, false)
		response.Unauthorized(c, "invalid username or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Username, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	h.recordLogin(c, &user.ID, user.Username, true)
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// recordLogin writes the login_activity row and notifies the event sink.
// Best effort: auditing must never fail the login itself.
func (h *Handler) recordLogin(c *gin.Context, userID *uuid.UUID, username string, success bool) {
	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	if err := h.repo.RecordLoginActivity(c.Request.Context(), userID, username, ip, userAgent, success); err != nil {
		h.logger.Warn("record login activity", zap.String("username", username), zap.Error(err))
	}
	h.events.Publish("user_login", map[string]any{
		"username":   username,
		"success":    success,
		"ip_address": ip,
		"user_agent": userAgent,
	})
}

// Verify handles GET /auth/verify: validates the bearer token and returns
// the current user's record.
func (h *Handler) Verify(c *gin.Context) {
	claims, ok := h.bearerClaims(c)
	if !ok {
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}
	response.OK(c, user.ToPublic())
}

// Logout handles POST /auth/logout. Tokens are stateless, so logout is an
// audit notification rather than an invalidation.
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := h.bearerClaims(c)
	if !ok {
		return
	}
	h.events.Publish("user_logout", map[string]any{
		"user_id":    claims.UserID.String(),
		"username":   claims.Username,
		"role":       claims.Role,
		"ip_address": c.ClientIP(),
		"user_agent": c.Request.UserAgent(),
	})
	response.OK(c, gin.H{"message": "logout successful"})
}

func (h *Handler) bearerClaims(c *gin.Context) (*Claims, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		response.Unauthorized(c, "missing or invalid authorization header")
		return nil, false
	}
	claims, err := h.jwt.Validate(parts[1])
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return nil, false
	}
	return claims, true
}

// List handles GET /users (admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}
