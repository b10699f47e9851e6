package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/middleware"
	"github.com/lalith-99/chatwire/internal/models"
	"github.com/lalith-99/chatwire/internal/repository"
	"go.uber.org/zap"
)

// UserHandler serves profiles, notification preferences and push devices.
type UserHandler struct {
	users   repository.UserRepository
	devices repository.DeviceRepository
	logger  *zap.Logger
}

func NewUserHandler(users repository.UserRepository, devices repository.DeviceRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, devices: devices, logger: logger.Named("users")}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	h.respondUser(c, middleware.GetUserID(c))
}

// Get handles GET /v1/users/:id. The presence mirror on the row is what
// renders "last seen" for users who are not connected.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	h.respondUser(c, id)
}

func (h *UserHandler) respondUser(c *gin.Context, id uuid.UUID) {
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get user", err)
		return
	}
	if user == nil {
		respondError(c, h.logger, "get user", apperr.NotFound("user"))
		return
	}
	c.JSON(http.StatusOK, user)
}

type notificationPrefsRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetNotifications handles PUT /v1/users/me/notifications
func (h *UserHandler) SetNotifications(c *gin.Context) {
	var req notificationPrefsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := middleware.GetUserID(c)
	if err := h.users.SetNotificationsEnabled(c.Request.Context(), userID, *req.Enabled); err != nil {
		respondError(c, h.logger, "update notification preference", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications_enabled": *req.Enabled})
}

type registerDeviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

// RegisterDevice handles POST /v1/devices
func (h *UserHandler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	device := &models.Device{
		UserID:   middleware.GetUserID(c),
		Token:    strings.TrimSpace(req.Token),
		Platform: strings.ToLower(strings.TrimSpace(req.Platform)),
	}
	if device.Platform == "" {
		device.Platform = "web"
	}
	if err := h.devices.Register(c.Request.Context(), device); err != nil {
		respondError(c, h.logger, "register device", err)
		return
	}
	c.JSON(http.StatusCreated, device)
}
