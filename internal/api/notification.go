package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/chatwire/internal/apperr"
	"github.com/lalith-99/chatwire/internal/middleware"
	"github.com/lalith-99/chatwire/internal/notify"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	hook   *notify.Hook
	logger *zap.Logger
}

func NewNotificationHandler(hook *notify.Hook, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{hook: hook, logger: logger.Named("notifications")}
}

// List handles GET /v1/notifications?limit=50
func (h *NotificationHandler) List(c *gin.Context) {
	limit, ok := pageLimit(c)
	if !ok {
		return
	}
	out, err := h.hook.List(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		respondError(c, h.logger, "list notifications", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// MarkRead handles POST /v1/notifications/:id/read. Another user's
// notification answers 404 rather than 403.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	found, err := h.hook.MarkRead(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, h.logger, "mark notification read", err)
		return
	}
	if !found {
		respondError(c, h.logger, "mark notification read", apperr.NotFound("notification"))
		return
	}
	c.Status(http.StatusNoContent)
}
