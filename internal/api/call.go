package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/chatwire/internal/calls"
	"github.com/lalith-99/chatwire/internal/middleware"
	"go.uber.org/zap"
)

// CallHandler exposes call history. Signaling itself only happens over the
// socket.
type CallHandler struct {
	calls  *calls.Coordinator
	logger *zap.Logger
}

func NewCallHandler(coordinator *calls.Coordinator, logger *zap.Logger) *CallHandler {
	return &CallHandler{calls: coordinator, logger: logger.Named("calls")}
}

// History handles GET /v1/calls?limit=50
func (h *CallHandler) History(c *gin.Context) {
	limit, ok := pageLimit(c)
	if !ok {
		return
	}
	out, err := h.calls.History(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		respondError(c, h.logger, "call history", err)
		return
	}
	c.JSON(http.StatusOK, out)
}
