package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/membership"
	"github.com/lalith-99/chatwire/internal/middleware"
	"go.uber.org/zap"
)

// MembershipHandler handles group membership changes, muting and blocks.
// Every change fans out over the socket too; these responses only confirm
// the caller's own request.
type MembershipHandler struct {
	svc    *membership.Service
	logger *zap.Logger
}

func NewMembershipHandler(svc *membership.Service, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{svc: svc, logger: logger.Named("membership")}
}

type addMembersRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1"`
}

// AddMembers handles POST /v1/chats/:id/members
func (h *MembershipHandler) AddMembers(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req addMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	count, err := h.svc.AddMembers(c.Request.Context(), chatID, middleware.GetUserID(c), req.UserIDs)
	if err != nil {
		respondError(c, h.logger, "add members", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_count": count})
}

// RemoveMember handles DELETE /v1/chats/:id/members/:userId
func (h *MembershipHandler) RemoveMember(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	count, err := h.svc.RemoveMember(c.Request.Context(), chatID, middleware.GetUserID(c), targetID)
	if err != nil {
		respondError(c, h.logger, "remove member", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_count": count})
}

// Leave handles POST /v1/chats/:id/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.LeaveGroup(c.Request.Context(), chatID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "leave group", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Mute handles POST /v1/chats/:id/mute. Each call flips the flag.
func (h *MembershipHandler) Mute(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	muted, err := h.svc.MuteChat(c.Request.Context(), chatID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "mute chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_muted": muted})
}

// Block handles POST /v1/users/:id/block
func (h *MembershipHandler) Block(c *gin.Context) {
	h.setBlock(c, true)
}

// Unblock handles DELETE /v1/users/:id/block
func (h *MembershipHandler) Unblock(c *gin.Context) {
	h.setBlock(c, false)
}

func (h *MembershipHandler) setBlock(c *gin.Context, blocked bool) {
	targetID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)
	var err error
	if blocked {
		err = h.svc.Block(c.Request.Context(), userID, targetID)
	} else {
		err = h.svc.Unblock(c.Request.Context(), userID, targetID)
	}
	if err != nil {
		respondError(c, h.logger, "update block", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": targetID, "blocked": blocked})
}
