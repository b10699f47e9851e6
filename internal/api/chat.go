package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/membership"
	"github.com/lalith-99/chatwire/internal/middleware"
	"go.uber.org/zap"
)

// ChatHandler handles chat creation and listing. Who is in a chat after
// creation is MembershipHandler's concern.
type ChatHandler struct {
	chats  *membership.Service
	logger *zap.Logger
}

func NewChatHandler(chats *membership.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger.Named("chats")}
}

// List handles GET /v1/chats, most recently active first.
func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.chats.ListChats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list chats", err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

type createPrivateRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// CreatePrivate handles POST /v1/chats/private
//
// Idempotent: asking twice for the same pair, in either order, returns the
// existing chat with 200 instead of 201.
func (h *ChatHandler) CreatePrivate(c *gin.Context) {
	var req createPrivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	chat, created, err := h.chats.CreatePrivateChat(c.Request.Context(), middleware.GetUserID(c), req.UserID)
	if err != nil {
		respondError(c, h.logger, "create private chat", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, chat)
}

type createGroupRequest struct {
	Name        string      `json:"name" binding:"required"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	MemberIDs   []uuid.UUID `json:"member_ids"`
}

// CreateGroup handles POST /v1/chats/groups. The caller becomes admin.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	chat, err := h.chats.CreateGroup(c.Request.Context(), middleware.GetUserID(c), membership.GroupInput{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		respondError(c, h.logger, "create group", err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// Members handles GET /v1/chats/:id/members
func (h *ChatHandler) Members(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	members, err := h.chats.Members(c.Request.Context(), chatID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list members", err)
		return
	}
	c.JSON(http.StatusOK, members)
}
