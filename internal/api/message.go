package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/chatwire/internal/delivery"
	"github.com/lalith-99/chatwire/internal/messaging"
	"github.com/lalith-99/chatwire/internal/middleware"
	"go.uber.org/zap"
)

// MaxUploadBytes caps a single attachment.
const MaxUploadBytes = 25 << 20

// MessageHandler handles sending, history and per-message actions. Sends
// over REST still fan out over the socket; the response is the persisted
// message as the sender should render it.
type MessageHandler struct {
	msgs     *messaging.Service
	delivery *delivery.Service
	logger   *zap.Logger
}

func NewMessageHandler(msgs *messaging.Service, deliverySvc *delivery.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{msgs: msgs, delivery: deliverySvc, logger: logger.Named("messages")}
}

type createMessageRequest struct {
	Content string `json:"content"`
	Sticker string `json:"sticker"`
}

// Create handles POST /v1/chats/:id/messages
func (h *MessageHandler) Create(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.msgs.Send(c.Request.Context(), messaging.SendInput{
		ChatID:   chatID,
		SenderID: middleware.GetUserID(c),
		Content:  req.Content,
		Sticker:  req.Sticker,
	})
	if err != nil {
		respondError(c, h.logger, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Upload handles POST /v1/chats/:id/files as multipart/form-data with a
// "file" part and an optional "caption" field.
func (h *MessageHandler) Upload(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		badRequest(c, "missing file")
		return
	}
	if header.Size > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, h.logger, "read upload", err)
		return
	}
	defer f.Close()

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	msg, err := h.msgs.SendFile(c.Request.Context(), chatID, middleware.GetUserID(c),
		header.Filename, mime, header.Size, f, c.PostForm("caption"))
	if err != nil {
		respondError(c, h.logger, "send file", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/chats/:id/messages?before=123&limit=50
//
// "before" is a message id cursor; omit it to start from the latest. Only
// messages the caller may see are returned, and the caller's own messages
// carry their aggregate delivery status.
func (h *MessageHandler) List(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var before int64
	if b := c.Query("before"); b != "" {
		var err error
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil || before < 0 {
			badRequest(c, "invalid 'before' parameter")
			return
		}
	}
	limit, ok := pageLimit(c)
	if !ok {
		return
	}

	msgs, err := h.msgs.List(c.Request.Context(), chatID, middleware.GetUserID(c), before, limit)
	if err != nil {
		respondError(c, h.logger, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Edit handles PATCH /v1/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.msgs.Edit(c.Request.Context(), messageID, middleware.GetUserID(c), req.Content)
	if err != nil {
		respondError(c, h.logger, "edit message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteForEveryone handles DELETE /v1/messages/:id
func (h *MessageHandler) DeleteForEveryone(c *gin.Context) {
	messageID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	msg, err := h.msgs.DeleteForEveryone(c.Request.Context(), messageID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "delete message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteForMe handles POST /v1/messages/:id/hide
func (h *MessageHandler) DeleteForMe(c *gin.Context) {
	messageID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.delivery.DeleteForMe(c.Request.Context(), messageID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "hide message", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FileURL handles GET /v1/messages/:id/file
func (h *MessageHandler) FileURL(c *gin.Context) {
	messageID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	url, err := h.msgs.FileURL(c.Request.Context(), messageID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "file url", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// MarkRead handles POST /v1/chats/:id/read, the REST twin of the socket's
// mark-read for clients that read history without joining the room.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.delivery.MarkChatRead(c.Request.Context(), chatID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, "mark read", err)
		return
	}
	c.Status(http.StatusNoContent)
}
