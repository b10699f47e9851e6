package messaging

import (
	"strings"

	"github.com/lalith-99/chatwire/internal/models"
)

// TombstoneContent replaces the content of a message deleted for everyone.
const TombstoneContent = "This message was deleted"

var documentMimes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/rtf":    true,
	"text/plain":         true,
	"text/csv":           true,
}

var documentPrefixes = []string{
	"application/vnd.openxmlformats-officedocument.",
	"application/vnd.ms-",
	"application/vnd.oasis.opendocument.",
}

// Classify picks the message type for a file from its mime type.
func Classify(mime string) models.MessageType {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MessageImage
	case strings.HasPrefix(mime, "video/"):
		return models.MessageVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.MessageAudio
	case documentMimes[mime]:
		return models.MessageDocument
	}
	for _, p := range documentPrefixes {
		if strings.HasPrefix(mime, p) {
			return models.MessageDocument
		}
	}
	return models.MessageFile
}

// Preview is the chat-list line for a message.
func Preview(msg *models.Message) string {
	switch msg.Type {
	case models.MessageImage:
		return "📷 Photo"
	case models.MessageVideo:
		return "🎥 Video"
	case models.MessageAudio:
		return "🎵 Audio"
	case models.MessageDocument:
		return "📄 Document"
	case models.MessageFile:
		return "📎 File"
	case models.MessageSticker:
		return msg.Content + " Sticker"
	case models.MessageDeleted:
		return TombstoneContent
	}
	return msg.Content
}
