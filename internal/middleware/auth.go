package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/auth"
)

// ContextKeyUserID is where the authenticated user id lives on the gin.Context.
const ContextKeyUserID = "user_id"

// AuthMiddleware returns a Gin middleware that validates bearer JWTs.
//
// If the token is missing or invalid the chain is aborted with a 401 and the
// handler never runs. Otherwise the claims are stored on the context and the
// request continues.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		token, ok := parseBearer(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

// BearerToken extracts the credential for a socket upgrade. Browsers cannot
// set headers on a WebSocket handshake, so the "token" query parameter is
// accepted ahead of the Authorization header.
func BearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if token, ok := parseBearer(c.GetHeader("Authorization")); ok {
		return token
	}
	return ""
}

func parseBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetUserID returns uuid.Nil when the key is missing, which fails any
// downstream lookup gracefully.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
