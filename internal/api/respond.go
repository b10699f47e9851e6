package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/apperr"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// respondError answers with the status the error kind maps to. Errors outside
// the taxonomy are logged and hidden behind a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		c.JSON(apperr.HTTPStatus(ae), gin.H{"error": ae.Message, "code": ae.Code})
		return
	}
	logger.Error(op+" failed", zap.Error(err), zap.String("path", c.FullPath()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed", "code": apperr.CodeInternal})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.CodeInvalidPayload})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// pageLimit reads ?limit=, defaulting to 50 and capping at 100.
func pageLimit(c *gin.Context) (int, bool) {
	l := c.Query("limit")
	if l == "" {
		return defaultPageSize, true
	}
	limit, err := strconv.Atoi(l)
	if err != nil || limit < 1 {
		badRequest(c, "invalid 'limit' parameter")
		return 0, false
	}
	return min(limit, maxPageSize), true
}
