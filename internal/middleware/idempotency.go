package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyKey       = "idempotency_key"
	maxIdempotencyKeyLen = 255
)

// IdempotencyMiddleware reads the Idempotency-Key header of POST requests.
// Duplicates are detected by the order store's unique index; this only
// validates the key and hands it to the handler.
func IdempotencyMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			logger.Info("idempotency key rejected", zap.Int("length", len(key)))
			abort(c, http.StatusBadRequest, errors.New("idempotency key must be at most 255 characters"))
			return
		}

		c.Set(idempotencyKey, key)
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, empty when the request had none.
func GetIdempotencyKey(c *gin.Context) string {
	return c.GetString(idempotencyKey)
}
