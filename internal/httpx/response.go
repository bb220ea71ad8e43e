// Package httpx holds the JSON response helpers shared by the relay handlers.
package httpx

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

func OK(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

// Err writes {"error": msg}. msg may be a string or a field->message map.
func Err(c *gin.Context, code int, msg any) {
	c.JSON(code, gin.H{"error": msg})
}

// Internal logs a storage failure and answers 500 without exposing it.
func Internal(c *gin.Context, log *slog.Logger, op string, err error, attrs ...any) {
	log.ErrorContext(c.Request.Context(), op, append(attrs, "err", err)...)
	Err(c, http.StatusInternalServerError, "db error")
}
