package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memhub/memoryd/pkg/apperr"
)

// writeError maps the domain error taxonomy to an HTTP status and JSON
// body, mirroring the teacher's mapServiceError dispatch.
func writeError(c *gin.Context, err error) {
	var validErr *apperr.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validErr.Error()})
		return
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "resource conflict"})
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrSignatureInvalid):
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
	case errors.Is(err, apperr.ErrPackageExpired):
		c.JSON(http.StatusGone, gin.H{"error": "package expired"})
	case errors.Is(err, apperr.ErrBreakerOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm circuit breaker open"})
	case errors.Is(err, apperr.ErrUpstreamTransient), errors.Is(err, apperr.ErrUpstreamMalformed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "llm upstream failure"})
	default:
		slog.Error("unhandled tool dispatch error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
