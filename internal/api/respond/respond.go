// Package respond maps service errors onto HTTP responses.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/recallchat/internal/domain"
)

// StatusCode returns the HTTP status for err
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTurnInFlight), errors.Is(err, domain.ErrWarmWatchRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInputDisabled):
		return http.StatusLocked
	default:
		var statusErr *domain.StatusPollError
		if errors.As(err, &statusErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

// Error writes err as a JSON error body and aborts the request
func Error(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusCode(err), gin.H{"error": err.Error()})
}
