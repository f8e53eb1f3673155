package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facepool/internal/apperr"
)

// respondError translates domain errors into HTTP statuses. Everything not
// in the taxonomy is a 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrInvalidImage),
		errors.Is(err, apperr.ErrNoFaceDetected),
		errors.Is(err, apperr.ErrAmbiguousFace):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrQueueFull):
		status = http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrClusterRunActive):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrStorageFailure):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
