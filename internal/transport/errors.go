package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	msgExperienceNotFound = "Experience not found."
	msgSlotNotFound       = "Slot not found."
	msgBookingNotFound    = "Booking not found."
	msgInvalidPromo       = "Invalid or expired promo code."
	msgKeyReused          = "This idempotency key was already used for a different booking."
	msgInvalidBody        = "Invalid request body."
	msgUnavailable        = "Service temporarily unavailable. Please try again."
	msgInternal           = "Something went wrong. Please try again."
)

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Remaining *int              `json:"remaining,omitempty"`
}

// respondError maps a service error to a status code and user facing message.
// Business outcomes are not logged; infrastructure failures are.
func respondError(c *gin.Context, err error) {
	var (
		validationErr *entity.ValidationError
		capacityErr   *entity.CapacityError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: validationErr.Message, Fields: validationErr.Fields})

	case errors.As(err, &capacityErr):
		remaining := capacityErr.Remaining
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message:   fmt.Sprintf("Sorry, only %d spots are left for this slot.", remaining),
			Remaining: &remaining,
		})

	case errors.Is(err, entity.ErrExperienceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: msgExperienceNotFound})
	case errors.Is(err, entity.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: msgSlotNotFound})
	case errors.Is(err, entity.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: msgBookingNotFound})
	case errors.Is(err, entity.ErrPromoNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: msgInvalidPromo})

	case errors.Is(err, entity.ErrIdempotencyKeyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Message: msgKeyReused})

	case errors.Is(err, entity.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		requestLog(c).WithError(err).Error("Store unavailable")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: msgUnavailable})

	default:
		requestLog(c).WithError(err).Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: msgInternal})
	}
}

// bindJSON decodes the request body into dst. An empty body leaves dst zeroed
// so the service reports the missing fields itself.
func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	logrus.WithError(err).Debug("Malformed request body")
	c.JSON(http.StatusBadRequest, ErrorResponse{Message: msgInvalidBody})
	return false
}

func requestLog(c *gin.Context) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	})
}
