// Package response writes the JSON envelope every API endpoint answers with.
package response

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloudsync/internal/apperr"
	"cloudsync/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func envelope(success bool, msg string, data any) Envelope {
	return Envelope{
		Success:   success,
		Message:   msg,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func OK(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, envelope(true, msg, data))
}

func Created(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusCreated, envelope(true, msg, data))
}

// Status maps an error kind to its HTTP status code.
func Status(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindUploadFailed:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error aborts the request with the envelope for err. Internal errors are logged and
// answered with a generic message.
func Error(c *gin.Context, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		log := logger.GetLogger(c.Request.Context())
		if errors.Is(err, context.Canceled) {
			log.Info("request cancelled", zap.String("route", c.FullPath()))
		} else {
			log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		}
	}
	c.AbortWithStatusJSON(status, envelope(false, apperr.Message(err), nil))
}

// Fail aborts with a plain message and status, for failures that happen before any
// service is involved.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope(false, msg, nil))
}
