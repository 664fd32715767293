package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/service"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var validation *service.ValidationError
	var conflict *service.ConflictError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrConcurrentExecution):
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log *zap.Logger, msg string, err error) {
	status := statusFor(err)

	var conflict *service.ConflictError
	body := gin.H{"error": err.Error()}
	switch {
	case status == http.StatusInternalServerError:
		log.Error(msg, zap.Error(err))
		body = gin.H{"error": "internal error"}
	case status == http.StatusAccepted:
		body = gin.H{"status": "in_progress"}
	case errors.As(err, &conflict):
		body["retryable"] = conflict.Retryable
	}

	c.JSON(status, body)
}
