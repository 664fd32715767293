package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/gateway"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

// maxNotificationBytes bounds the body read from the notification endpoint.
const maxNotificationBytes = 64 << 10

// NotificationDispatcher is implemented by service.NotificationDispatcher.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) (*models.Payment, error)
}

type NotificationHandler struct {
	dispatcher NotificationDispatcher
	logger     *zap.Logger
}

func NewNotificationHandler(dispatcher NotificationDispatcher, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Payone handles POST /api/v1/notifications/payone. PAYONE keeps re-sending a
// notification until it receives TSOK.
func (h *NotificationHandler) Payone(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	n := models.NewNotification(gateway.ParseFormBody(string(body)))
	if _, err := h.dispatcher.Dispatch(c.Request.Context(), n); err != nil {
		writeError(c, h.logger, "failed to process notification", err)
		return
	}

	c.String(http.StatusOK, "TSOK")
}
