package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

// PaymentService is implemented by service.PaymentService.
type PaymentService interface {
	CreatePayment(ctx context.Context, req *models.CreatePaymentRequest) (*models.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	HandlePayment(ctx context.Context, paymentID string) (*models.Payment, error)
}

type PaymentHandler struct {
	service PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(service PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.service.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, "failed to create payment", err)
		return
	}

	c.JSON(http.StatusCreated, models.NewPaymentResponse(payment))
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.service.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "failed to get payment", err)
		return
	}

	c.JSON(http.StatusOK, models.NewPaymentResponse(payment))
}

// HandlePayment handles POST /api/v1/payments/:id/handle and the GET the
// customer's browser sends when returning from a redirect.
func (h *PaymentHandler) HandlePayment(c *gin.Context) {
	paymentID := c.Param("id")

	payment, err := h.service.HandlePayment(c.Request.Context(), paymentID)
	if err != nil {
		writeError(c, h.logger, "failed to handle payment", err)
		return
	}

	h.logger.Debug("payment handled",
		zap.String("payment_id", paymentID),
		zap.String("result", c.Query("result")),
		zap.Int64("version", payment.Version))
	c.JSON(http.StatusOK, models.NewPaymentResponse(payment))
}
