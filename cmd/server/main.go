package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/app"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/config"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/handler"
	"github.com/commercetools/commercetools-payone-integration-sub001/pkg/logger"
	"github.com/commercetools/commercetools-payone-integration-sub001/pkg/middleware"
)

const serviceName = "payone-integration"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Environment)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg, log)
	cancelStart()
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	paymentHandler := handler.NewPaymentHandler(a.Payments, log)
	notificationHandler := handler.NewNotificationHandler(a.NotificationDispatcher, log)

	router := setupRouter(a, paymentHandler, notificationHandler, log, cfg.IsDevelopment())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("starting server",
			zap.String("port", cfg.Port),
			zap.String("ledger", cfg.LedgerBackend),
			zap.String("payone_mode", cfg.PayoneMode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func setupRouter(a *app.App, payments *handler.PaymentHandler, notifications *handler.NotificationHandler, log *zap.Logger, development bool) *gin.Engine {
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	// Health checks
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if failures := a.Ready(c.Request.Context()); len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "failures": failures})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	v1 := router.Group("/api/v1")
	{
		p := v1.Group("/payments")
		{
			p.POST("", payments.CreatePayment)
			p.GET("/:id", payments.GetPayment)
			p.POST("/:id/handle", payments.HandlePayment)
			p.GET("/:id/handle", payments.HandlePayment)
		}

		// PAYONE TransactionStatus push
		v1.POST("/notifications/payone", notifications.Payone)
	}

	return router
}
