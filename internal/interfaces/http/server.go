// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-portal/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Observer receives request and export measurements
type Observer interface {
	ObserveHTTP(method, route string, code int, elapsed time.Duration)
	ObserveExport(rows int)
	Handler() http.Handler
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxBodyBytes   int64
	MaxUploadBytes int64
	ExposeMetrics  bool
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxBodyBytes:   1 << 20,
		MaxUploadBytes: 10 << 20,
		ExposeMetrics:  true,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	metrics    Observer
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	services Services,
	health HealthChecker,
	metrics Observer,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if config.MaxUploadBytes > 0 {
		// multipart parts beyond this spill to temp files
		router.MaxMultipartMemory = config.MaxUploadBytes
	}

	server := &Server{
		config:   config,
		router:   router,
		handlers: NewHandlers(services, health, metrics, logger),
		metrics:  metrics,
		logger:   logger,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers
	limitJSON := h.bodyLimit(s.config.MaxBodyBytes)
	limitUpload := h.bodyLimit(s.config.MaxUploadBytes + multipartOverhead)

	// Health and metrics
	s.router.GET("/health", h.HealthCheck)
	if s.config.ExposeMetrics {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	// API routes
	api := s.router.Group("/api")
	api.POST("/auth/login", limitJSON, h.Login)

	authed := api.Group("", h.authMiddleware())
	{
		// JSON endpoints
		j := authed.Group("", limitJSON)
		j.GET("/auth/me", h.Me)
		j.GET("/dashboard", h.Dashboard)

		// Request routes
		j.POST("/requests/:formType", h.Submit)
		j.GET("/requests/:formType/:id", h.GetRequest)
		j.POST("/requests/:formType/:id/manager-action", h.requireRole(entity.RoleManager), h.ManagerRequestAction)
		j.POST("/requests/:formType/:id/admin-action", h.requireRole(entity.RoleAdmin), h.AdminRequestAction)

		// Voucher routes
		j.GET("/vouchers", h.ListVouchers)
		j.GET("/vouchers/:id", h.GetVoucher)
		j.POST("/vouchers/:id/manager-action", h.requireRole(entity.RoleManager), h.ManagerVoucherAction)
		j.POST("/vouchers/:id/admin-action", h.requireRole(entity.RoleAdmin), h.AdminVoucherAction)
		j.POST("/vouchers/:id/complete", h.requireRole(entity.RoleAdmin), h.CompleteVoucher)

		j.GET("/admin/transactions/export", h.requireRole(entity.RoleAdmin), h.ExportTransactions)

		// Multipart endpoints
		authed.POST("/proofs", limitUpload, h.UploadProof)
		authed.GET("/proofs/*path", h.ReadProof)
		authed.POST("/ocr/extract", limitUpload, h.ExtractBill)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
