package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/expense-portal/internal/application/dispatcher"
	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/application/service"
	"github.com/garyjia/expense-portal/internal/infrastructure/metrics"
	"github.com/garyjia/expense-portal/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/garyjia/expense-portal/internal/interfaces/http"
	"github.com/garyjia/expense-portal/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External and storage
	external    *ExternalBundle
	fileStorage port.FileStorage
	metrics     *metrics.Metrics

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	User    port.UserRepository
	Request port.RequestRepository
	Voucher port.VoucherRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Auth         service.AuthService
	Submission   service.SubmissionService
	Approval     service.ApprovalService
	Dashboard    service.DashboardService
	Export       service.TransactionExporter
	Proofs       service.ProofService
	OCR          service.OCRService
	Visibility   service.VisibilityResolver
	Notification service.NotificationService
}

// HTTP returns the subset of services the HTTP layer drives.
func (b *ServiceBundle) HTTP() httpapi.Services {
	return httpapi.Services{
		Auth:       b.Auth,
		Submission: b.Submission,
		Approval:   b.Approval,
		Dashboard:  b.Dashboard,
		Export:     b.Export,
		Proofs:     b.Proofs,
		OCR:        b.OCR,
	}
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and repositories
// 2. External clients (OpenAI, Lark) and storage
// 3. Event dispatcher and metrics
// 4. Application services and event subscriptions
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external clients (OCR, Lark) and storage
	if err := c.initExternal(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	// Step 3: Initialize dispatcher and metrics
	c.dispatcher = ProvideDispatcher(c.logger)
	c.metrics = metrics.New()

	// Step 4: Initialize application services and event handlers
	if err := c.initServices(); err != nil {
		_ = c.dispatcher.Close()
		c.closeDatabase()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Step 1: Close dispatcher (reverse of step 3); in-flight
	// notifications finish before the database goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 2: Services, storage and external clients need no cleanup

	// Step 3: Close database (reverse of step 1)
	if err := c.closeDatabase(); err != nil {
		errs = append(errs, err)
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.db != nil {
		if err := c.db.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	ocr := ComponentHealth{Healthy: true, Message: "disabled"}
	if c.external != nil && c.external.Extractor != nil {
		ocr.Message = "enabled"
	}
	status.Components["ocr"] = ocr

	lark := ComponentHealth{Healthy: true, Message: "disabled"}
	if c.config.Lark.Enabled() {
		lark.Message = "enabled"
	}
	status.Components["lark"] = lark

	return status
}

// PingContext reports database reachability; it lets the container
// serve as the HTTP health checker.
func (c *Container) PingContext(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// NewHTTPServer builds the HTTP server over the started container.
func (c *Container) NewHTTPServer() (*httpapi.Server, error) {
	if !c.Ready() {
		return nil, fmt.Errorf("container not started")
	}

	cfg := httpapi.DefaultServerConfig()
	if c.config.Server.Host != "" {
		cfg.Host = c.config.Server.Host
	}
	if c.config.Server.Port > 0 {
		cfg.Port = c.config.Server.Port
	}
	if c.config.Server.ReadTimeout > 0 {
		cfg.ReadTimeout = c.config.Server.ReadTimeout
	}
	if c.config.Server.WriteTimeout > 0 {
		cfg.WriteTimeout = c.config.Server.WriteTimeout
	}
	if c.config.Server.MaxBodyBytes > 0 {
		cfg.MaxBodyBytes = c.config.Server.MaxBodyBytes
	}
	cfg.ExposeMetrics = !c.config.Server.DisableMetrics
	if c.config.Storage.MaxUploadBytes > 0 {
		cfg.MaxUploadBytes = c.config.Storage.MaxUploadBytes
	}

	return httpapi.NewServer(cfg, c.services.HTTP(), c, c.metrics,
		&zapLoggerAdapter{logger: c.logger.Named("http")}), nil
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.txManager = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initExternal() error {
	external, err := ProvideExternal(&c.config.OpenAI, &c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.external = external

	fileStorage, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.fileStorage = fileStorage
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:       c.repositories,
		TxManager:   c.txManager,
		FileStorage: c.fileStorage,
		External:    c.external,
		Dispatcher:  c.dispatcher,
		Metrics:     c.metrics,
		AuthCfg:     &c.config.Auth,
		StorageCfg:  &c.config.Storage,
		VoucherCfg:  &c.config.Voucher,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) closeDatabase() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.txManager
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Metrics returns the Prometheus collectors.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// zapLoggerAdapter adapts zap.Logger to the service, dispatcher and
// http Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
