package container

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-portal/internal/application/dispatcher"
	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/application/service"
	"github.com/garyjia/expense-portal/internal/infrastructure/auth"
	infraLark "github.com/garyjia/expense-portal/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-portal/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-portal/internal/infrastructure/metrics"
	"github.com/garyjia/expense-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-portal/internal/infrastructure/storage"
	"github.com/garyjia/expense-portal/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ExternalBundle holds the optional outbound integrations.
type ExternalBundle struct {
	// Extractor is nil when OCR is disabled
	Extractor port.OCRExtractor
	Notifier  port.Notifier
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		User:    repository.NewUserRepository(db.DB, logger),
		Request: repository.NewRequestRepository(db.DB, logger),
		Voucher: repository.NewVoucherRepository(db.DB, logger),
	}, nil
}

// ProvideExternal creates the OCR extractor and notifier. Either side
// degrades to disabled when its credentials are absent.
func ProvideExternal(openaiCfg *OpenAIConfig, larkCfg *LarkConfig, logger *zap.Logger) (*ExternalBundle, error) {
	bundle := &ExternalBundle{}

	if openaiCfg.Enabled() {
		prompts, err := openai.LoadPrompts(openaiCfg.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		bundle.Extractor = openai.NewBillExtractor(openai.Config{
			APIKey:   openaiCfg.APIKey,
			Model:    openaiCfg.Model,
			BaseURL:  openaiCfg.BaseURL,
			MaxPages: openaiCfg.MaxPages,
			Timeout:  openaiCfg.Timeout,
		}, prompts, logger)
		logger.Info("OCR enabled", zap.String("model", openaiCfg.Model))
	} else {
		logger.Info("OCR disabled, no OpenAI API key configured")
	}

	if larkCfg.Enabled() {
		bundle.Notifier = infraLark.NewNotifier(infraLark.Config{
			AppID:     larkCfg.AppID,
			AppSecret: larkCfg.AppSecret,
			BaseURL:   larkCfg.BaseURL,
		}, logger)
		logger.Info("Lark notifications enabled")
	} else {
		bundle.Notifier = infraLark.NewNoopNotifier(logger)
		logger.Info("Lark notifications disabled")
	}

	return bundle, nil
}

// ProvideStorage creates the proof file storage.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("storage base dir is required")
	}
	return storage.NewLocalFileStorage(cfg.BaseDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
		dispatcher.WithHandlerTimeout(30*time.Second),
	)
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	FileStorage port.FileStorage
	External    *ExternalBundle
	Dispatcher  dispatcher.Dispatcher
	Metrics     *metrics.Metrics
	AuthCfg     *AuthConfig
	StorageCfg  *StorageConfig
	VoucherCfg  *VoucherConfig
	Logger      *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// event handlers (notifications, metrics) to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	log := &zapLoggerAdapter{logger: deps.Logger.Named("service")}

	issuer, err := auth.NewJWTIssuer(deps.AuthCfg.JWTSecret, deps.AuthCfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	loc := deps.VoucherCfg.location()
	numberer := service.NewVoucherNumberer(deps.Repos.Voucher, func() time.Time { return time.Now().In(loc) })
	visibility := service.NewVisibilityResolver(deps.Repos.User)
	proofs := service.NewProofService(deps.FileStorage, visibility, deps.StorageCfg.MaxUploadBytes, log)

	notifications := service.NewNotificationService(deps.Repos.User, deps.External.Notifier, log)
	notifications.Register(deps.Dispatcher)
	if deps.Metrics != nil {
		deps.Metrics.Register(deps.Dispatcher)
	}

	return &ServiceBundle{
		Auth:         service.NewAuthService(deps.Repos.User, issuer, log),
		Submission:   service.NewSubmissionService(deps.Repos.Request, deps.Repos.Voucher, numberer, deps.TxManager, deps.Dispatcher, log),
		Approval:     service.NewApprovalService(deps.Repos.Request, deps.Repos.Voucher, deps.TxManager, visibility, deps.Dispatcher, log),
		Dashboard:    service.NewDashboardService(deps.Repos.Request, deps.Repos.Voucher, visibility, log),
		Export:       service.NewTransactionExporter(deps.Repos.Voucher, log),
		Proofs:       proofs,
		OCR:          service.NewOCRService(deps.External.Extractor, proofs, log),
		Visibility:   visibility,
		Notification: notifications,
	}, nil
}
