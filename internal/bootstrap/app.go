package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace-backend/internal/compliance"
	"marketplace-backend/internal/marketplace"
	"marketplace-backend/internal/moderation"
	"marketplace-backend/internal/queue"
	"marketplace-backend/internal/services/health"
	"marketplace-backend/internal/shared/auth"
	"marketplace-backend/internal/shared/config"
	"marketplace-backend/internal/shared/server"
	"marketplace-backend/internal/shared/storage/db"
	"marketplace-backend/internal/shared/storage/object"
	localstore "marketplace-backend/internal/shared/storage/object/local"
	s3store "marketplace-backend/internal/shared/storage/object/s3"
	"marketplace-backend/internal/shared/telemetry"
	"marketplace-backend/internal/uploads"
)

// CompanyStore is the compliance store plus company registration.
type CompanyStore interface {
	compliance.Store
	CreateCompany(ctx context.Context, c compliance.Company) error
}

// App holds shared dependencies.
type App struct {
	Config             config.Config
	Router             *gin.Engine
	DB                 *sql.DB
	Store              object.ObjectStore
	Companies          CompanyStore
	Catalog            *compliance.Catalog
	Moderation         moderation.Recorder
	Publisher          moderation.Publisher
	Tokens             *auth.Tokens
	ComplianceService  *compliance.Service
	MarketplaceService *marketplace.Service
	ComplianceHandler  *compliance.Handler
	MarketplaceHandler *marketplace.Handler
	UploadsHandler     *uploads.Handler
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	return BuildContext(context.Background(), cfg)
}

// BuildContext is Build with a caller-supplied context for connection setup.
func BuildContext(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if cfg.LogLevel != "" {
		telemetry.SetLevel(cfg.LogLevel)
	}

	catalog, err := compliance.LoadCatalog(cfg.ComplianceCatalogFile)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.Env == "production")
	if err != nil {
		return nil, err
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        sqlDB,
		Store:     store,
		Catalog:   catalog,
		Publisher: publisher,
		Tokens:    tokens,
	}
	buildServices(app)

	if err := seedCompanies(ctx, app.Companies, cfg.DevSeedCompanies); err != nil {
		return nil, err
	}

	deps := server.RouterDeps{
		Config:             cfg,
		Tokens:             tokens,
		ComplianceHandler:  app.ComplianceHandler,
		MarketplaceHandler: app.MarketplaceHandler,
		UploadsHandler:     app.UploadsHandler,
		Health:             health.NewService(sqlDB),
	}
	if cfg.ObjectStoreType != "s3" {
		deps.LocalFiles = store
	}
	app.Router = server.NewRouter(deps)

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) || cfg.Env == "test" {
			telemetry.Info("bootstrap: DATABASE_URL empty; using in-memory repositories", nil)
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap: database connect failed; using in-memory repositories", map[string]any{"error": err})
			return nil, nil
		}
		return nil, err
	}

	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			KMSKeyID: cfg.SSEKMSKeyID,
			URLTTL:   cfg.DownloadURLTTL,
		})
	default:
		return localstore.New(cfg.LocalStoreDir, cfg.PublicBaseURL), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (moderation.Publisher, error) {
	publishers := moderation.Multi{moderation.LogPublisher{}}
	if strings.TrimSpace(cfg.ModerationQueueURL) != "" {
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.ModerationQueueURL)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, &moderation.QueuePublisher{Client: client})
	}
	return publishers, nil
}

func buildServices(app *App) {
	if app.DB != nil {
		app.Companies = &compliance.PGStore{DB: app.DB}
		app.Moderation = &moderation.PGStore{DB: app.DB}
	} else {
		app.Companies = compliance.NewMemoryStore()
		app.Moderation = moderation.NewMemoryStore()
	}

	var marketRepo marketplace.Repo
	if app.DB != nil {
		marketRepo = &marketplace.PGRepo{DB: app.DB}
	} else {
		marketRepo = marketplace.NewMemoryRepo()
	}

	complianceSvc := compliance.NewService(app.Companies, app.Catalog)
	complianceSvc.Recorder = app.Moderation
	complianceSvc.Publisher = app.Publisher
	if signer, ok := app.Store.(object.DownloadSigner); ok {
		complianceSvc.Files = signer
	}

	marketSvc := &marketplace.Service{
		Repo:      marketRepo,
		Gate:      complianceSvc,
		Companies: app.Companies,
		Recorder:  app.Moderation,
		Publisher: app.Publisher,
		HoldDays:  app.Config.ListingHoldDays,
	}

	var uploadSigner object.UploadSigner
	if signer, ok := app.Store.(object.UploadSigner); ok {
		uploadSigner = signer
	}

	app.ComplianceService = complianceSvc
	app.MarketplaceService = marketSvc
	app.ComplianceHandler = compliance.NewHandler(complianceSvc, app.Store)
	app.MarketplaceHandler = marketplace.NewHandler(marketSvc)
	app.UploadsHandler = uploads.NewHandler(uploadSigner)
}

func seedCompanies(ctx context.Context, store CompanyStore, ids []string) error {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := store.CreateCompany(ctx, compliance.Company{ID: id, Name: id}); err != nil {
			return fmt.Errorf("seed company %s: %w", id, err)
		}
	}
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
