package cmd

import (
	"fmt"

	"vitals-manager/core/config"
	"vitals-manager/core/database"
	"vitals-manager/core/logger"
	"vitals-manager/core/storage"
	"vitals-manager/feature/ingest"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// environment bundles what every command needs after startup.
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	service *ingest.Service
}

// setup loads configuration and connects the logger, database and storage,
// then builds the import service over them. Metrics are only registered by
// the start command; CLI runs pass nil.
func setup(metrics *ingest.Metrics) (*environment, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	svc := ingest.NewService(db, client, cfg.Storage.Bucket, cfg.Vendor, cfg.Import, l, metrics)
	if err := svc.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &environment{cfg: cfg, logger: l, db: db, service: svc}, nil
}
