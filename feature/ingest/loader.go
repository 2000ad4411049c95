package ingest

import (
	"vitals-manager/core/storage"
	"vitals-manager/feature/ingest/source"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the ingest feature.
func NewFeature(db *gorm.DB, client storage.Client, bucket string, vendor source.Config, cfg Config, logger *zap.Logger, metrics *Metrics) *Feature {
	svc := NewService(db, client, bucket, vendor, cfg, logger, metrics)
	h := NewHandler(svc)
	return &Feature{service: svc, handler: h}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "ingest"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}

// Service exposes the underlying service for the CLI commands.
func (f *Feature) Service() *Service {
	return f.service
}
