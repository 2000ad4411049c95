package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"vitals-manager/core/config"
	"vitals-manager/core/database"
	"vitals-manager/core/loader"
	"vitals-manager/core/logger"
	"vitals-manager/core/middleware/auth"
	"vitals-manager/core/middleware/rayid"
	"vitals-manager/core/storage"

	"vitals-manager/feature/ingest"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the vitals manager server",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Connect to the record store and migrate the ingest schema
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logg.Fatal("Failed to connect to database", zap.Error(err))
		}
		logg = logg.With(zap.String("driver", cfg.Database.Driver))

		// 4. Initialize Storage (export drop bucket)
		store, err := storage.NewClient(cfg.Storage)
		if err != nil {
			logg.Fatal("Failed to create storage client", zap.Error(err))
		}

		// 5. Metrics registry
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		metrics := ingest.NewMetrics(registry)

		// 6. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// 7. Initialize Feature Loader
		mgr := loader.NewManager()

		feature := ingest.NewFeature(db, store, cfg.Storage.Bucket, cfg.Vendor, cfg.Import, logg, metrics)
		if err := feature.Service().Migrate(); err != nil {
			logg.Fatal("Failed to migrate schema", zap.Error(err))
		}
		mgr.Register(feature)

		// Middleware Registration
		// RayID first so everything downstream can trace.
		app.Use(rayid.New())

		// Request logging through Zap + RayID.
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// Metrics endpoint stays public; auth protects the import API.
		if cfg.Server.Metrics {
			app.Get("/metrics", adaptor.HTTPHandler(
				promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		}

		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 8. Load Features
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 9. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 10. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
