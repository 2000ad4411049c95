package ingest

import (
	"errors"

	"vitals-manager/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler handles HTTP requests for the import engine.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the import routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/import")
	group.Post("/sync", h.HandleStartSync)
	group.Post("/archive", h.HandleStartArchive)
	group.Get("/runs", h.HandleListRuns)
	group.Get("/runs/:id", h.HandleGetRun)
	group.Get("/checkpoints", h.HandleCheckpoints)
	group.Get("/stats", h.HandleStats)
	group.Get("/exports", h.HandleListExports)
}

// HandleStartSync launches a feed import.
func (h *Handler) HandleStartSync(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	id, err := h.service.StartSync()
	if err != nil {
		return failStart(c, l, err)
	}
	l.Info("sync import started", zap.String("run_id", id))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": id})
}

// archiveRequest is the body of POST /import/archive: either a path on the
// server's disk or an object name in the configured export bucket.
type archiveRequest struct {
	Path   string `json:"path"`
	Object string `json:"object"`
}

// HandleStartArchive launches an archive import.
func (h *Handler) HandleStartArchive(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req archiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	var id string
	var err error
	switch {
	case req.Path != "":
		id, err = h.service.StartArchive(req.Path)
	case req.Object != "":
		id, err = h.service.StartArchiveObject(c.Context(), req.Object)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path or object required"})
	}
	if err != nil {
		return failStart(c, l, err)
	}
	l.Info("archive import started", zap.String("run_id", id))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": id})
}

// HandleGetRun returns the status of one run.
func (h *Handler) HandleGetRun(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	run, err := h.service.Status(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run not found"})
		}
		l.Error("run lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(run)
}

// HandleListRuns returns the most recent runs.
func (h *Handler) HandleListRuns(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	runs, err := h.service.Runs(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		l.Error("run listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(runs)
}

// HandleCheckpoints returns the per-source checkpoints.
func (h *Handler) HandleCheckpoints(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	cps, err := h.service.Checkpoints(c.Context())
	if err != nil {
		l.Error("checkpoint listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(cps)
}

// HandleStats returns stored record counts per type.
func (h *Handler) HandleStats(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	counts, err := h.service.RecordCounts(c.Context())
	if err != nil {
		l.Error("stats failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(counts)
}

// HandleListExports returns the export archives waiting in the bucket.
func (h *Handler) HandleListExports(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	names, err := h.service.ListExports(c.Context())
	if err != nil {
		l.Error("export listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"exports": names})
}

func failStart(c *fiber.Ctx, l *zap.Logger, err error) error {
	var active *ErrRunActive
	if errors.As(err, &active) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	l.Error("import start failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
