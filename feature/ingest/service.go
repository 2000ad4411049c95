package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"vitals-manager/core/storage"
	"vitals-manager/feature/ingest/record"
	"vitals-manager/feature/ingest/source"
	"vitals-manager/feature/ingest/store"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service wires the import engine: it owns the store, the writer and the
// runner, and knows how to build the two sources.
type Service struct {
	runner *Runner
	store  *store.Store
	client storage.Client
	bucket string
	vendor source.Config
	logger *zap.Logger
}

// NewService creates the import service over a connected database.
func NewService(db *gorm.DB, client storage.Client, bucket string, vendor source.Config, cfg Config, logger *zap.Logger, metrics *Metrics) *Service {
	st := store.New(db)
	writer := store.NewWriter(db, logger, cfg.ChunkSize)
	return &Service{
		runner: NewRunner(st, writer, cfg, logger, metrics),
		store:  st,
		client: client,
		bucket: bucket,
		vendor: vendor,
		logger: logger,
	}
}

// Migrate creates or updates the engine's tables.
func (s *Service) Migrate() error {
	return s.store.Migrate()
}

// Sync runs a feed import and blocks until it finishes.
func (s *Service) Sync(ctx context.Context) (Run, error) {
	return s.runner.Execute(ctx, source.NewFeed(s.vendor, s.logger))
}

// StartSync launches a feed import in the background.
func (s *Service) StartSync() (string, error) {
	return s.runner.Start(source.NewFeed(s.vendor, s.logger), nil)
}

// ImportArchive runs an import from an export zip on local disk and blocks
// until it finishes.
func (s *Service) ImportArchive(ctx context.Context, path string) (Run, error) {
	return s.runner.Execute(ctx, source.NewArchive(path, s.logger))
}

// StartArchive launches an import from an export zip on local disk.
func (s *Service) StartArchive(path string) (string, error) {
	return s.runner.Start(source.NewArchive(path, s.logger), nil)
}

// StartArchiveObject downloads an export zip from the storage bucket to a
// temporary file and launches an import over it. The file is removed when
// the run finishes.
func (s *Service) StartArchiveObject(ctx context.Context, object string) (string, error) {
	path, err := s.downloadObject(ctx, object)
	if err != nil {
		return "", err
	}
	id, err := s.runner.Start(source.NewArchive(path, s.logger), func() {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove downloaded archive", zap.String("path", path), zap.Error(rmErr))
		}
	})
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return id, nil
}

// ImportArchiveObject is the blocking variant of StartArchiveObject.
func (s *Service) ImportArchiveObject(ctx context.Context, object string) (Run, error) {
	path, err := s.downloadObject(ctx, object)
	if err != nil {
		return Run{}, err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove downloaded archive", zap.String("path", path), zap.Error(rmErr))
		}
	}()
	return s.runner.Execute(ctx, source.NewArchive(path, s.logger))
}

func (s *Service) downloadObject(ctx context.Context, object string) (string, error) {
	reader, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s from bucket %s: %w", object, s.bucket, err)
	}
	defer reader.Close()

	tmp, err := os.CreateTemp("", "vitals-export-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download %s: %w", object, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	s.logger.Info("downloaded export archive",
		zap.String("object", object), zap.String("path", tmp.Name()))
	return tmp.Name(), nil
}

// ListExports lists export archives waiting in the storage bucket.
func (s *Service) ListExports(ctx context.Context) ([]string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s not found", s.bucket)
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", s.bucket, obj.Err)
		}
		if strings.HasSuffix(strings.ToLower(obj.Key), ".zip") {
			names = append(names, obj.Key)
		}
	}
	return names, nil
}

// Status returns the state of a run: live registry first, persisted
// provenance as fallback for runs from before a restart.
func (s *Service) Status(ctx context.Context, id string) (Run, error) {
	if run, ok := s.runner.Get(id); ok {
		return run, nil
	}
	row, err := s.store.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return runFromRow(row), nil
}

// Runs returns the most recent persisted runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.store.RecentRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(rows))
	for _, row := range rows {
		out = append(out, runFromRow(row))
	}
	return out, nil
}

// Checkpoints returns the persisted per-source checkpoints.
func (s *Service) Checkpoints(ctx context.Context) ([]store.Checkpoint, error) {
	return s.store.Checkpoints(ctx)
}

// RecordCounts returns the number of stored records per record type.
func (s *Service) RecordCounts(ctx context.Context) (map[string]int64, error) {
	return s.store.CountRecords(ctx)
}

func runFromRow(row store.ImportRun) Run {
	return Run{
		ID:      row.RunID,
		Source:  record.Source(row.Source),
		State:   State(row.State),
		Outcome: store.Outcome(row.Outcome),
		Counts: Counts{
			Inserted:   row.Inserted,
			Updated:    row.Updated,
			Skipped:    row.Skipped,
			Conflicts:  row.Conflicts,
			Errors:     row.Errors,
			Duplicates: row.Duplicates,
		},
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
		Error:      row.Error,
	}
}
