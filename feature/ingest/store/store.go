package store

import (
	"context"
	"fmt"
	"time"

	"vitals-manager/feature/ingest/record"
	"vitals-manager/feature/ingest/reconcile"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store provides the read path over persisted records and checkpoints.
// All writes go through the Writer.
type Store struct {
	db *gorm.DB
}

// New wraps a connected database in a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the engine's tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Record{}, &Checkpoint{}, &ImportRun{}); err != nil {
		return fmt.Errorf("failed to migrate ingest schema: %w", err)
	}
	return nil
}

// lookupChunkSize bounds the IN clause of batched key lookups.
const lookupChunkSize = 200

// GetByKeys loads the stored versions of the given natural keys, returning
// the reconciler's view of each. Keys without a stored row are absent from
// the result.
func (s *Store) GetByKeys(ctx context.Context, keys []record.Key) (map[record.Key]reconcile.Stored, error) {
	byType := make(map[record.Type][]string)
	for _, key := range keys {
		byType[key.Type] = append(byType[key.Type], key.NaturalKey)
	}

	out := make(map[record.Key]reconcile.Stored, len(keys))
	for recordType, naturalKeys := range byType {
		for start := 0; start < len(naturalKeys); start += lookupChunkSize {
			end := start + lookupChunkSize
			if end > len(naturalKeys) {
				end = len(naturalKeys)
			}

			var rows []Record
			err := s.db.WithContext(ctx).
				Where("record_type = ? AND natural_key IN ?", string(recordType), naturalKeys[start:end]).
				Find(&rows).Error
			if err != nil {
				return nil, fmt.Errorf("failed to load records for %s: %w", recordType, err)
			}
			for _, row := range rows {
				key := record.Key{Type: record.Type(row.RecordType), NaturalKey: row.NaturalKey}
				out[key] = reconcile.Stored{
					ContentHash: row.ContentHash,
					Payload:     []byte(row.Payload),
					SubjectTime: row.SubjectTime,
				}
			}
		}
	}
	return out, nil
}

// GetCheckpoint returns the persisted checkpoint value for a source, or the
// empty string when none has been committed yet.
func (s *Store) GetCheckpoint(ctx context.Context, source record.Source) (string, error) {
	var cp Checkpoint
	err := s.db.WithContext(ctx).First(&cp, "source = ?", string(source)).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to load checkpoint for %s: %w", source, err)
	}
	return cp.Value, nil
}

// RecordRun inserts or updates the provenance row for a run.
func (s *Store) RecordRun(ctx context.Context, run ImportRun) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&run).Error
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun loads one persisted run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (ImportRun, error) {
	var run ImportRun
	err := s.db.WithContext(ctx).First(&run, "run_id = ?", runID).Error
	if err != nil {
		return ImportRun{}, err
	}
	return run, nil
}

// RecentRuns returns the most recent import runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	var runs []ImportRun
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent runs: %w", err)
	}
	return runs, nil
}

// Checkpoints returns all persisted checkpoints.
func (s *Store) Checkpoints(ctx context.Context) ([]Checkpoint, error) {
	var cps []Checkpoint
	if err := s.db.WithContext(ctx).Order("source").Find(&cps).Error; err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	return cps, nil
}

// CountRecords returns the number of stored records per record type.
func (s *Store) CountRecords(ctx context.Context) (map[string]int64, error) {
	type row struct {
		RecordType string
		N          int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&Record{}).
		Select("record_type, COUNT(*) AS n").
		Group("record_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.RecordType] = r.N
	}
	return out, nil
}

// toRow converts a canonical record into its persisted form.
func toRow(rec record.Canonical) (Record, error) {
	payload, err := record.PayloadJSON(rec.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode payload for %s/%s: %w", rec.Type, rec.NaturalKey, err)
	}
	subject := rec.Payload.SubjectTime().UTC()
	return Record{
		RecordType:    string(rec.Type),
		NaturalKey:    rec.NaturalKey,
		Payload:       string(payload),
		Source:        string(rec.Source),
		SourceVersion: rec.SourceVersion,
		ContentHash:   rec.ContentHash,
		SubjectTime:   subject,
		ImportedAt:    rec.ImportedAt.UTC().Truncate(time.Microsecond),
	}, nil
}
