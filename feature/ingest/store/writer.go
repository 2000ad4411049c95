package store

import (
	"context"
	"time"

	"vitals-manager/feature/ingest/record"
	"vitals-manager/feature/ingest/reconcile"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outcome is the terminal state of a batch commit.
type Outcome string

const (
	// OutcomePending marks a batch not yet handed to the writer.
	OutcomePending Outcome = "pending"
	// OutcomeCommitted means every chunk persisted and the checkpoint advanced.
	OutcomeCommitted Outcome = "committed"
	// OutcomeFailed means nothing of the batch persisted; safe to retry in full.
	OutcomeFailed Outcome = "failed"
	// OutcomePartiallyCommitted means some chunks persisted before an
	// interruption. The checkpoint reflects only committed chunks; a retry
	// recomputes the remainder and already-applied rows Skip on content hash.
	OutcomePartiallyCommitted Outcome = "partially_committed"
)

// Batch is the unit handed to the writer: one import run's reconciliation
// decisions plus the checkpoint value to persist on success.
type Batch struct {
	ID         string
	Source     record.Source
	Decisions  []reconcile.Decision
	Checkpoint string
	StartedAt  time.Time
}

// CommitResult reports what the writer did with a batch.
type CommitResult struct {
	Outcome         Outcome
	Applied         int
	ChunksCommitted int
}

// DefaultChunkSize bounds how many mutations share one transaction.
const DefaultChunkSize = 500

// Writer applies reconciliation decisions to the store. Inserts and updates
// are applied as upserts keyed on (record_type, natural_key), which makes
// re-applying an already-committed chunk a harmless no-op.
type Writer struct {
	db        *gorm.DB
	logger    *zap.Logger
	chunkSize int

	// afterChunk, when set, runs after each committed chunk. Tests use it to
	// interrupt a commit at a chunk boundary.
	afterChunk func(chunk int)
}

// NewWriter creates a writer with the given chunk size; zero or negative
// falls back to DefaultChunkSize.
func NewWriter(db *gorm.DB, logger *zap.Logger, chunkSize int) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{db: db, logger: logger, chunkSize: chunkSize}
}

// Commit applies all Insert/Update decisions of the batch in chunked
// transactions and advances the source checkpoint with the final chunk.
//
// Invariants:
//   - a chunk either fully persists or fully rolls back
//   - the checkpoint only moves once the last chunk is in
//   - cancellation between chunks stops the commit at the boundary; the
//     in-flight chunk always completes or rolls back first
func (w *Writer) Commit(ctx context.Context, batch *Batch) (CommitResult, error) {
	var mutations []reconcile.Decision
	for _, d := range batch.Decisions {
		if d.Mutates() {
			mutations = append(mutations, d)
		}
	}

	// All-skip batches still confirm the checkpoint: the work is done even
	// though no rows changed.
	if len(mutations) == 0 {
		if err := w.advanceCheckpoint(ctx, w.db, batch.Source, batch.Checkpoint); err != nil {
			return CommitResult{Outcome: OutcomeFailed}, classifyCommitError(err)
		}
		return CommitResult{Outcome: OutcomeCommitted}, nil
	}

	chunks := chunkDecisions(mutations, w.chunkSize)
	result := CommitResult{Outcome: OutcomePending}

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			// Interrupted at a chunk boundary.
			result.Outcome = interruptedOutcome(result.ChunksCommitted)
			return result, classifyCommitError(err)
		}

		last := i == len(chunks)-1
		err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := w.applyChunk(tx, chunk); err != nil {
				return err
			}
			if last {
				return w.advanceCheckpoint(ctx, tx, batch.Source, batch.Checkpoint)
			}
			return nil
		})
		if err != nil {
			result.Outcome = interruptedOutcome(result.ChunksCommitted)
			w.logger.Error("chunk commit failed",
				zap.String("batch_id", batch.ID),
				zap.Int("chunk", i),
				zap.Error(err),
			)
			return result, classifyCommitError(err)
		}

		result.ChunksCommitted++
		result.Applied += len(chunk)
		if w.afterChunk != nil {
			w.afterChunk(i)
		}
	}

	result.Outcome = OutcomeCommitted
	return result, nil
}

// applyChunk upserts one chunk of mutations inside an open transaction.
func (w *Writer) applyChunk(tx *gorm.DB, chunk []reconcile.Decision) error {
	rows := make([]Record, 0, len(chunk))
	for _, d := range chunk {
		row, err := toRow(d.Record)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "record_type"}, {Name: "natural_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"payload", "source", "source_version", "content_hash", "subject_time", "imported_at",
		}),
	}).Create(&rows).Error
}

// advanceCheckpoint persists the batch checkpoint. Feed checkpoints are
// ISO dates and must never regress; an older value is ignored rather than
// written. Archive fingerprints are unordered and simply replaced.
func (w *Writer) advanceCheckpoint(ctx context.Context, tx *gorm.DB, source record.Source, value string) error {
	if value == "" {
		return nil
	}
	if source == record.SourceSyncedFeed {
		var current Checkpoint
		err := tx.WithContext(ctx).First(&current, "source = ?", string(source)).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		if err == nil && value <= current.Value {
			return nil
		}
	}
	cp := Checkpoint{Source: string(source), Value: value, UpdatedAt: time.Now().UTC()}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&cp).Error
}

func chunkDecisions(decisions []reconcile.Decision, size int) [][]reconcile.Decision {
	var chunks [][]reconcile.Decision
	for start := 0; start < len(decisions); start += size {
		end := start + size
		if end > len(decisions) {
			end = len(decisions)
		}
		chunks = append(chunks, decisions[start:end])
	}
	return chunks
}

func interruptedOutcome(chunksCommitted int) Outcome {
	if chunksCommitted > 0 {
		return OutcomePartiallyCommitted
	}
	return OutcomeFailed
}
