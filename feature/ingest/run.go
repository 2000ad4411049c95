package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vitals-manager/feature/ingest/reconcile"
	"vitals-manager/feature/ingest/record"
	"vitals-manager/feature/ingest/source"
	"vitals-manager/feature/ingest/staging"
	"vitals-manager/feature/ingest/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the orchestrator's position in the pipeline.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StateReconciling State = "reconciling"
	StateCommitting  State = "committing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Counts aggregates what happened to the items of one run.
type Counts struct {
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Conflicts  int `json:"conflicts"`
	Errors     int `json:"errors"`
	Duplicates int `json:"duplicates"`
}

// Run is the tracked state of one import run.
type Run struct {
	ID         string        `json:"id"`
	Source     record.Source `json:"source"`
	State      State         `json:"state"`
	Outcome    store.Outcome `json:"outcome"`
	Counts     Counts        `json:"counts"`
	Checkpoint string        `json:"checkpoint,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ErrRunActive is returned when a run is requested for a source that already
// has one in flight.
type ErrRunActive struct {
	Source record.Source
}

func (e *ErrRunActive) Error() string {
	return fmt.Sprintf("an import from %s is already running", e.Source)
}

// Runner drives import runs: one source at a time per source, fetch pipelined
// with normalization, reconcile and commit strictly sequential so checkpoints
// only ever reflect fully reconciled batches.
type Runner struct {
	store   *store.Store
	writer  *store.Writer
	logger  *zap.Logger
	metrics *Metrics
	cfg     Config

	mu     sync.Mutex
	runs   map[string]*Run
	order  []string
	active map[record.Source]bool
}

// NewRunner creates a runner over the given store and writer.
func NewRunner(st *store.Store, writer *store.Writer, cfg Config, logger *zap.Logger, metrics *Metrics) *Runner {
	return &Runner{
		store:   st,
		writer:  writer,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		runs:    make(map[string]*Run),
		active:  make(map[record.Source]bool),
	}
}

// Execute performs one full import run from the given source and blocks until
// it finishes. The returned Run is a snapshot of the terminal state; err is
// non-nil when the run did not commit cleanly.
func (r *Runner) Execute(ctx context.Context, src source.Source) (Run, error) {
	run, err := r.begin(src.Name())
	if err != nil {
		return Run{}, err
	}
	defer r.release(src.Name())

	runErr := r.execute(ctx, src, run)
	r.finish(run, runErr)
	r.metrics.observeRun(src.Name(), run)
	r.recordRun(run)
	return r.snapshot(run.ID), runErr
}

// Start launches a run in the background and returns its id immediately.
// The run keeps going after the caller's request ends. onFinish, when
// non-nil, runs after the terminal state is recorded; the service uses it to
// clean up downloaded archives.
func (r *Runner) Start(src source.Source, onFinish func()) (string, error) {
	run, err := r.begin(src.Name())
	if err != nil {
		return "", err
	}

	go func() {
		defer r.release(src.Name())
		runErr := r.execute(context.Background(), src, run)
		r.finish(run, runErr)
		r.metrics.observeRun(src.Name(), run)
		r.recordRun(run)
		if onFinish != nil {
			onFinish()
		}
	}()
	return run.ID, nil
}

// Get returns a snapshot of a tracked run.
func (r *Runner) Get(id string) (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns snapshots of all tracked runs, newest first.
func (r *Runner) List() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.runs[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// begin registers a new run, enforcing the one-run-per-source lock.
func (r *Runner) begin(src record.Source) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[src] {
		return nil, &ErrRunActive{Source: src}
	}
	r.active[src] = true

	run := &Run{
		ID:        uuid.NewString(),
		Source:    src,
		State:     StateIdle,
		Outcome:   store.OutcomePending,
		StartedAt: time.Now().UTC(),
	}
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	return run, nil
}

func (r *Runner) release(src record.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, src)
}

func (r *Runner) setState(run *Run, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.State = state
}

func (r *Runner) snapshot(id string) Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.runs[id]
}

func (r *Runner) finish(run *Run, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	run.FinishedAt = &now
	if runErr != nil {
		run.State = StateFailed
		run.Error = runErr.Error()
		if run.Outcome == store.OutcomePending {
			run.Outcome = store.OutcomeFailed
		}
		return
	}
	run.State = StateDone
	run.Outcome = store.OutcomeCommitted
}

// recordRun persists the provenance row; failures are logged, not fatal, as
// the run itself already reached its terminal state.
func (r *Runner) recordRun(run *Run) {
	snap := r.snapshot(run.ID)
	row := store.ImportRun{
		RunID:      snap.ID,
		Source:     string(snap.Source),
		State:      string(snap.State),
		Outcome:    string(snap.Outcome),
		Inserted:   snap.Counts.Inserted,
		Updated:    snap.Counts.Updated,
		Skipped:    snap.Counts.Skipped,
		Conflicts:  snap.Counts.Conflicts,
		Errors:     snap.Counts.Errors,
		Duplicates: snap.Counts.Duplicates,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		Error:      snap.Error,
	}
	if err := r.store.RecordRun(context.Background(), row); err != nil {
		r.logger.Error("failed to persist run provenance",
			zap.String("run_id", snap.ID), zap.Error(err))
	}
}

// execute walks the pipeline: begin against the checkpoint, fetch and
// normalize pages concurrently, reconcile the staged batch against the store,
// commit in chunks and advance the checkpoint with the final one.
func (r *Runner) execute(ctx context.Context, src source.Source, run *Run) error {
	l := r.logger.With(
		zap.String("run_id", run.ID),
		zap.String("source", string(src.Name())),
	)

	checkpoint, err := r.store.GetCheckpoint(ctx, src.Name())
	if err != nil {
		return err
	}

	r.setState(run, StateFetching)
	cursor, nextCheckpoint, skip, err := r.beginSource(ctx, src, checkpoint)
	if err != nil {
		return err
	}
	r.mu.Lock()
	run.Checkpoint = nextCheckpoint
	r.mu.Unlock()

	if skip {
		l.Info("nothing to import", zap.String("checkpoint", checkpoint))
		return nil
	}

	buffer := staging.NewBuffer()
	if err := r.fetchAndNormalize(ctx, src, run, cursor, buffer); err != nil {
		return err
	}

	r.mu.Lock()
	run.Counts.Duplicates = buffer.Duplicates()
	r.mu.Unlock()

	r.setState(run, StateReconciling)
	staged := buffer.Records()
	existing, err := r.store.GetByKeys(ctx, buffer.Keys())
	if err != nil {
		return err
	}
	decisions := reconcile.DecideAll(staged, existing)

	r.mu.Lock()
	for _, d := range decisions {
		switch d.Kind {
		case reconcile.KindInsert:
			run.Counts.Inserted++
		case reconcile.KindUpdate:
			run.Counts.Updated++
		case reconcile.KindSkip:
			run.Counts.Skipped++
		case reconcile.KindConflict:
			run.Counts.Conflicts++
		}
	}
	r.mu.Unlock()

	r.setState(run, StateCommitting)
	result, err := r.writer.Commit(ctx, &store.Batch{
		ID:         run.ID,
		Source:     src.Name(),
		Decisions:  decisions,
		Checkpoint: nextCheckpoint,
		StartedAt:  run.StartedAt,
	})
	r.mu.Lock()
	run.Outcome = result.Outcome
	r.mu.Unlock()
	if err != nil {
		return err
	}

	l.Info("import run committed",
		zap.Int("staged", len(staged)),
		zap.Int("applied", result.Applied),
		zap.Int("chunks", result.ChunksCommitted),
		zap.String("checkpoint", nextCheckpoint),
	)
	return nil
}

// fetchAndNormalize pipelines page fetches with normalization over a bounded
// channel. A page fetch failing permanently (or exhausting its retries) fails
// the run; a single malformed item only increments the error count.
func (r *Runner) fetchAndNormalize(ctx context.Context, src source.Source, run *Run, cursor string, buffer *staging.Buffer) error {
	g, gctx := errgroup.WithContext(ctx)
	pages := make(chan source.Page, r.cfg.queueDepth())

	g.Go(func() error {
		defer close(pages)
		for {
			page, err := r.fetchPage(gctx, src, cursor)
			if err != nil {
				return err
			}
			select {
			case pages <- page:
			case <-gctx.Done():
				return gctx.Err()
			}
			if page.Done {
				return nil
			}
			cursor = page.Cursor
		}
	})

	g.Go(func() error {
		for page := range pages {
			r.setState(run, StateNormalizing)
			for _, raw := range page.Items {
				rec, err := record.Normalize(raw, src.Name())
				if err != nil {
					r.mu.Lock()
					run.Counts.Errors++
					r.mu.Unlock()
					r.logger.Debug("dropped raw item",
						zap.String("run_id", run.ID),
						zap.String("dataset", raw.Dataset),
						zap.Error(err),
					)
					continue
				}
				buffer.Add(rec)
			}
			r.setState(run, StateFetching)
		}
		return nil
	})

	return g.Wait()
}

// beginSource opens the run against the source, retrying transient failures.
func (r *Runner) beginSource(ctx context.Context, src source.Source, checkpoint string) (cursor, next string, skip bool, err error) {
	err = backoff.Retry(func() error {
		var berr error
		cursor, next, skip, berr = src.Begin(ctx, checkpoint)
		return retryable(berr)
	}, r.retryPolicy(ctx))
	return cursor, next, skip, err
}

func (r *Runner) fetchPage(ctx context.Context, src source.Source, cursor string) (source.Page, error) {
	var page source.Page
	err := backoff.Retry(func() error {
		p, ferr := src.FetchPage(ctx, cursor)
		if ferr != nil {
			return retryable(ferr)
		}
		page = p
		return nil
	}, r.retryPolicy(ctx))
	return page, err
}

func (r *Runner) retryPolicy(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	return backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(r.cfg.fetchAttempts()-1)), ctx)
}

// retryable maps the source error taxonomy onto backoff's: only Transient
// failures are retried.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	if source.IsTransient(err) {
		return err
	}
	return backoff.Permanent(err)
}
