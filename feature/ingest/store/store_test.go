package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"vitals-manager/feature/ingest/record"
	"vitals-manager/feature/ingest/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openTestDB opens a named in-memory SQLite database shared across the
// connection pool, migrated and scoped to the test.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, New(db).Migrate())
	return db
}

func normalize(t *testing.T, dataset string, values map[string]any) record.Canonical {
	t.Helper()
	rec, err := record.Normalize(record.Raw{Dataset: dataset, Values: values}, record.SourceSyncedFeed)
	require.NoError(t, err)
	return rec
}

func TestStore_GetByKeys(t *testing.T) {
	db := openTestDB(t)
	s := New(db)

	rec := normalize(t, record.DatasetDailySleep, map[string]any{"day": "2024-03-01", "score": 80})
	row, err := toRow(rec)
	require.NoError(t, err)
	require.NoError(t, db.Create(&row).Error)

	ctx := context.Background()
	found, err := s.GetByKeys(ctx, []record.Key{
		rec.Key(),
		{Type: record.TypeSleep, NaturalKey: "2024-03-02"},
		{Type: record.TypeActivity, NaturalKey: "2024-03-01"},
	})
	require.NoError(t, err)

	require.Len(t, found, 1)
	stored, ok := found[rec.Key()]
	require.True(t, ok)
	assert.Equal(t, rec.ContentHash, stored.ContentHash)
	assert.JSONEq(t, string(mustPayload(t, rec)), string(stored.Payload))
}

func TestStore_GetCheckpointAbsent(t *testing.T) {
	s := New(openTestDB(t))

	value, err := s.GetCheckpoint(context.Background(), record.SourceSyncedFeed)
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestStore_RecordAndListRuns(t *testing.T) {
	db := openTestDB(t)
	s := New(db)
	ctx := context.Background()

	run := ImportRun{RunID: "run-1", Source: string(record.SourceSyncedFeed), State: "done", Outcome: string(OutcomeCommitted)}
	require.NoError(t, s.RecordRun(ctx, run))

	// Saving again updates in place.
	run.Inserted = 5
	require.NoError(t, s.RecordRun(ctx, run))

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Inserted)
}

func TestStore_CountRecords(t *testing.T) {
	db := openTestDB(t)
	s := New(db)

	for _, day := range []string{"2024-03-01", "2024-03-02"} {
		row, err := toRow(normalize(t, record.DatasetDailySleep, map[string]any{"day": day, "score": 80}))
		require.NoError(t, err)
		require.NoError(t, db.Create(&row).Error)
	}

	counts, err := s.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[string(record.TypeSleep)])
}

func mustPayload(t *testing.T, rec record.Canonical) []byte {
	t.Helper()
	data, err := record.PayloadJSON(rec.Payload)
	require.NoError(t, err)
	return data
}

// decide runs the full read-reconcile cycle for a set of staged records.
func decide(t *testing.T, s *Store, staged []record.Canonical) []reconcile.Decision {
	t.Helper()
	keys := make([]record.Key, 0, len(staged))
	for _, rec := range staged {
		keys = append(keys, rec.Key())
	}
	existing, err := s.GetByKeys(context.Background(), keys)
	require.NoError(t, err)
	return reconcile.DecideAll(staged, existing)
}
