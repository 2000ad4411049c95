package staging

import (
	"testing"

	"vitals-manager/feature/ingest/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalize(t *testing.T, dataset string, values map[string]any) record.Canonical {
	t.Helper()
	rec, err := record.Normalize(record.Raw{Dataset: dataset, Values: values}, record.SourceArchiveImport)
	require.NoError(t, err)
	return rec
}

func TestBuffer_GroupsByKey(t *testing.T) {
	b := NewBuffer()
	b.Add(normalize(t, record.DatasetDailySleep, map[string]any{"day": "2024-03-01", "score": 80}))
	b.Add(normalize(t, record.DatasetDailySleep, map[string]any{"day": "2024-03-02", "score": 75}))
	b.Add(normalize(t, record.DatasetDailyActivity, map[string]any{"day": "2024-03-01", "steps": 9000}))

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 0, b.Duplicates())

	recs := b.Records()
	require.Len(t, recs, 3)
	// Deterministic order: type, then key.
	assert.Equal(t, record.TypeActivity, recs[0].Type)
	assert.Equal(t, "2024-03-01", recs[1].NaturalKey)
	assert.Equal(t, "2024-03-02", recs[2].NaturalKey)
}

func TestBuffer_IdenticalDuplicateCollapses(t *testing.T) {
	values := map[string]any{"day": "2024-03-01", "score": 80}

	b := NewBuffer()
	b.Add(normalize(t, record.DatasetDailySleep, values))
	b.Add(normalize(t, record.DatasetDailySleep, values))

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, b.Duplicates())
}

func TestBuffer_MoreCompleteWins(t *testing.T) {
	thin := normalize(t, record.DatasetDailySleep, map[string]any{
		"day": "2024-03-01", "score": 80,
	})
	rich := normalize(t, record.DatasetDailySleep, map[string]any{
		"day": "2024-03-01", "score": 80, "efficiency": 92, "latency": 600,
	})

	// Order of arrival must not matter.
	b1 := NewBuffer()
	b1.AddAll([]record.Canonical{thin, rich})
	b2 := NewBuffer()
	b2.AddAll([]record.Canonical{rich, thin})

	require.Equal(t, 1, b1.Len())
	require.Equal(t, 1, b2.Len())
	assert.Equal(t, rich.ContentHash, b1.Records()[0].ContentHash)
	assert.Equal(t, rich.ContentHash, b2.Records()[0].ContentHash)
}

func TestBuffer_LaterSubjectTimeBreaksTies(t *testing.T) {
	early := normalize(t, record.DatasetDailySleep, map[string]any{
		"day": "2024-03-01", "score": 78, "bedtime_end": "2024-03-01T06:30:00Z",
	})
	late := normalize(t, record.DatasetDailySleep, map[string]any{
		"day": "2024-03-01", "score": 81, "bedtime_end": "2024-03-01T07:45:00Z",
	})
	require.Equal(t, record.Completeness(early.Payload), record.Completeness(late.Payload))

	b := NewBuffer()
	b.AddAll([]record.Canonical{late, early})

	require.Equal(t, 1, b.Len())
	assert.Equal(t, late.ContentHash, b.Records()[0].ContentHash)
}
