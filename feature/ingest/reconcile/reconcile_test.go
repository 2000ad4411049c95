package reconcile

import (
	"testing"

	"vitals-manager/feature/ingest/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalize(t *testing.T, values map[string]any) record.Canonical {
	t.Helper()
	rec, err := record.Normalize(record.Raw{Dataset: record.DatasetDailySleep, Values: values}, record.SourceSyncedFeed)
	require.NoError(t, err)
	return rec
}

func stored(t *testing.T, rec record.Canonical) *Stored {
	t.Helper()
	payload, err := record.PayloadJSON(rec.Payload)
	require.NoError(t, err)
	return &Stored{
		ContentHash: rec.ContentHash,
		Payload:     payload,
		SubjectTime: rec.Payload.SubjectTime(),
	}
}

func TestDecide_InsertWhenAbsent(t *testing.T) {
	rec := normalize(t, map[string]any{"day": "2024-03-01", "score": 80})
	d := Decide(rec, nil)
	assert.Equal(t, KindInsert, d.Kind)
	assert.True(t, d.Mutates())
}

func TestDecide_SkipOnIdenticalHash(t *testing.T) {
	rec := normalize(t, map[string]any{"day": "2024-03-01", "score": 80})
	d := Decide(rec, stored(t, rec))
	assert.Equal(t, KindSkip, d.Kind)
	assert.False(t, d.Mutates())
}

func TestDecide_RicherPayloadUpdates(t *testing.T) {
	thin := normalize(t, map[string]any{"day": "2024-03-01", "score": 80})
	rich := normalize(t, map[string]any{
		"day": "2024-03-01", "score": 80, "efficiency": 92,
		"total_sleep_duration": 25200, "deep_sleep_duration": 5400,
	})

	d := Decide(rich, stored(t, thin))
	assert.Equal(t, KindUpdate, d.Kind)
}

func TestDecide_ThinnerPayloadConflicts(t *testing.T) {
	// The no-data-loss property: a 3-field feed record must not overwrite a
	// 5-field archive record of the same night. The store keeps the rich
	// version and the collision is reported.
	rich := normalize(t, map[string]any{
		"day": "2024-03-01", "score": 80, "efficiency": 92,
		"total_sleep_duration": 25200, "deep_sleep_duration": 5400,
	})
	thin := normalize(t, map[string]any{
		"day": "2024-03-01", "score": 80, "efficiency": 92,
	})

	d := Decide(thin, stored(t, rich))
	assert.Equal(t, KindConflict, d.Kind)
	assert.False(t, d.Mutates())
}

func TestDecide_EqualCompletenessTiebreak(t *testing.T) {
	earlier := normalize(t, map[string]any{
		"day": "2024-03-01", "score": 78, "bedtime_end": "2024-03-01T06:30:00Z",
	})
	later := normalize(t, map[string]any{
		"day": "2024-03-01", "score": 81, "bedtime_end": "2024-03-01T07:45:00Z",
	})
	require.Equal(t, record.Completeness(earlier.Payload), record.Completeness(later.Payload))

	// Later subject timestamp wins the tie.
	assert.Equal(t, KindUpdate, Decide(later, stored(t, earlier)).Kind)
	// The earlier one loses and is reported, not applied.
	assert.Equal(t, KindConflict, Decide(earlier, stored(t, later)).Kind)
}

func TestDecideAll(t *testing.T) {
	existing := normalize(t, map[string]any{"day": "2024-03-01", "score": 80})
	unchanged := normalize(t, map[string]any{"day": "2024-03-01", "score": 80})
	fresh := normalize(t, map[string]any{"day": "2024-03-02", "score": 75})

	lookup := map[record.Key]Stored{existing.Key(): *stored(t, existing)}
	decisions := DecideAll([]record.Canonical{unchanged, fresh}, lookup)

	require.Len(t, decisions, 2)
	assert.Equal(t, KindSkip, decisions[0].Kind)
	assert.Equal(t, KindInsert, decisions[1].Kind)
}
