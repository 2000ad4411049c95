package source

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vitals-manager/feature/ingest/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeArchive builds an export zip in a temp dir from file name to CSV body.
func writeArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

// drain walks the paging contract from Begin to Done and collects every item.
func drain(t *testing.T, a *Archive, checkpoint string) ([]record.Raw, string, bool) {
	t.Helper()
	ctx := context.Background()
	cursor, next, skip, err := a.Begin(ctx, checkpoint)
	require.NoError(t, err)
	if skip {
		return nil, next, true
	}

	var items []record.Raw
	for {
		page, err := a.FetchPage(ctx, cursor)
		require.NoError(t, err)
		items = append(items, page.Items...)
		if page.Done {
			return items, next, false
		}
		cursor = page.Cursor
	}
}

func TestArchive_ReadsNestedCSVs(t *testing.T) {
	path := writeArchive(t, map[string]string{
		"oura_2024-03-10/dailysleep.csv": "day;score;total_sleep_duration\n2024-03-01;82;25200\n2024-03-02;75;23400\n",
		"oura_2024-03-10/heartrate.csv":  "bpm;source;timestamp\n61;ppg;2024-03-01T04:15:10+00:00\n",
	})
	a := NewArchive(path, zap.NewNop())

	items, _, skip := drain(t, a, "")
	require.False(t, skip)
	require.Len(t, items, 3)

	assert.Equal(t, record.DatasetDailySleep, items[0].Dataset)
	assert.Equal(t, "82", items[0].Values["score"])
	assert.Equal(t, archiveSourceVersion, items[0].SourceVersion)
	assert.Equal(t, record.DatasetHeartRate, items[2].Dataset)
	assert.Equal(t, "61", items[2].Values["bpm"])
}

func TestArchive_MergesCompanionFilesByDay(t *testing.T) {
	path := writeArchive(t, map[string]string{
		"dailysleep.csv": "day;score\n2024-03-01;82\n2024-03-02;75\n",
		// SpO2 overlaps one night and adds one of its own.
		"dailyspo2.csv": "day;average_spo2\n2024-03-02;97.5\n2024-03-03;96.0\n",
	})
	a := NewArchive(path, zap.NewNop())

	items, _, skip := drain(t, a, "")
	require.False(t, skip)
	require.Len(t, items, 3)

	byDay := make(map[string]map[string]any)
	for _, item := range items {
		require.Equal(t, record.DatasetDailySleep, item.Dataset)
		byDay[item.Values["day"].(string)] = item.Values
	}

	assert.NotContains(t, byDay["2024-03-01"], "average_spo2")
	assert.Equal(t, "97.5", byDay["2024-03-02"]["average_spo2"])
	assert.Equal(t, "75", byDay["2024-03-02"]["score"])
	// A day present only in the companion file still imports.
	assert.Equal(t, "96.0", byDay["2024-03-03"]["average_spo2"])
	assert.NotContains(t, byDay["2024-03-03"], "score")
}

func TestArchive_RepairsSloppyRows(t *testing.T) {
	path := writeArchive(t, map[string]string{
		// Row 1 wrapped in quotes, row 2 short a leading column, row 3 has a
		// trailing extra field.
		"dailysleep.csv": "day;score;total_sleep_duration\n" +
			"\"2024-03-01;82;25200\"\n" +
			"2024-03-02;75\n" +
			"2024-03-03;70;24000;junk\n",
	})
	a := NewArchive(path, zap.NewNop())

	items, _, skip := drain(t, a, "")
	require.False(t, skip)
	require.Len(t, items, 3)

	assert.Equal(t, "82", items[0].Values["score"])
	// Short rows are padded at the front: trailing columns keep their values.
	assert.NotContains(t, items[1].Values, "day")
	assert.Equal(t, "2024-03-02", items[1].Values["score"])
	assert.Equal(t, "75", items[1].Values["total_sleep_duration"])
	assert.Equal(t, "24000", items[2].Values["total_sleep_duration"])
}

func TestArchive_FingerprintSkipsAppliedArchive(t *testing.T) {
	path := writeArchive(t, map[string]string{
		"dailysleep.csv": "day;score\n2024-03-01;82\n",
	})
	a := NewArchive(path, zap.NewNop())

	fp, err := a.Fingerprint()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fp, "sha256:"))

	_, next, skip := drain(t, NewArchive(path, zap.NewNop()), "")
	assert.False(t, skip)
	assert.Equal(t, fp, next)

	// Same archive against its own fingerprint: nothing to do.
	_, next, skip = drain(t, a, fp)
	assert.True(t, skip)
	assert.Equal(t, fp, next)

	// A different fingerprint means a different archive; it loads normally.
	items, _, skip := drain(t, NewArchive(path, zap.NewNop()), "sha256:other")
	assert.False(t, skip)
	assert.Len(t, items, 1)
}

func TestArchive_PaginatesLargeFiles(t *testing.T) {
	var b strings.Builder
	b.WriteString("bpm;source;timestamp\n")
	for i := 0; i < archivePageSize+10; i++ {
		b.WriteString("60;ppg;2024-03-01T00:00:00+00:00\n")
	}
	path := writeArchive(t, map[string]string{"heartrate.csv": b.String()})
	a := NewArchive(path, zap.NewNop())

	ctx := context.Background()
	cursor, _, skip, err := a.Begin(ctx, "")
	require.NoError(t, err)
	require.False(t, skip)

	first, err := a.FetchPage(ctx, cursor)
	require.NoError(t, err)
	assert.Len(t, first.Items, archivePageSize)
	require.False(t, first.Done)

	second, err := a.FetchPage(ctx, first.Cursor)
	require.NoError(t, err)
	assert.Len(t, second.Items, 10)
	assert.True(t, second.Done)
}

func TestArchive_EmptyArchiveYieldsDonePage(t *testing.T) {
	path := writeArchive(t, map[string]string{"readme.txt": "not a dataset"})
	a := NewArchive(path, zap.NewNop())

	items, _, skip := drain(t, a, "")
	assert.False(t, skip)
	assert.Empty(t, items)
}

func TestArchive_Errors(t *testing.T) {
	t.Run("missing file is permanent", func(t *testing.T) {
		a := NewArchive(filepath.Join(t.TempDir(), "nope.zip"), zap.NewNop())
		_, _, _, err := a.Begin(context.Background(), "")
		require.Error(t, err)
		assert.False(t, IsTransient(err))
	})

	t.Run("corrupt zip is permanent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.zip")
		require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o644))
		a := NewArchive(path, zap.NewNop())
		_, _, _, err := a.Begin(context.Background(), "")
		require.Error(t, err)
		assert.False(t, IsTransient(err))
	})

	t.Run("invalid cursor is permanent", func(t *testing.T) {
		path := writeArchive(t, map[string]string{"dailysleep.csv": "day;score\n2024-03-01;82\n"})
		a := NewArchive(path, zap.NewNop())
		_, _, _, err := a.Begin(context.Background(), "")
		require.NoError(t, err)

		_, err = a.FetchPage(context.Background(), "99")
		require.Error(t, err)
		assert.False(t, IsTransient(err))
	})
}
