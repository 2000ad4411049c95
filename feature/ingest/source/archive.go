package source

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"vitals-manager/feature/ingest/record"

	"go.uber.org/zap"
)

// archiveSourceVersion tags records read from export CSVs.
const archiveSourceVersion = "export-csv-v2"

// archivePageSize bounds how many rows one page carries; the heart-rate file
// alone can hold years of samples.
const archivePageSize = 2000

// csvDataset maps an export file to its canonical dataset. Files with a
// mergeWith entry are outer-joined by day into the primary file's rows, the
// way the vendor means them to be read (SpO2 belongs to the night, stress to
// the readiness day).
type csvDataset struct {
	file      string
	dataset   string
	mergeWith string
}

var archiveLayout = []csvDataset{
	{file: "dailysleep.csv", dataset: record.DatasetDailySleep, mergeWith: "dailyspo2.csv"},
	{file: "dailyreadiness.csv", dataset: record.DatasetDailyReadiness, mergeWith: "dailystress.csv"},
	{file: "dailyactivity.csv", dataset: record.DatasetDailyActivity},
	{file: "sleepmodel.csv", dataset: record.DatasetSleepSession},
	{file: "workout.csv", dataset: record.DatasetWorkout},
	{file: "heartrate.csv", dataset: record.DatasetHeartRate},
	{file: "enhancedtag.csv", dataset: record.DatasetTag},
	{file: "temperature.csv", dataset: record.DatasetTemperature},
}

// Archive reads raw items out of a vendor export zip on local disk.
// Nested folders inside the zip are searched; unknown files are ignored.
type Archive struct {
	path   string
	logger *zap.Logger

	pages []Page
}

// NewArchive creates an archive source over the given zip file.
func NewArchive(path string, logger *zap.Logger) *Archive {
	return &Archive{path: path, logger: logger}
}

// Name implements Source.
func (a *Archive) Name() record.Source {
	return record.SourceArchiveImport
}

// Fingerprint returns the content digest of the whole archive file.
func (a *Archive) Fingerprint() (string, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", a.path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to fingerprint archive %s: %w", a.path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Begin implements Source. An archive whose fingerprint matches the stored
// checkpoint has already been fully applied and is skipped outright.
func (a *Archive) Begin(ctx context.Context, checkpoint string) (string, string, bool, error) {
	fp, err := a.Fingerprint()
	if err != nil {
		return "", "", false, Permanent(err)
	}
	if checkpoint != "" && checkpoint == fp {
		return "", fp, true, nil
	}
	if err := a.load(); err != nil {
		return "", "", false, err
	}
	return "0", fp, false, nil
}

// FetchPage implements Source. The cursor is the page index; pages were
// materialized by Begin. Local file reads have no transient failure mode, so
// every error here is permanent.
func (a *Archive) FetchPage(ctx context.Context, cursor string) (Page, error) {
	if a.pages == nil {
		if err := a.load(); err != nil {
			return Page{}, err
		}
	}
	idx, err := strconv.Atoi(cursor)
	if err != nil || idx < 0 || idx >= len(a.pages) {
		return Page{}, Permanent(fmt.Errorf("invalid archive cursor %q", cursor))
	}
	return a.pages[idx], nil
}

// load parses the zip once and materializes all pages.
func (a *Archive) load() error {
	reader, err := zip.OpenReader(a.path)
	if err != nil {
		return Permanent(fmt.Errorf("failed to open archive %s: %w", a.path, err))
	}
	defer reader.Close()

	// Index entries by base name; exports nest their CSVs under a dated
	// folder whose name varies.
	entries := make(map[string]*zip.File)
	for _, f := range reader.File {
		name := strings.ToLower(path.Base(f.Name))
		if _, exists := entries[name]; !exists {
			entries[name] = f
		}
	}

	var pages []Page
	for _, ds := range archiveLayout {
		rows, err := a.readRows(entries, ds.file)
		if err != nil {
			return err
		}
		if ds.mergeWith != "" {
			extra, err := a.readRows(entries, ds.mergeWith)
			if err != nil {
				return err
			}
			rows = mergeByDay(rows, extra)
		}
		if len(rows) == 0 {
			continue
		}
		for start := 0; start < len(rows); start += archivePageSize {
			end := start + archivePageSize
			if end > len(rows) {
				end = len(rows)
			}
			items := make([]record.Raw, 0, end-start)
			for _, row := range rows[start:end] {
				items = append(items, record.Raw{
					Dataset:       ds.dataset,
					Values:        row,
					SourceVersion: archiveSourceVersion,
				})
			}
			pages = append(pages, Page{Items: items})
		}
	}

	// Chain cursors now that the page count is known.
	for i := range pages {
		pages[i].Cursor = strconv.Itoa(i + 1)
		pages[i].Done = i == len(pages)-1
	}
	if len(pages) == 0 {
		a.logger.Warn("archive contains no known datasets", zap.String("path", a.path))
		pages = []Page{{Done: true}}
	}
	a.pages = pages
	return nil
}

// readRows parses one semicolon-delimited export CSV. The vendor's files are
// sloppily quoted and occasionally short a column, so rows are repaired by
// hand instead of trusting a strict CSV reader: wrapping quotes stripped,
// short rows padded, long rows truncated.
func (a *Archive) readRows(entries map[string]*zip.File, name string) ([]map[string]any, error) {
	entry, ok := entries[name]
	if !ok {
		return nil, nil
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to open %s: %w", name, err))
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to read %s: %w", name, err))
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, nil
	}
	header := strings.Split(strings.TrimSpace(lines[0]), ";")

	var rows []map[string]any
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`) {
			line = line[1 : len(line)-1]
		}
		parts := strings.Split(line, ";")
		if len(parts) < len(header) {
			padded := make([]string, len(header)-len(parts))
			parts = append(padded, parts...)
		}
		if len(parts) > len(header) {
			parts = parts[:len(header)]
		}

		row := make(map[string]any, len(header))
		for i, col := range header {
			col = strings.TrimSpace(col)
			if col == "" || parts[i] == "" {
				continue
			}
			row[col] = parts[i]
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// mergeByDay outer-joins secondary rows into primary rows on the day column.
// Primary values win on collision; secondary-only days become rows of their
// own so a day present in only one file still imports.
func mergeByDay(primary, secondary []map[string]any) []map[string]any {
	if len(secondary) == 0 {
		return primary
	}
	byDay := make(map[string]map[string]any, len(primary))
	order := make([]string, 0, len(primary))
	for _, row := range primary {
		day, ok := row["day"].(string)
		if !ok {
			continue
		}
		byDay[day] = row
		order = append(order, day)
	}
	for _, row := range secondary {
		day, ok := row["day"].(string)
		if !ok {
			continue
		}
		target, exists := byDay[day]
		if !exists {
			byDay[day] = row
			order = append(order, day)
			continue
		}
		for col, val := range row {
			if _, taken := target[col]; !taken {
				target[col] = val
			}
		}
	}

	merged := make([]map[string]any, 0, len(order))
	for _, day := range order {
		merged = append(merged, byDay[day])
	}
	return merged
}
