package record

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The vendor's export CSVs and API payloads disagree on formats: integers
// arrive as "100.0", dates with or without a time component, JSON columns
// with CSV-doubled quotes. These parsers accept all observed shapes and
// return nil for anything empty rather than erroring.

func parseString(v any) *string {
	switch s := v.(type) {
	case string:
		trimmed := strings.Trim(strings.TrimSpace(s), `"`)
		if trimmed == "" || strings.EqualFold(trimmed, "null") || strings.EqualFold(trimmed, "nan") {
			return nil
		}
		return &trimmed
	case nil:
		return nil
	default:
		return nil
	}
}

func parseInt(v any) *int {
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		return &n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			i := int(f)
			return &i
		}
		return nil
	case string:
		s := parseString(n)
		if s == nil {
			return nil
		}
		// "100.0" counts as 100.
		if f, err := strconv.ParseFloat(*s, 64); err == nil {
			i := int(f)
			return &i
		}
		return nil
	default:
		return nil
	}
}

func parseFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
		return nil
	case string:
		s := parseString(n)
		if s == nil {
			return nil
		}
		if f, err := strconv.ParseFloat(*s, 64); err == nil {
			return &f
		}
		return nil
	default:
		return nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v any) *time.Time {
	s := parseString(v)
	if s == nil {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

// parseDay extracts a subject day ("2006-01-02") from a date or timestamp.
func parseDay(v any) *string {
	t := parseTime(v)
	if t == nil {
		return nil
	}
	day := t.Format("2006-01-02")
	return &day
}

// parseJSONMap decodes a JSON object column, undoing CSV double-quote
// escaping first. Anything that fails to decode is treated as absent.
func parseJSONMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		if len(m) == 0 {
			return nil
		}
		return m
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(m, `""`, `"`))
		s = strings.TrimPrefix(s, `"`)
		s = strings.TrimSuffix(s, `"`)
		if s == "" || s == "null" {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}
