package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vitals-manager/feature/ingest/record"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// feedSourceVersion tags records pulled from the vendor API.
const feedSourceVersion = "api-v2"

// Config holds configuration for the vendor feed client.
type Config struct {
	// BaseURL is the vendor API root.
	BaseURL string `mapstructure:"base_url" default:"https://api.ouraring.com"`
	// Token is the personal access token for the vendor account.
	Token string `mapstructure:"token" default:""`
	// StartDate is the first day ever requested when no checkpoint exists.
	StartDate string `mapstructure:"start_date" default:"2020-01-01"`
	// TimeoutSeconds is the per-request timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}

// feedEndpoint binds an API collection to its canonical dataset.
type feedEndpoint struct {
	path    string
	dataset string
	// byDatetime marks collections paginated by datetime instead of date.
	byDatetime bool
}

var feedEndpoints = []feedEndpoint{
	{path: "/v2/usercollection/daily_sleep", dataset: record.DatasetDailySleep},
	{path: "/v2/usercollection/daily_readiness", dataset: record.DatasetDailyReadiness},
	{path: "/v2/usercollection/daily_activity", dataset: record.DatasetDailyActivity},
	{path: "/v2/usercollection/sleep", dataset: record.DatasetSleepSession},
	{path: "/v2/usercollection/workout", dataset: record.DatasetWorkout},
	{path: "/v2/usercollection/enhanced_tag", dataset: record.DatasetTag},
	{path: "/v2/usercollection/heartrate", dataset: record.DatasetHeartRate, byDatetime: true},
}

// Feed pulls raw items from the vendor REST API, one collection at a time,
// honoring the API's next_token pagination within each collection.
type Feed struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	// now is overridable for tests.
	now func() time.Time
}

// NewFeed creates a feed source from configuration.
func NewFeed(cfg Config, logger *zap.Logger) *Feed {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	return &Feed{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
		logger: logger,
		now:    time.Now,
	}
}

// Name implements Source.
func (f *Feed) Name() record.Source {
	return record.SourceSyncedFeed
}

// Begin implements Source. The feed checkpoint is the last completed day;
// the run window opens the day after it and closes today.
func (f *Feed) Begin(ctx context.Context, checkpoint string) (string, string, bool, error) {
	start := f.cfg.StartDate
	if checkpoint != "" {
		if day, err := time.Parse("2006-01-02", checkpoint); err == nil {
			start = day.AddDate(0, 0, 1).Format("2006-01-02")
		}
	}
	today := f.now().UTC()
	end := today.Format("2006-01-02")
	if start > end {
		return "", checkpoint, true, nil
	}
	// Today's dailies are still accumulating, so the checkpoint stops at
	// yesterday and the next run re-fetches today. Rows that did not change
	// in the meantime skip on their content hash.
	next := today.AddDate(0, 0, -1).Format("2006-01-02")
	if next < checkpoint {
		next = checkpoint
	}
	return encodeCursor(0, start, end, ""), next, false, nil
}

// FetchPage implements Source.
func (f *Feed) FetchPage(ctx context.Context, cursor string) (Page, error) {
	idx, start, end, token, err := decodeCursor(cursor)
	if err != nil || idx >= len(feedEndpoints) {
		return Page{}, Permanent(fmt.Errorf("invalid feed cursor %q", cursor))
	}
	endpoint := feedEndpoints[idx]

	req, err := f.buildRequest(ctx, endpoint, token, start, end)
	if err != nil {
		return Page{}, Permanent(err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Network-level failures, including timeouts, are worth a retry.
		return Page{}, Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Page{}, Transient(fmt.Errorf("%s returned %d", endpoint.path, resp.StatusCode))
	default:
		return Page{}, Permanent(fmt.Errorf("%s returned %d", endpoint.path, resp.StatusCode))
	}

	var body struct {
		Data      []map[string]any `json:"data"`
		NextToken *string          `json:"next_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// Truncated responses show up as decode failures; retry.
		return Page{}, Transient(fmt.Errorf("failed to decode %s response: %w", endpoint.path, err))
	}

	items := make([]record.Raw, 0, len(body.Data))
	for _, values := range body.Data {
		items = append(items, record.Raw{
			Dataset:       endpoint.dataset,
			Values:        values,
			SourceVersion: feedSourceVersion,
		})
	}

	page := Page{Items: items}
	if body.NextToken != nil && *body.NextToken != "" {
		page.Cursor = encodeCursor(idx, start, end, *body.NextToken)
	} else if idx+1 < len(feedEndpoints) {
		page.Cursor = encodeCursor(idx+1, start, end, "")
	} else {
		page.Done = true
	}
	return page, nil
}

func (f *Feed) buildRequest(ctx context.Context, endpoint feedEndpoint, token, start, end string) (*http.Request, error) {
	u, err := url.Parse(strings.TrimSuffix(f.cfg.BaseURL, "/") + endpoint.path)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}

	q := u.Query()
	if endpoint.byDatetime {
		q.Set("start_datetime", start+"T00:00:00Z")
		q.Set("end_datetime", end+"T23:59:59Z")
	} else {
		q.Set("start_date", start)
		q.Set("end_date", end)
	}
	if token != "" {
		q.Set("next_token", token)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Cursor format: "<endpoint index>|<start>|<end>|<next_token>". The token is
// opaque vendor data and goes last, so it may itself contain separators.
func encodeCursor(idx int, start, end, token string) string {
	return strconv.Itoa(idx) + "|" + start + "|" + end + "|" + token
}

func decodeCursor(cursor string) (idx int, start, end, token string, err error) {
	parts := strings.SplitN(cursor, "|", 4)
	if len(parts) != 4 {
		return 0, "", "", "", fmt.Errorf("malformed cursor")
	}
	idx, err = strconv.Atoi(parts[0])
	if err != nil || idx < 0 {
		return 0, "", "", "", fmt.Errorf("malformed cursor index")
	}
	return idx, parts[1], parts[2], parts[3], nil
}
