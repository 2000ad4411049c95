package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vitals-manager/feature/ingest/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFeed(t *testing.T, handler http.Handler) (*Feed, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	feed := NewFeed(Config{
		BaseURL:   srv.URL,
		Token:     "test-token",
		StartDate: "2024-03-01",
	}, zap.NewNop())
	feed.now = func() time.Time {
		return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return feed, srv
}

func feedJSON(w http.ResponseWriter, data []map[string]any, nextToken string) {
	body := map[string]any{"data": data}
	if nextToken != "" {
		body["next_token"] = nextToken
	}
	_ = json.NewEncoder(w).Encode(body)
}

func TestFeed_BeginWindow(t *testing.T) {
	feed, _ := testFeed(t, http.NotFoundHandler())
	ctx := context.Background()

	t.Run("no checkpoint opens at configured start", func(t *testing.T) {
		cursor, next, skip, err := feed.Begin(ctx, "")
		require.NoError(t, err)
		assert.False(t, skip)
		assert.Equal(t, "2024-03-09", next)

		_, start, end, _, err := decodeCursor(cursor)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-01", start)
		assert.Equal(t, "2024-03-10", end)
	})

	t.Run("checkpoint opens the day after", func(t *testing.T) {
		cursor, _, skip, err := feed.Begin(ctx, "2024-03-05")
		require.NoError(t, err)
		assert.False(t, skip)

		_, start, _, _, err := decodeCursor(cursor)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-06", start)
	})

	t.Run("checkpoint stops at the last completed day", func(t *testing.T) {
		// The window closes today but the checkpoint must not: today's
		// dailies are partial until midnight, so the next run has to fetch
		// today again.
		cursor, next, skip, err := feed.Begin(ctx, "2024-03-05")
		require.NoError(t, err)
		require.False(t, skip)
		assert.Equal(t, "2024-03-09", next)

		_, _, end, _, err := decodeCursor(cursor)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-10", end)
	})

	t.Run("caught up feed refetches today only", func(t *testing.T) {
		cursor, next, skip, err := feed.Begin(ctx, "2024-03-09")
		require.NoError(t, err)
		require.False(t, skip)
		assert.Equal(t, "2024-03-09", next)

		_, start, end, _, err := decodeCursor(cursor)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-10", start)
		assert.Equal(t, "2024-03-10", end)
	})

	t.Run("future checkpoint skips", func(t *testing.T) {
		_, next, skip, err := feed.Begin(ctx, "2024-03-10")
		require.NoError(t, err)
		assert.True(t, skip)
		assert.Equal(t, "2024-03-10", next)
	})
}

func TestFeedCursorRoundTrip(t *testing.T) {
	t.Run("opaque token may contain separators", func(t *testing.T) {
		cursor := encodeCursor(3, "2024-03-01", "2024-03-10", "a|b|c==")

		idx, start, end, token, err := decodeCursor(cursor)
		require.NoError(t, err)
		assert.Equal(t, 3, idx)
		assert.Equal(t, "2024-03-01", start)
		assert.Equal(t, "2024-03-10", end)
		assert.Equal(t, "a|b|c==", token)
	})

	t.Run("empty token round trips", func(t *testing.T) {
		idx, _, _, token, err := decodeCursor(encodeCursor(0, "2024-03-01", "2024-03-10", ""))
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
		assert.Empty(t, token)
	})
}

func TestFeed_WalksCollectionsAndTokens(t *testing.T) {
	var requests []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.Path+"?token="+r.URL.Query().Get("next_token"))
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		switch {
		case r.URL.Path == "/v2/usercollection/daily_sleep" && r.URL.Query().Get("next_token") == "":
			feedJSON(w, []map[string]any{{"day": "2024-03-02", "score": float64(82)}}, "page2")
		case r.URL.Path == "/v2/usercollection/daily_sleep":
			require.Equal(t, "page2", r.URL.Query().Get("next_token"))
			feedJSON(w, []map[string]any{{"day": "2024-03-03", "score": float64(75)}}, "")
		default:
			feedJSON(w, nil, "")
		}
	})
	feed, _ := testFeed(t, handler)
	ctx := context.Background()

	cursor, _, skip, err := feed.Begin(ctx, "2024-03-01")
	require.NoError(t, err)
	require.False(t, skip)

	var items []record.Raw
	for {
		page, err := feed.FetchPage(ctx, cursor)
		require.NoError(t, err)
		items = append(items, page.Items...)
		if page.Done {
			break
		}
		cursor = page.Cursor
	}

	// Two sleep pages plus one empty page per remaining collection.
	require.Len(t, items, 2)
	assert.Equal(t, record.DatasetDailySleep, items[0].Dataset)
	assert.Equal(t, "2024-03-02", items[0].Values["day"])
	assert.Equal(t, feedSourceVersion, items[0].SourceVersion)
	assert.Len(t, requests, len(feedEndpoints)+1)
}

func TestFeed_WindowParameters(t *testing.T) {
	var byDate, byDatetime bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/v2/usercollection/daily_sleep":
			byDate = true
			assert.Equal(t, "2024-03-02", q.Get("start_date"))
			assert.Equal(t, "2024-03-10", q.Get("end_date"))
		case "/v2/usercollection/heartrate":
			byDatetime = true
			assert.Equal(t, "2024-03-02T00:00:00Z", q.Get("start_datetime"))
			assert.Equal(t, "2024-03-10T23:59:59Z", q.Get("end_datetime"))
		}
		feedJSON(w, nil, "")
	})
	feed, _ := testFeed(t, handler)
	ctx := context.Background()

	cursor, _, _, err := feed.Begin(ctx, "2024-03-01")
	require.NoError(t, err)
	for {
		page, err := feed.FetchPage(ctx, cursor)
		require.NoError(t, err)
		if page.Done {
			break
		}
		cursor = page.Cursor
	}
	assert.True(t, byDate)
	assert.True(t, byDatetime)
}

func TestFeed_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "server error retries", status: http.StatusInternalServerError, transient: true},
		{name: "throttling retries", status: http.StatusTooManyRequests, transient: true},
		{name: "bad credentials do not retry", status: http.StatusUnauthorized, transient: false},
		{name: "bad request does not retry", status: http.StatusBadRequest, transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, _ := testFeed(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			cursor, _, _, err := feed.Begin(context.Background(), "")
			require.NoError(t, err)

			_, err = feed.FetchPage(context.Background(), cursor)
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}

	t.Run("connection refused retries", func(t *testing.T) {
		feed, srv := testFeed(t, http.NotFoundHandler())
		srv.Close()

		cursor, _, _, err := feed.Begin(context.Background(), "")
		require.NoError(t, err)
		_, err = feed.FetchPage(context.Background(), cursor)
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("garbage cursor does not retry", func(t *testing.T) {
		feed, _ := testFeed(t, http.NotFoundHandler())
		_, err := feed.FetchPage(context.Background(), "not-a-cursor")
		require.Error(t, err)
		assert.False(t, IsTransient(err))
	})
}
