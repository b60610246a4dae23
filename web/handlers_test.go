package web_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/adapters/clock"
	"github.com/ambrood/sitepulse/adapters/idgen"
	"github.com/ambrood/sitepulse/adapters/memory"
	"github.com/ambrood/sitepulse/app"
	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/query"
	"github.com/ambrood/sitepulse/domain/ratelimit"
	"github.com/ambrood/sitepulse/web"
)

type fixture struct {
	handler http.Handler
	store   *memory.AnalyticsStore
	clock   *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewAnalyticsStore()
	fc := clock.NewFake(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	logger := zerolog.Nop()

	ingest := app.NewIngestService(app.IngestDeps{
		Recorder: app.NewSyncRecorder(store, logger),
		Limits:   memory.NewRateLimitStore(),
		LimitCfg: ratelimit.Config{Limit: 5, Window: time.Minute},
		Clock:    fc,
		IDs:      idgen.NewSequential("evt"),
		Logger:   logger,
	})

	h := web.NewHandler(web.Deps{
		Ingest:    ingest,
		Analytics: app.NewAnalyticsService(store, query.Thresholds{}, fc, logger, nil),
		Retention: app.NewRetentionService(store, fc, logger, nil),
		Reporter:  app.NewPerformanceReporter(store, query.Thresholds{}, fc, logger),
		Store:     store,
		Clock:     fc,
		Logger:    logger,
		Version:   "test",
	})
	return &fixture{handler: h.Router(), store: store, clock: fc}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestTrackEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/track", `{"page_url":"/pricing","page_title":"Pricing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if !resp.Success || resp.SessionID == "" {
		t.Fatalf("response = %+v", resp)
	}
	if events, _, _ := f.store.Len(); events != 1 {
		t.Fatalf("stored events = %d, want 1", events)
	}
}

func TestUnknownPathReturnsJSONError(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Fatalf("error body = %s (%v)", rec.Body.String(), err)
	}
}

func TestTrackEndpointErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"page_url":`, http.StatusBadRequest},
		{"empty url", `{"page_url":""}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/track", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Fatalf("error body = %s (%v)", rec.Body.String(), err)
			}
		})
	}
}

func TestTrackEndpointRateLimit(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		rec := f.do(http.MethodPost, "/api/v1/track", `{"page_url":"/"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}

	rec := f.do(http.MethodPost, "/api/v1/track", `{"page_url":"/"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit status = %d, want 429", rec.Code)
	}
}

func seedStore(t *testing.T, f *fixture) {
	t.Helper()
	base := f.clock.Now().Add(-2 * time.Hour)
	for i, v := range []struct {
		url     string
		session string
	}{
		{"/", "s1"}, {"/projects", "s1"}, {"/", "s2"},
	} {
		e := event.Event{
			ID:        fmt.Sprintf("e%d", i),
			PageURL:   v.url,
			Device:    "desktop",
			Browser:   "Firefox 126",
			SessionID: v.session,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := f.store.RecordEvent(context.Background(), e); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	f := newFixture(t)
	seedStore(t, f)

	rec := f.do(http.MethodGet, "/api/v1/analytics?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result query.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if result.TotalViews != 3 || result.UniqueVisitors != 2 {
		t.Fatalf("result = %+v, want 3 views / 2 visitors", result)
	}
	if result.Aggregated {
		t.Error("7-day query marked aggregated")
	}
}

func TestAnalyticsEndpointAggregate(t *testing.T) {
	f := newFixture(t)
	seedStore(t, f)

	rec := f.do(http.MethodGet, "/api/v1/analytics?days=7&aggregate=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result query.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if !result.Aggregated {
		t.Fatal("forced aggregate query not marked aggregated")
	}
	if len(result.RecentVisitors) != 0 {
		t.Fatal("aggregated result carries recent visitors")
	}
}

func TestAnalyticsEndpointBadParams(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{
		"/api/v1/analytics?days=nope",
		"/api/v1/analytics?days=-1",
		"/api/v1/analytics?start=garbage",
		"/api/v1/analytics?start=2025-06-02&end=2025-06-01",
		"/api/v1/analytics?end=2025-06-01",
		"/api/v1/analytics?days=7&aggregate=maybe",
		"/api/v1/analytics?days=7&max_records=0",
	} {
		if rec := f.do(http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestRetentionSweepEndpoint(t *testing.T) {
	f := newFixture(t)

	// One old event, one fresh.
	old := f.clock.Now().AddDate(0, 0, -400)
	for i, ts := range []time.Time{old, f.clock.Now().Add(-time.Hour)} {
		e := event.Event{ID: fmt.Sprintf("e%d", i), PageURL: "/", SessionID: fmt.Sprintf("s%d", i), Timestamp: ts}
		if err := f.store.RecordEvent(context.Background(), e); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	rec := f.do(http.MethodPost, "/api/v1/retention/sweep", `{"retention_days":365}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result struct {
		EventsDeleted   int64 `json:"events_deleted"`
		SessionsDeleted int64 `json:"sessions_deleted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if result.EventsDeleted != 1 || result.SessionsDeleted != 1 {
		t.Fatalf("result = %+v, want 1 event / 1 session deleted", result)
	}

	// Out-of-range policy is a 400.
	rec = f.do(http.MethodPost, "/api/v1/retention/sweep", `{"retention_days":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid days status = %d, want 400", rec.Code)
	}
}

func TestPerformanceEndpoint(t *testing.T) {
	f := newFixture(t)
	seedStore(t, f)

	rec := f.do(http.MethodGet, "/api/v1/performance?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var report struct {
		RecordCount    int64 `json:"record_count"`
		EstimatedBytes int64 `json:"estimated_storage_bytes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if report.RecordCount != 3 {
		t.Fatalf("record count = %d, want 3", report.RecordCount)
	}
	if report.EstimatedBytes != 3*app.BytesPerRecord {
		t.Fatalf("estimated bytes = %d", report.EstimatedBytes)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Database != "ok" {
		t.Fatalf("database = %q, want ok", body.Database)
	}
}
