package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ambrood/sitepulse/adapters/memory"
	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/query"
)

var base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func pageView(id, url, sessionID string, ts time.Time) event.Event {
	return event.Event{
		ID:        id,
		PageURL:   url,
		UserAgent: "Mozilla/5.0",
		IPAddress: "203.0.113.7",
		Device:    "desktop",
		Browser:   "Chrome 120",
		SessionID: sessionID,
		Timestamp: ts,
	}
}

func TestAnalyticsStore_RecordEvent_SessionAccounting(t *testing.T) {
	store := memory.NewAnalyticsStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := pageView(fmt.Sprintf("e%d", i), "/", "s1", base.Add(time.Duration(i)*time.Minute))
		if err := store.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	sess, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.PageViews != 5 {
		t.Errorf("PageViews = %d, want 5", sess.PageViews)
	}
	if sess.EndTime.Before(sess.StartTime) {
		t.Errorf("EndTime %v before StartTime %v", sess.EndTime, sess.StartTime)
	}
	if !sess.StartTime.Equal(base) {
		t.Errorf("StartTime = %v, want %v", sess.StartTime, base)
	}

	events, views, sessions := store.Len()
	if events != 5 || views != 5 || sessions != 1 {
		t.Errorf("Len = %d/%d/%d, want 5/5/1", events, views, sessions)
	}
}

func TestAnalyticsStore_GetSession_Missing(t *testing.T) {
	store := memory.NewAnalyticsStore()
	if _, err := store.GetSession(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing session")
	}
}

func TestAnalyticsStore_QueryExact_ExampleScenario(t *testing.T) {
	store := memory.NewAnalyticsStore()
	ctx := context.Background()

	// Three page views for one session on the same day: /, /projects, /.
	store.RecordEvent(ctx, pageView("e1", "/", "s1", base))
	store.RecordEvent(ctx, pageView("e2", "/projects", "s1", base.Add(time.Minute)))
	store.RecordEvent(ctx, pageView("e3", "/", "s1", base.Add(2*time.Minute)))

	p := query.Params{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}
	result, err := store.QueryExact(ctx, p)
	if err != nil {
		t.Fatalf("QueryExact: %v", err)
	}

	if result.TotalViews != 3 {
		t.Errorf("TotalViews = %d, want 3", result.TotalViews)
	}
	if result.UniqueVisitors != 1 {
		t.Errorf("UniqueVisitors = %d, want 1", result.UniqueVisitors)
	}
	wantPages := []query.PageCount{{URL: "/", Views: 2}, {URL: "/projects", Views: 1}}
	if len(result.TopPages) != len(wantPages) {
		t.Fatalf("TopPages = %+v, want %+v", result.TopPages, wantPages)
	}
	for i, want := range wantPages {
		if result.TopPages[i] != want {
			t.Errorf("TopPages[%d] = %+v, want %+v", i, result.TopPages[i], want)
		}
	}
	if len(result.DailyViews) != 1 || result.DailyViews[0].Count != 3 {
		t.Errorf("DailyViews = %+v, want one bucket of 3", result.DailyViews)
	}
	if result.DailyViews[0].Bucket != "2025-06-01" {
		t.Errorf("bucket = %q, want 2025-06-01", result.DailyViews[0].Bucket)
	}
	if result.Aggregated {
		t.Error("exact result must not be flagged aggregated")
	}
	if len(result.RecentVisitors) != 1 || result.RecentVisitors[0].SessionID != "s1" {
		t.Errorf("RecentVisitors = %+v", result.RecentVisitors)
	}
	// One multi-page session: no bounces.
	if result.BounceRate != 0 {
		t.Errorf("BounceRate = %v, want 0", result.BounceRate)
	}
}

func TestAnalyticsStore_QueryExact_DeviceFilter(t *testing.T) {
	store := memory.NewAnalyticsStore()
	ctx := context.Background()

	mobile := pageView("e1", "/", "mob1", base)
	mobile.Device = "mobile"
	store.RecordEvent(ctx, mobile)
	store.RecordEvent(ctx, pageView("e2", "/", "desk1", base.Add(time.Minute)))

	p := query.Params{
		Start:   base.Add(-time.Hour),
		End:     base.Add(time.Hour),
		Filters: query.Filters{Device: "mobile"},
	}
	result, err := store.QueryExact(ctx, p)
	if err != nil {
		t.Fatalf("QueryExact: %v", err)
	}

	if result.UniqueVisitors != 1 {
		t.Errorf("UniqueVisitors = %d, want 1 (mobile only)", result.UniqueVisitors)
	}
	for _, stat := range result.DeviceStats {
		if stat.Name != "mobile" {
			t.Errorf("DeviceStats includes %q, want mobile only", stat.Name)
		}
	}
}

func TestAnalyticsStore_QueryAggregated(t *testing.T) {
	store := memory.NewAnalyticsStore()
	ctx := context.Background()

	// Views across two ISO weeks.
	store.RecordEvent(ctx, pageView("e1", "/", "s1", base))                   // 2025-W22
	store.RecordEvent(ctx, pageView("e2", "/", "s2", base.AddDate(0, 0, 7))) // 2025-W23

	p := query.Params{Start: base.Add(-time.Hour), End: base.AddDate(0, 0, 14)}
	result, err := store.QueryAggregated(ctx, p)
	if err != nil {
		t.Fatalf("QueryAggregated: %v", err)
	}

	if !result.Aggregated {
		t.Error("Aggregated flag not set")
	}
	if result.RecentVisitors != nil {
		t.Error("aggregated path must omit recent visitors")
	}
	if result.DailyViews != nil {
		t.Error("aggregated path must omit daily views")
	}
	if len(result.WeeklyViews) != 2 {
		t.Fatalf("WeeklyViews = %+v, want 2 buckets", result.WeeklyViews)
	}
	if result.WeeklyViews[0].Bucket >= result.WeeklyViews[1].Bucket {
		t.Error("weekly buckets must ascend")
	}
	// Two single-view sessions out of two: everything bounced.
	if result.BounceRate != 1 {
		t.Errorf("BounceRate = %v, want 1", result.BounceRate)
	}
}

func TestAnalyticsStore_Sweep_Idempotent(t *testing.T) {
	store := memory.NewAnalyticsStore()
	ctx := context.Background()

	old := base.AddDate(0, 0, -400)
	store.RecordEvent(ctx, pageView("old1", "/", "sOld", old))
	store.RecordEvent(ctx, pageView("new1", "/", "sNew", base))

	cutoff := base.AddDate(0, 0, -365)
	first, err := store.Sweep(ctx, cutoff)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if first.EventsDeleted != 1 || first.PageViewsDeleted != 1 || first.SessionsDeleted != 1 {
		t.Errorf("first sweep = %+v, want 1/1/1", first)
	}

	second, err := store.Sweep(ctx, cutoff)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if second.Total() != 0 {
		t.Errorf("second sweep deleted %d rows, want 0", second.Total())
	}

	if _, err := store.GetSession(ctx, "sNew"); err != nil {
		t.Errorf("recent session must survive the sweep: %v", err)
	}
}

func TestAnalyticsStore_PeakHour(t *testing.T) {
	store := memory.NewAnalyticsStore()
	ctx := context.Background()

	// Two events at 10:00 UTC, one at 14:00 UTC.
	store.RecordEvent(ctx, pageView("e1", "/", "s1", base))
	store.RecordEvent(ctx, pageView("e2", "/", "s1", base.Add(10*time.Minute)))
	store.RecordEvent(ctx, pageView("e3", "/", "s2", base.Add(4*time.Hour)))

	hour, count, err := store.PeakHour(ctx, base.Add(-time.Hour), base.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("PeakHour: %v", err)
	}
	if hour != 10 || count != 2 {
		t.Errorf("PeakHour = %d/%d, want 10/2", hour, count)
	}
}

func TestAnalyticsStore_CountRecords(t *testing.T) {
	store := memory.NewAnalyticsStore()
	ctx := context.Background()

	store.RecordEvent(ctx, pageView("e1", "/blog/a", "s1", base))
	store.RecordEvent(ctx, pageView("e2", "/blog/b", "s1", base.Add(time.Minute)))
	store.RecordEvent(ctx, pageView("e3", "/about", "s1", base.Add(2*time.Minute)))

	p := query.Params{
		Start:   base.Add(-time.Hour),
		End:     base.Add(time.Hour),
		Filters: query.Filters{Page: "/blog"},
	}
	n, err := store.CountRecords(ctx, p)
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if n != 2 {
		t.Errorf("CountRecords = %d, want 2", n)
	}
}
