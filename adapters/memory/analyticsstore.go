// Package memory provides in-memory implementations of storage ports.
// Used by tests and the "memory" database driver for local development.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/query"
	"github.com/ambrood/sitepulse/domain/retention"
	"github.com/ambrood/sitepulse/ports"
)

// AnalyticsStore is an in-memory implementation of ports.AnalyticsStore.
type AnalyticsStore struct {
	mu        sync.RWMutex
	events    []event.Event
	pageViews []event.PageView
	sessions  map[string]*event.Session
}

// NewAnalyticsStore creates an empty in-memory store.
func NewAnalyticsStore() *AnalyticsStore {
	return &AnalyticsStore{
		sessions: make(map[string]*event.Session),
	}
}

// RecordEvent performs the ingestion write set under one lock, so the
// session counter always matches the page-view rows.
func (s *AnalyticsStore) RecordEvent(ctx context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[e.SessionID]; ok {
		sess.EndTime = e.Timestamp
		sess.PageViews++
	} else {
		s.sessions[e.SessionID] = &event.Session{
			SessionID: e.SessionID,
			UserAgent: e.UserAgent,
			IPAddress: e.IPAddress,
			Country:   e.Country,
			City:      e.City,
			Device:    e.Device,
			Browser:   e.Browser,
			StartTime: e.Timestamp,
			EndTime:   e.Timestamp,
			PageViews: 1,
		}
	}

	s.events = append(s.events, e)
	s.pageViews = append(s.pageViews, e.PageViewOf())
	return nil
}

// GetSession retrieves one session by key.
func (s *AnalyticsStore) GetSession(ctx context.Context, sessionID string) (event.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return event.Session{}, sql.ErrNoRows
	}
	return *sess, nil
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func (s *AnalyticsStore) matchingPageViews(p query.Params) []event.PageView {
	var out []event.PageView
	for _, pv := range s.pageViews {
		if inRange(pv.Timestamp, p.Start, p.End) && query.MatchField(p.Filters.Page, pv.PageURL) {
			out = append(out, pv)
		}
	}
	return out
}

func (s *AnalyticsStore) matchingSessions(p query.Params) []*event.Session {
	var out []*event.Session
	for _, sess := range s.sessions {
		if !inRange(sess.StartTime, p.Start, p.End) {
			continue
		}
		if !query.MatchField(p.Filters.Country, sess.Country) ||
			!query.MatchField(p.Filters.Device, sess.Device) ||
			!query.MatchField(p.Filters.Browser, sess.Browser) {
			continue
		}
		out = append(out, sess)
	}
	return out
}

// QueryExact answers from row-level data.
func (s *AnalyticsStore) QueryExact(ctx context.Context, p query.Params) (query.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := query.ZeroResult(false)
	views := s.matchingPageViews(p)
	sessions := s.matchingSessions(p)

	result.TotalViews = int64(len(views))
	result.UniqueVisitors = int64(len(sessions))

	var singleView int64
	for _, sess := range sessions {
		if sess.PageViews == 1 {
			singleView++
		}
	}
	result.BounceRate = query.BounceRate(singleView, result.UniqueVisitors)

	result.TopPages = topPages(views, query.TopPagesLimit)
	result.DeviceStats = groupSessions(sessions, func(s *event.Session) string { return s.Device })
	result.BrowserStats = groupSessions(sessions, func(s *event.Session) string { return s.Browser })
	result.DailyViews = bucketViews(views, query.DayBucket)
	result.RecentVisitors = recentVisitors(sessions, query.RecentVisitorsLimit)
	return result, nil
}

// QueryAggregated answers with weekly buckets and no visitor rows.
func (s *AnalyticsStore) QueryAggregated(ctx context.Context, p query.Params) (query.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := query.ZeroResult(true)
	views := s.matchingPageViews(p)
	sessions := s.matchingSessions(p)

	result.TotalViews = int64(len(views))
	result.UniqueVisitors = int64(len(sessions))

	var singleView int64
	for _, sess := range sessions {
		if sess.PageViews == 1 {
			singleView++
		}
	}
	result.BounceRate = query.BounceRate(singleView, result.UniqueVisitors)

	result.TopPages = topPages(views, query.TopPagesLimit)
	result.DeviceStats = groupSessions(sessions, func(s *event.Session) string { return s.Device })
	result.BrowserStats = groupSessions(sessions, func(s *event.Session) string { return s.Browser })
	result.WeeklyViews = bucketViews(views, query.WeekBucket)
	return result, nil
}

// CountRecords returns page views in range matching the filters.
func (s *AnalyticsStore) CountRecords(ctx context.Context, p query.Params) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matchingPageViews(p))), nil
}

// PeakHour returns the busiest hour-of-day in range.
func (s *AnalyticsStore) PeakHour(ctx context.Context, start, end time.Time) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var byHour [24]int64
	for _, e := range s.events {
		if inRange(e.Timestamp, start, end) {
			byHour[e.Timestamp.UTC().Hour()]++
		}
	}

	peak, peakCount := 0, int64(0)
	for hour, count := range byHour {
		if count > peakCount {
			peak, peakCount = hour, count
		}
	}
	return peak, peakCount, nil
}

// Sweep removes rows strictly older than the cutoff.
func (s *AnalyticsStore) Sweep(ctx context.Context, cutoff time.Time) (retention.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := retention.Result{Cutoff: cutoff}

	kept := s.events[:0]
	for _, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			result.EventsDeleted++
		} else {
			kept = append(kept, e)
		}
	}
	s.events = kept

	keptViews := s.pageViews[:0]
	for _, pv := range s.pageViews {
		if pv.Timestamp.Before(cutoff) {
			result.PageViewsDeleted++
		} else {
			keptViews = append(keptViews, pv)
		}
	}
	s.pageViews = keptViews

	for id, sess := range s.sessions {
		if sess.StartTime.Before(cutoff) {
			delete(s.sessions, id)
			result.SessionsDeleted++
		}
	}

	return result, nil
}

// Ping always succeeds.
func (s *AnalyticsStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns stored row counts (for tests).
func (s *AnalyticsStore) Len() (events, pageViews, sessions int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), len(s.pageViews), len(s.sessions)
}

func topPages(views []event.PageView, limit int) []query.PageCount {
	counts := make(map[string]int64)
	for _, pv := range views {
		counts[pv.PageURL]++
	}

	out := make([]query.PageCount, 0, len(counts))
	for url, n := range counts {
		out = append(out, query.PageCount{URL: url, Views: n})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].URL < out[j].URL
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func groupSessions(sessions []*event.Session, keyOf func(*event.Session) string) []query.NameCount {
	counts := make(map[string]int64)
	for _, sess := range sessions {
		counts[keyOf(sess)]++
	}

	out := make([]query.NameCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, query.NameCount{Name: name, Count: n})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func bucketViews(views []event.PageView, bucketOf func(time.Time) string) []query.BucketCount {
	counts := make(map[string]int64)
	for _, pv := range views {
		counts[bucketOf(pv.Timestamp)]++
	}

	out := make([]query.BucketCount, 0, len(counts))
	for bucket, n := range counts {
		out = append(out, query.BucketCount{Bucket: bucket, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}

func recentVisitors(sessions []*event.Session, limit int) []query.Visitor {
	sorted := make([]*event.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]query.Visitor, 0, len(sorted))
	for _, sess := range sorted {
		out = append(out, query.Visitor{
			SessionID: sess.SessionID,
			Country:   sess.Country,
			City:      sess.City,
			Device:    sess.Device,
			Browser:   sess.Browser,
			StartTime: sess.StartTime,
			PageViews: sess.PageViews,
		})
	}
	return out
}

// Ensure interface compliance.
var _ ports.AnalyticsStore = (*AnalyticsStore)(nil)
