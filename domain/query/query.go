// Package query provides the analytics query contract: parameters, result
// shapes, and the strategy selection rule. All functions are pure.
package query

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Strategy names the two query paths.
type Strategy string

const (
	// StrategyExact scans row-level data: daily buckets, recent visitors.
	StrategyExact Strategy = "exact"
	// StrategyAggregated returns coarser, pre-summarized results (weekly
	// buckets, no visitor rows) to bound cost over large ranges.
	StrategyAggregated Strategy = "aggregated"
)

// Thresholds drives strategy selection. Injected from configuration so the
// boundary is tunable and testable.
type Thresholds struct {
	ExactMaxDays    int // Ranges longer than this use the aggregated path
	MinExactRecords int // maxRecords ceilings below this force aggregation
	MaxRecords      int // Default expected-row-count ceiling
}

// DefaultThresholds returns the stock boundaries: 90 days, 1000, 10000.
func DefaultThresholds() Thresholds {
	return Thresholds{ExactMaxDays: 90, MinExactRecords: 1000, MaxRecords: 10000}
}

// Filters optionally narrows a query. Each present field matches as a
// case-insensitive substring.
type Filters struct {
	Country string
	Device  string
	Browser string
	Page    string
}

// Empty reports whether no filter field is set.
func (f Filters) Empty() bool {
	return f == Filters{}
}

// MatchField reports whether value matches one filter field.
func MatchField(filter, value string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(filter))
}

// Params is a validated analytics query.
type Params struct {
	Start         time.Time
	End           time.Time
	Filters       Filters
	AggregateOnly bool // Caller forces the aggregated path
	MaxRecords    int  // 0 means the configured default
}

// DaysDiff returns the range length in whole days, rounded up.
func (p Params) DaysDiff() int {
	if !p.End.After(p.Start) {
		return 0
	}
	return int(math.Ceil(p.End.Sub(p.Start).Hours() / 24))
}

// SelectStrategy applies the boundary rule: long ranges, explicit requests,
// and tight record ceilings all take the aggregated path.
func SelectStrategy(p Params, t Thresholds) Strategy {
	if p.AggregateOnly {
		return StrategyAggregated
	}
	if p.DaysDiff() > t.ExactMaxDays {
		return StrategyAggregated
	}
	maxRecords := p.MaxRecords
	if maxRecords == 0 {
		maxRecords = t.MaxRecords
	}
	if maxRecords < t.MinExactRecords {
		return StrategyAggregated
	}
	return StrategyExact
}

// PageCount is one "top pages" row.
type PageCount struct {
	URL   string `json:"url"`
	Views int64  `json:"views"`
}

// NameCount is one grouped count (device, browser).
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// BucketCount is one time-bucketed count. Bucket is a calendar day
// ("2025-06-01") on the exact path or an ISO week ("2025-W23") on the
// aggregated path.
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// Visitor is the projected session row returned by the exact path.
type Visitor struct {
	SessionID string    `json:"session_id"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
	Device    string    `json:"device"`
	Browser   string    `json:"browser"`
	StartTime time.Time `json:"start_time"`
	PageViews int64     `json:"page_views"`
}

// Result is the analytics answer for one query. The aggregated path omits
// RecentVisitors and DailyViews, fills WeeklyViews, and sets Aggregated.
type Result struct {
	TotalViews     int64         `json:"total_views"`
	UniqueVisitors int64         `json:"unique_visitors"`
	BounceRate     float64       `json:"bounce_rate"`
	TopPages       []PageCount   `json:"top_pages"`
	RecentVisitors []Visitor     `json:"recent_visitors,omitempty"`
	DeviceStats    []NameCount   `json:"device_stats"`
	BrowserStats   []NameCount   `json:"browser_stats"`
	DailyViews     []BucketCount `json:"daily_views,omitempty"`
	WeeklyViews    []BucketCount `json:"weekly_views,omitempty"`
	Aggregated     bool          `json:"aggregated"`
}

// ZeroResult is what callers get when storage fails: every count zero,
// every list empty. The dashboard degrades instead of erroring.
func ZeroResult(aggregated bool) Result {
	r := Result{
		TopPages:     []PageCount{},
		DeviceStats:  []NameCount{},
		BrowserStats: []NameCount{},
		Aggregated:   aggregated,
	}
	if aggregated {
		r.WeeklyViews = []BucketCount{}
	} else {
		r.RecentVisitors = []Visitor{}
		r.DailyViews = []BucketCount{}
	}
	return r
}

// TopPagesLimit and RecentVisitorsLimit bound exact-path list sizes.
const (
	TopPagesLimit       = 10
	RecentVisitorsLimit = 50
)

// DayBucket formats a timestamp as its calendar-day bucket key.
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekBucket formats a timestamp as its ISO-week bucket key.
func WeekBucket(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// BounceRate is the conventional definition: single-page-view sessions over
// total sessions, in the range 0..1.
func BounceRate(singleViewSessions, totalSessions int64) float64 {
	if totalSessions == 0 {
		return 0
	}
	return float64(singleViewSessions) / float64(totalSessions)
}
