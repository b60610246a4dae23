// Package retention provides the data retention policy: which historical
// rows are eligible for deletion. All functions are pure.
package retention

import (
	"errors"
	"fmt"
	"time"
)

// Valid policy bounds. Shorter than a month loses live dashboard data;
// longer than three years defeats the point of a sweep.
const (
	MinDays = 30
	MaxDays = 1095
)

// DefaultDays keeps one year of history.
const DefaultDays = 365

// ErrInvalidDays is returned for retention periods outside MinDays..MaxDays.
var ErrInvalidDays = errors.New("retention days out of range")

// Policy is a validated retention configuration (value type).
type Policy struct {
	Days int
}

// NewPolicy validates the retention period.
func NewPolicy(days int) (Policy, error) {
	if days < MinDays || days > MaxDays {
		return Policy{}, fmt.Errorf("%w: %d (valid %d-%d)", ErrInvalidDays, days, MinDays, MaxDays)
	}
	return Policy{Days: days}, nil
}

// Cutoff returns the boundary: rows strictly older are eligible for
// deletion.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -p.Days)
}

// Result reports how many rows one sweep removed per entity. Events and
// page views are deleted before sessions so dependent facts never outlive
// a sweep that removed their session.
type Result struct {
	EventsDeleted    int64     `json:"events_deleted"`
	PageViewsDeleted int64     `json:"page_views_deleted"`
	SessionsDeleted  int64     `json:"sessions_deleted"`
	Cutoff           time.Time `json:"cutoff"`
}

// Total returns the combined row count removed.
func (r Result) Total() int64 {
	return r.EventsDeleted + r.PageViewsDeleted + r.SessionsDeleted
}
