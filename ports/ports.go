// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/query"
	"github.com/ambrood/sitepulse/domain/ratelimit"
	"github.com/ambrood/sitepulse/domain/retention"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Location is the result of a geo lookup.
type Location struct {
	Country string
	City    string
}

// GeoLocator resolves an IP address to a coarse location. Implementations
// must bound their own latency; any failure means "no geo data", never an
// ingestion error.
type GeoLocator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// AnalyticsStore persists events, page views, and sessions, and answers
// the aggregation, retention, and performance queries over them.
type AnalyticsStore interface {
	// RecordEvent performs the ingestion write set: upsert the owning
	// session (create with page_views=1, or bump end_time and increment),
	// insert the event row, insert the page-view projection.
	RecordEvent(ctx context.Context, e event.Event) error

	// GetSession retrieves one session by its key.
	GetSession(ctx context.Context, sessionID string) (event.Session, error)

	// QueryExact answers a query from row-level data: daily buckets,
	// recent visitors, top pages, grouped device/browser counts.
	QueryExact(ctx context.Context, p query.Params) (query.Result, error)

	// QueryAggregated answers the same query with weekly buckets and no
	// visitor rows, for ranges too large to scan exactly.
	QueryAggregated(ctx context.Context, p query.Params) (query.Result, error)

	// CountRecords returns the number of page views in range matching the
	// filters.
	CountRecords(ctx context.Context, p query.Params) (int64, error)

	// PeakHour returns the hour-of-day (0-23) with the most events in
	// range, and that hour's event count.
	PeakHour(ctx context.Context, start, end time.Time) (int, int64, error)

	// Sweep deletes events, page views, and sessions strictly older than
	// the cutoff, in that order, and reports counts removed.
	Sweep(ctx context.Context, cutoff time.Time) (retention.Result, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// EventRecorder accepts events on the request path without blocking on
// storage. Implementations buffer and flush in batches.
type EventRecorder interface {
	// Record queues an event for persistence. Must never block beyond a
	// buffer append.
	Record(e event.Event)

	// Flush forces queued events to storage.
	Flush(ctx context.Context) error

	// Close flushes remaining events and stops background work.
	Close() error
}

// RateLimitStore persists sliding-window state per client key.
type RateLimitStore interface {
	// Get retrieves current rate limit state for a key.
	Get(ctx context.Context, key string) (ratelimit.WindowState, error)

	// Set updates rate limit state for a key.
	Set(ctx context.Context, key string, state ratelimit.WindowState) error

	// Cleanup drops expired window state and returns how many keys were
	// removed.
	Cleanup(ctx context.Context, cfg ratelimit.Config, now time.Time) (int, error)
}
