package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/domain/query"
	"github.com/ambrood/sitepulse/ports"
)

// BytesPerRecord is the rough on-disk footprint of one page view with its
// share of event and session rows plus index overhead. Advisory only.
const BytesPerRecord = 512

// Report is the advisory performance summary for a range. Consumers use it
// to decide whether to force the aggregated query path or run a retention
// sweep.
type Report struct {
	RecordCount        int64         `json:"record_count"`
	QueryElapsed       time.Duration `json:"-"`
	QueryElapsedMillis int64         `json:"query_elapsed_ms"`
	PeakHour           int           `json:"peak_hour"`
	PeakHourCount      int64         `json:"peak_hour_count"`
	EstimatedBytes     int64         `json:"estimated_storage_bytes"`
	Recommendations    []string      `json:"recommendations"`
}

// PerformanceReporter produces operational estimates over the analytics
// store. Its numbers guide tuning, nothing more.
type PerformanceReporter struct {
	store      ports.AnalyticsStore
	thresholds query.Thresholds
	clock      ports.Clock
	logger     zerolog.Logger
}

// NewPerformanceReporter creates the reporter. Zero thresholds fall back
// to the defaults.
func NewPerformanceReporter(store ports.AnalyticsStore, thresholds query.Thresholds, clock ports.Clock, logger zerolog.Logger) *PerformanceReporter {
	if thresholds == (query.Thresholds{}) {
		thresholds = query.DefaultThresholds()
	}
	return &PerformanceReporter{
		store:      store,
		thresholds: thresholds,
		clock:      clock,
		logger:     logger,
	}
}

// Report counts matching records, measures the count query's elapsed time,
// finds the peak hour of day, and estimates storage use for the range.
func (r *PerformanceReporter) Report(ctx context.Context, p query.Params) (Report, error) {
	started := r.clock.Now()
	count, err := r.store.CountRecords(ctx, p)
	if err != nil {
		return Report{}, fmt.Errorf("count records: %w", err)
	}
	elapsed := r.clock.Now().Sub(started)

	peakHour, peakCount, err := r.store.PeakHour(ctx, p.Start, p.End)
	if err != nil {
		return Report{}, fmt.Errorf("peak hour: %w", err)
	}

	rep := Report{
		RecordCount:        count,
		QueryElapsed:       elapsed,
		QueryElapsedMillis: elapsed.Milliseconds(),
		PeakHour:           peakHour,
		PeakHourCount:      peakCount,
		EstimatedBytes:     count * BytesPerRecord,
	}
	rep.Recommendations = r.recommend(rep, p)
	return rep, nil
}

// recommend derives tuning hints from the measured numbers.
func (r *PerformanceReporter) recommend(rep Report, p query.Params) []string {
	recs := []string{}
	if rep.RecordCount > int64(r.thresholds.MaxRecords) {
		recs = append(recs, fmt.Sprintf(
			"range matches %d records (over %d): use the aggregated query path",
			rep.RecordCount, r.thresholds.MaxRecords))
	}
	if p.DaysDiff() > r.thresholds.ExactMaxDays {
		recs = append(recs, fmt.Sprintf(
			"range spans %d days (over %d): queries will use weekly buckets",
			p.DaysDiff(), r.thresholds.ExactMaxDays))
	}
	if rep.EstimatedBytes > 100<<20 {
		recs = append(recs, "estimated storage exceeds 100MB: consider a retention sweep")
	}
	if rep.QueryElapsed > time.Second {
		recs = append(recs, "count query took over 1s: check indexes or reduce the range")
	}
	return recs
}
