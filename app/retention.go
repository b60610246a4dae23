package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/adapters/metrics"
	"github.com/ambrood/sitepulse/domain/retention"
	"github.com/ambrood/sitepulse/ports"
)

// RetentionService removes data older than the configured retention period.
type RetentionService struct {
	store   ports.AnalyticsStore
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewRetentionService creates the retention service.
func NewRetentionService(store ports.AnalyticsStore, clock ports.Clock, logger zerolog.Logger, collector *metrics.Collector) *RetentionService {
	return &RetentionService{
		store:   store,
		clock:   clock,
		logger:  logger,
		metrics: collector,
	}
}

// Sweep deletes events, page views, and sessions older than days. Returns
// retention.ErrInvalidDays when days is outside the allowed range. The
// sweep is idempotent: re-running with the same policy deletes nothing new.
func (s *RetentionService) Sweep(ctx context.Context, days int) (retention.Result, error) {
	policy, err := retention.NewPolicy(days)
	if err != nil {
		return retention.Result{}, err
	}

	cutoff := policy.Cutoff(s.clock.Now())
	result, err := s.store.Sweep(ctx, cutoff)
	if s.metrics != nil {
		s.metrics.RetentionRuns.Inc()
		s.metrics.RetentionDeleted.WithLabelValues("events").Add(float64(result.EventsDeleted))
		s.metrics.RetentionDeleted.WithLabelValues("page_views").Add(float64(result.PageViewsDeleted))
		s.metrics.RetentionDeleted.WithLabelValues("sessions").Add(float64(result.SessionsDeleted))
	}
	if err != nil {
		// Partial counts still matter: the sweep deletes in dependency
		// order and a retry finishes the remainder.
		s.logger.Error().Err(err).
			Time("cutoff", cutoff).
			Int64("events_deleted", result.EventsDeleted).
			Int64("page_views_deleted", result.PageViewsDeleted).
			Int64("sessions_deleted", result.SessionsDeleted).
			Msg("retention sweep failed partway")
		return result, err
	}

	s.logger.Info().
		Time("cutoff", cutoff).
		Int("days", days).
		Int64("total_deleted", result.Total()).
		Msg("retention sweep complete")
	return result, nil
}
