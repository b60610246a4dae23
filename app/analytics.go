package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/adapters/metrics"
	"github.com/ambrood/sitepulse/domain/query"
	"github.com/ambrood/sitepulse/ports"
)

// AnalyticsService answers dashboard queries. It picks the exact or
// aggregated path per the configured thresholds and degrades to a
// zero-valued result when storage fails.
type AnalyticsService struct {
	store   ports.AnalyticsStore
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector

	mu         sync.RWMutex
	thresholds query.Thresholds
}

// NewAnalyticsService creates the query service. Zero thresholds fall back
// to the defaults.
func NewAnalyticsService(store ports.AnalyticsStore, thresholds query.Thresholds, clock ports.Clock, logger zerolog.Logger, collector *metrics.Collector) *AnalyticsService {
	if thresholds == (query.Thresholds{}) {
		thresholds = query.DefaultThresholds()
	}
	return &AnalyticsService{
		store:      store,
		thresholds: thresholds,
		clock:      clock,
		logger:     logger,
		metrics:    collector,
	}
}

// SetThresholds swaps the strategy boundaries, for config hot reload.
func (s *AnalyticsService) SetThresholds(t query.Thresholds) {
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
}

// Thresholds returns the current strategy boundaries.
func (s *AnalyticsService) Thresholds() query.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// Query runs one analytics query. The error return is always nil for
// storage failures: callers get zeroed counts and empty lists instead, so
// a degraded store renders an empty dashboard rather than a 500.
func (s *AnalyticsService) Query(ctx context.Context, p query.Params) (query.Result, query.Strategy) {
	strategy := query.SelectStrategy(p, s.Thresholds())

	started := s.clock.Now()
	var (
		result query.Result
		err    error
	)
	switch strategy {
	case query.StrategyAggregated:
		result, err = s.store.QueryAggregated(ctx, p)
	default:
		result, err = s.store.QueryExact(ctx, p)
	}
	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues(string(strategy)).Observe(s.clock.Now().Sub(started).Seconds())
	}

	if err != nil {
		s.logger.Error().Err(err).
			Str("strategy", string(strategy)).
			Time("start", p.Start).
			Time("end", p.End).
			Msg("analytics query failed, returning zero result")
		if s.metrics != nil {
			s.metrics.QueryFailures.Inc()
		}
		return query.ZeroResult(strategy == query.StrategyAggregated), strategy
	}
	return result, strategy
}
