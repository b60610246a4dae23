package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/adapters/metrics"
	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/ratelimit"
	"github.com/ambrood/sitepulse/domain/visitor"
	"github.com/ambrood/sitepulse/ports"
)

// ErrRateLimited is returned when the ingestion guard rejects a client.
var ErrRateLimited = errors.New("rate limit exceeded")

// RequestMeta carries the header values the ingestor needs from a request.
type RequestMeta struct {
	UserAgent    string
	ForwardedFor string
	RealIP       string
}

// IngestService records page-view events. Storage failures are logged and
// swallowed: analytics must never fail a page render.
type IngestService struct {
	recorder ports.EventRecorder
	limits   ports.RateLimitStore
	geo      ports.GeoLocator
	clock    ports.Clock
	ids      ports.IDGenerator
	logger   zerolog.Logger
	metrics  *metrics.Collector
	siteHost string

	mu       sync.RWMutex
	limitCfg ratelimit.Config
}

// IngestDeps contains dependencies for the ingest service.
type IngestDeps struct {
	Recorder ports.EventRecorder
	Limits   ports.RateLimitStore
	LimitCfg ratelimit.Config
	Geo      ports.GeoLocator
	Clock    ports.Clock
	IDs      ports.IDGenerator
	Logger   zerolog.Logger
	Metrics  *metrics.Collector
	SiteHost string // own hostname, for dropping self-referrals
}

// NewIngestService creates the ingestion service.
func NewIngestService(deps IngestDeps) *IngestService {
	cfg := deps.LimitCfg
	if cfg.Limit == 0 {
		cfg = ratelimit.DefaultConfig()
	}
	return &IngestService{
		recorder: deps.Recorder,
		limits:   deps.Limits,
		limitCfg: cfg,
		geo:      deps.Geo,
		clock:    deps.Clock,
		ids:      deps.IDs,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		siteHost: deps.SiteHost,
	}
}

// SetRateLimit swaps the window configuration, for config hot reload.
func (s *IngestService) SetRateLimit(cfg ratelimit.Config) {
	s.mu.Lock()
	s.limitCfg = cfg
	s.mu.Unlock()
}

func (s *IngestService) rateLimit() ratelimit.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limitCfg
}

// Track validates and records one page view. Returns the session ID the
// event was attributed to. ErrRateLimited and validation errors surface to
// the handler; storage problems never do.
func (s *IngestService) Track(ctx context.Context, in event.TrackInput, meta RequestMeta) (string, error) {
	if err := in.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.IngestFailures.WithLabelValues("validation").Inc()
		}
		return "", err
	}

	info := visitor.Resolve(meta.UserAgent, meta.ForwardedFor, meta.RealIP)
	now := s.clock.Now().UTC()

	if err := s.checkRateLimit(ctx, info.IPAddress, now); err != nil {
		return "", err
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = visitor.DeriveSessionID(info.IPAddress, info.UserAgent, now)
	}

	s.lookupGeo(ctx, &info)

	e := event.Event{
		ID:        s.ids.New(),
		PageURL:   in.PageURL,
		PageTitle: in.PageTitle,
		Referrer:  event.NormalizeReferrer(in.Referrer, s.siteHost),
		UserAgent: info.UserAgent,
		IPAddress: info.IPAddress,
		Country:   info.Country,
		City:      info.City,
		Device:    info.Device,
		Browser:   info.Browser,
		SessionID: sessionID,
		Timestamp: now,
	}

	s.recorder.Record(e)
	if s.metrics != nil {
		s.metrics.EventsIngested.Inc()
	}
	return sessionID, nil
}

// checkRateLimit applies the sliding window per client address. A failing
// limit store fails open: a broken guard must not block ingestion.
func (s *IngestService) checkRateLimit(ctx context.Context, ip string, now time.Time) error {
	state, err := s.limits.Get(ctx, ip)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rate limit state read failed, allowing request")
		return nil
	}

	result, newState := ratelimit.Check(state, s.rateLimit(), now)
	if err := s.limits.Set(ctx, ip, newState); err != nil {
		s.logger.Warn().Err(err).Msg("rate limit state write failed")
	}

	if !result.Allowed {
		if s.metrics != nil {
			s.metrics.RateLimitHits.Inc()
		}
		return ErrRateLimited
	}
	return nil
}

// lookupGeo fills country/city when a locator is configured. Any failure
// downgrades to "no geo data".
func (s *IngestService) lookupGeo(ctx context.Context, info *visitor.Info) {
	if s.geo == nil {
		return
	}

	loc, err := s.geo.Locate(ctx, info.IPAddress)
	if err != nil {
		s.logger.Debug().Err(err).Str("ip", info.IPAddress).Msg("geo lookup failed")
		if s.metrics != nil {
			s.metrics.IngestFailures.WithLabelValues("geo").Inc()
		}
		return
	}
	info.Country = loc.Country
	info.City = loc.City
}

// CleanupRateLimits purges expired window state. Called periodically by
// the scheduler so the per-IP map does not grow unbounded.
func (s *IngestService) CleanupRateLimits(ctx context.Context) (int, error) {
	return s.limits.Cleanup(ctx, s.rateLimit(), s.clock.Now().UTC())
}
