package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ambrood/sitepulse/app"
	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/query"
	"github.com/ambrood/sitepulse/domain/retention"
	"github.com/ambrood/sitepulse/pkg/respond"
)

// defaultQueryDays is the range when the caller gives no start/end/days.
const defaultQueryDays = 30

type trackRequest struct {
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title"`
	Referrer  string `json:"referrer"`
	SessionID string `json:"session_id"`
}

type trackResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// Track ingests one page view. Storage problems never surface here: the
// recorder swallows them, so a tracked page always gets its 200.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, respond.BadRequest("invalid JSON body", err.Error()))
		return
	}

	in := event.TrackInput{
		PageURL:   req.PageURL,
		PageTitle: req.PageTitle,
		Referrer:  req.Referrer,
		SessionID: req.SessionID,
	}
	meta := app.RequestMeta{
		UserAgent:    r.UserAgent(),
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RealIP:       r.Header.Get("X-Real-IP"),
	}

	sessionID, err := h.ingest.Track(r.Context(), in, meta)
	switch {
	case errors.Is(err, app.ErrRateLimited):
		respond.WriteError(w, respond.TooManyRequests(""))
		return
	case err != nil:
		respond.WriteError(w, respond.BadRequest(err.Error(), "page_url"))
		return
	}

	respond.JSON(w, http.StatusOK, trackResponse{Success: true, SessionID: sessionID})
}

// Analytics answers a dashboard query. Range comes from start/end
// (2006-01-02 or RFC 3339) or the days shorthand, defaulting to the last
// 30 days.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	p, err := h.parseParams(r)
	if err != nil {
		respond.WriteError(w, respond.BadRequest("invalid query parameters", err.Error()))
		return
	}

	result, _ := h.analytics.Query(r.Context(), p)
	respond.JSON(w, http.StatusOK, result)
}

type sweepRequest struct {
	RetentionDays int `json:"retention_days"`
}

// RetentionSweep removes data older than the requested retention period.
func (h *Handler) RetentionSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, respond.BadRequest("invalid JSON body", err.Error()))
		return
	}

	result, err := h.retention.Sweep(r.Context(), req.RetentionDays)
	switch {
	case errors.Is(err, retention.ErrInvalidDays):
		respond.WriteError(w, respond.BadRequest(err.Error(), "retention_days"))
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("retention sweep failed")
		respond.WriteError(w, respond.Internal())
		return
	}

	respond.JSON(w, http.StatusOK, result)
}

// Performance returns the advisory report for a range.
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	p, err := h.parseParams(r)
	if err != nil {
		respond.WriteError(w, respond.BadRequest("invalid query parameters", err.Error()))
		return
	}

	report, err := h.reporter.Report(r.Context(), p)
	if err != nil {
		h.logger.Error().Err(err).Msg("performance report failed")
		respond.WriteError(w, respond.Internal())
		return
	}
	respond.JSON(w, http.StatusOK, report)
}

// Health reports liveness and storage reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbStatus := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = err.Error()
	}

	respond.JSON(w, status, map[string]string{
		"status":   http.StatusText(status),
		"database": dbStatus,
		"version":  h.version,
	})
}

// parseParams builds query params from the URL. Explicit start/end wins
// over the days shorthand.
func (h *Handler) parseParams(r *http.Request) (query.Params, error) {
	q := r.URL.Query()
	now := h.clock.Now().UTC()

	var p query.Params
	switch {
	case q.Get("start") != "" || q.Get("end") != "":
		start, err := parseDate(q.Get("start"))
		if err != nil {
			return query.Params{}, err
		}
		end, err := parseDate(q.Get("end"))
		if err != nil {
			return query.Params{}, err
		}
		if start.IsZero() {
			return query.Params{}, errors.New("start is required when end is given")
		}
		if end.IsZero() {
			end = now
		}
		if !end.After(start) {
			return query.Params{}, errors.New("end must be after start")
		}
		p.Start, p.End = start, end
	case q.Get("days") != "":
		days, err := strconv.Atoi(q.Get("days"))
		if err != nil || days <= 0 {
			return query.Params{}, errors.New("days must be a positive integer")
		}
		p.Start, p.End = now.AddDate(0, 0, -days), now
	default:
		p.Start, p.End = now.AddDate(0, 0, -defaultQueryDays), now
	}

	p.Filters = query.Filters{
		Country: q.Get("country"),
		Device:  q.Get("device"),
		Browser: q.Get("browser"),
		Page:    q.Get("page"),
	}

	if v := q.Get("aggregate"); v != "" {
		aggregate, err := strconv.ParseBool(v)
		if err != nil {
			return query.Params{}, errors.New("aggregate must be a boolean")
		}
		p.AggregateOnly = aggregate
	}
	if v := q.Get("max_records"); v != "" {
		maxRecords, err := strconv.Atoi(v)
		if err != nil || maxRecords <= 0 {
			return query.Params{}, errors.New("max_records must be a positive integer")
		}
		p.MaxRecords = maxRecords
	}

	return p, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Empty input
// is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("dates must be 2006-01-02 or RFC 3339")
	}
	return t.UTC(), nil
}
