// Package event provides the persisted analytics entities and validation.
// All types are immutable value types; mutation happens only in stores.
package event

import (
	"errors"
	"strings"
	"time"
)

// Validation errors surfaced to API callers as 400s.
var (
	ErrEmptyPageURL   = errors.New("page_url must not be empty")
	ErrPageURLTooLong = errors.New("page_url exceeds maximum length")
)

// MaxPageURLLength bounds stored URLs so a hostile client cannot bloat rows.
const MaxPageURLLength = 2048

// Event is an immutable fact row representing one tracked page view,
// including the visitor/device/geo context at the time it happened.
type Event struct {
	ID        string
	PageURL   string
	PageTitle string
	Referrer  string
	UserAgent string
	IPAddress string
	Country   string
	City      string
	Device    string
	Browser   string
	SessionID string
	Timestamp time.Time
}

// PageView is a slim denormalized projection of Event kept so the hot
// aggregation path (counts, group-bys) never scans the wider events table.
type PageView struct {
	ID        string
	PageURL   string
	SessionID string
	Timestamp time.Time
}

// Session is a visitor's continuous browsing interval. Created on the first
// event for a session key, bumped (EndTime, PageViews) on every subsequent
// event, removed only by the retention sweep.
type Session struct {
	SessionID string
	UserAgent string
	IPAddress string
	Country   string
	City      string
	Device    string
	Browser   string
	StartTime time.Time
	EndTime   time.Time
	PageViews int64
}

// TrackInput is the validated ingestion payload.
type TrackInput struct {
	PageURL   string
	PageTitle string
	Referrer  string
	SessionID string
}

// Validate checks the ingestion payload. A failed validation never touches
// storage.
func (in TrackInput) Validate() error {
	if strings.TrimSpace(in.PageURL) == "" {
		return ErrEmptyPageURL
	}
	if len(in.PageURL) > MaxPageURLLength {
		return ErrPageURLTooLong
	}
	return nil
}

// PageViewOf returns the slim projection for an event.
func (e Event) PageViewOf() PageView {
	return PageView{
		ID:        e.ID,
		PageURL:   e.PageURL,
		SessionID: e.SessionID,
		Timestamp: e.Timestamp,
	}
}

// NormalizeReferrer reduces a referrer URL to its hostname and drops
// self-referrals. Internal navigation is noise in referrer stats.
func NormalizeReferrer(referrer, ownHost string) string {
	if referrer == "" {
		return ""
	}
	host := referrer
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || (ownHost != "" && host == strings.ToLower(ownHost)) {
		return ""
	}
	return host
}
