// Package geo provides GeoLocator implementations.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ambrood/sitepulse/domain/visitor"
	"github.com/ambrood/sitepulse/ports"
)

// DefaultTimeout bounds a lookup so a slow provider cannot hold a request
// goroutine.
const DefaultTimeout = 3 * time.Second

// HTTPLocator queries an ip-api style JSON endpoint:
// GET {baseURL}/{ip} -> {"status":"success","country":"...","city":"..."}.
type HTTPLocator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLocator creates a locator against the given provider base URL.
// A zero timeout uses DefaultTimeout.
func NewHTTPLocator(baseURL string, timeout time.Duration) *HTTPLocator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPLocator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
}

// Locate resolves an address. Private and loopback addresses short-circuit
// to an empty location without a network call.
func (l *HTTPLocator) Locate(ctx context.Context, ip string) (ports.Location, error) {
	if visitor.IsPrivateIP(ip) {
		return ports.Location{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return ports.Location{}, fmt.Errorf("build geo request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return ports.Location{}, fmt.Errorf("geo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.Location{}, fmt.Errorf("geo lookup: unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ports.Location{}, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return ports.Location{}, fmt.Errorf("geo lookup: provider status %q", body.Status)
	}

	return ports.Location{Country: body.Country, City: body.City}, nil
}

// Noop never resolves anything. Used when geo lookups are disabled.
type Noop struct{}

// Locate returns an empty location.
func (Noop) Locate(ctx context.Context, ip string) (ports.Location, error) {
	return ports.Location{}, nil
}

// Ensure interface compliance.
var (
	_ ports.GeoLocator = (*HTTPLocator)(nil)
	_ ports.GeoLocator = Noop{}
)
