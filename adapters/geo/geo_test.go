package geo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ambrood/sitepulse/adapters/geo"
)

func TestHTTPLocator_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/203.0.113.7" {
			t.Errorf("path = %q, want /203.0.113.7", r.URL.Path)
		}
		w.Write([]byte(`{"status":"success","country":"Germany","city":"Berlin"}`))
	}))
	defer srv.Close()

	loc, err := geo.NewHTTPLocator(srv.URL, 0).Locate(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.Country != "Germany" || loc.City != "Berlin" {
		t.Errorf("got %+v, want Germany/Berlin", loc)
	}
}

func TestHTTPLocator_SkipsPrivateIPs(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	locator := geo.NewHTTPLocator(srv.URL, 0)
	for _, ip := range []string{"127.0.0.1", "10.0.0.5", "192.168.1.1", ""} {
		loc, err := locator.Locate(context.Background(), ip)
		if err != nil {
			t.Errorf("Locate(%q) error: %v", ip, err)
		}
		if loc.Country != "" || loc.City != "" {
			t.Errorf("Locate(%q) = %+v, want empty", ip, loc)
		}
	}
	if called {
		t.Error("private addresses must not hit the provider")
	}
}

func TestHTTPLocator_ProviderFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "provider fail status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"fail"}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{{{`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := geo.NewHTTPLocator(srv.URL, 0).Locate(context.Background(), "203.0.113.7")
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestHTTPLocator_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := geo.NewHTTPLocator(srv.URL, 20*time.Millisecond).Locate(context.Background(), "203.0.113.7")
	if err == nil {
		t.Error("expected a timeout error")
	}
}

func TestNoop(t *testing.T) {
	loc, err := geo.Noop{}.Locate(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Noop.Locate: %v", err)
	}
	if loc.Country != "" || loc.City != "" {
		t.Errorf("Noop.Locate = %+v, want empty", loc)
	}
}
