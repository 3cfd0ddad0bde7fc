package restapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) {
	return "", errors.New("session unreadable")
}

func TestPath(t *testing.T) {
	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{"orders", "/orders", false},
		{"recentOrders", "/orders/recent", false},
		{"order:O1", "/orders/O1", false},
		{"order:a/b", "/orders/a%2Fb", false},
		{"feedback", "/feedback", false},
		{"feedback:F1", "/feedback/F1", false},
		{"profile", "/profile", false},
		{"branches", "/branches", false},
		{"customers", "/customers", false},
		{"stats", "/stats", false},
		{"services", "/services", false},
		{"order:", "", true},
		{"invoices", "", true},
		{"customer:C1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := Path(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Path(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnknownQuery) {
				t.Errorf("Path(%q) error = %v, want ErrUnknownQuery", tt.query, err)
			}
			if got != tt.want {
				t.Errorf("Path(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestFetchSendsBearerToken(t *testing.T) {
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"O1"}]`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", 5*time.Second, staticTokens("tok-123"), discardLogger())
	got, err := c.Fetch(context.Background(), "recentOrders")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != `[{"id":"O1"}]` {
		t.Errorf("Fetch() = %s", got)
	}
	if auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want bearer token", auth)
	}
	if path != "/api/orders/recent" {
		t.Errorf("path = %q, want /api/orders/recent", path)
	}
}

func TestFetchWithoutToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, staticTokens(""), discardLogger())
	if _, err := c.Fetch(context.Background(), "profile"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := auth.Load(); got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
}

func TestFetchStatusHandling(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantHits     int32
		unauthorized bool
		notFound     bool
		wantErr      bool
	}{
		{"ok", []int{http.StatusOK}, 1, false, false, false},
		{"server error then ok", []int{http.StatusInternalServerError, http.StatusOK}, 2, false, false, false},
		{"unauthorized not retried", []int{http.StatusUnauthorized}, 1, true, false, true},
		{"not found not retried", []int{http.StatusNotFound}, 1, false, true, true},
		{"server error exhausted", []int{http.StatusBadGateway}, 3, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				i := int(hits.Add(1)) - 1
				if i >= len(tt.statuses) {
					i = len(tt.statuses) - 1
				}
				w.WriteHeader(tt.statuses[i])
				_, _ = io.WriteString(w, `{"ok":true}`)
			}))
			defer srv.Close()

			c := New(srv.URL, 5*time.Second, nil, discardLogger())
			_, err := c.Fetch(context.Background(), "order:O1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("requests = %d, want %d", got, tt.wantHits)
			}
			if got := IsUnauthorized(err); got != tt.unauthorized {
				t.Errorf("IsUnauthorized() = %v, want %v", got, tt.unauthorized)
			}
			if got := IsNotFound(err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.notFound)
			}
		})
	}
}

func TestFetchRejectsNonJSON(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "<html>login</html>")
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil, discardLogger())
	if _, err := c.Fetch(context.Background(), "stats"); err == nil {
		t.Fatal("Fetch() of HTML succeeded")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"at limit", `"0123456789abcd"`, false},
		{"over limit", `"0123456789abcde"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := New(srv.URL, 5*time.Second, nil, discardLogger())
			c.maxBody = 16
			got, err := c.Fetch(context.Background(), "stats")
			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Fatalf("Fetch() error = %v, want ErrTooLarge", err)
				}
				if n := hits.Load(); n != 1 {
					t.Errorf("requests = %d, want 1", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if string(got) != tt.body {
				t.Errorf("Fetch() = %s, want %s", got, tt.body)
			}
		})
	}
}

func TestFetchUnknownQuery(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second, nil, discardLogger())
	if _, err := c.Fetch(context.Background(), "nope"); !errors.Is(err, ErrUnknownQuery) {
		t.Errorf("Fetch() error = %v, want ErrUnknownQuery", err)
	}
}

func TestFetchTokenFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, failingTokens{}, discardLogger())
	if _, err := c.Fetch(context.Background(), "profile"); err == nil {
		t.Fatal("Fetch() with unreadable session succeeded")
	}
	if got := hits.Load(); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}
