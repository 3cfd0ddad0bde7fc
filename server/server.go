// Package server exposes the notification layer over HTTP: status, a live
// event stream, badge and toast actions, and the cached queries.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"laundry-notifier/conn"
	"laundry-notifier/pkg/notifier"
	"laundry-notifier/router"
	"laundry-notifier/session"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "tmpl/*.tmpl"))

// Connection is the shared notification connection.
type Connection interface {
	Status() conn.Status
	Connect(ctx context.Context)
	Acquire(ctx context.Context) (release func())
}

// Router registers event subscriptions.
type Router interface {
	Subscribe(name string, match router.Predicate, h router.Handler) (unsubscribe func())
}

// Presenter holds visible notifications and view badges.
type Presenter interface {
	Visible() []notifier.Notification
	Badges() map[string]int
	ClearBadge(view string)
	Dismiss(id string) bool
}

// Queries returns cached query results, refetching stale ones.
type Queries interface {
	Get(ctx context.Context, name string) (json.RawMessage, error)
}

// StaleLister reports which queries are marked stale.
type StaleLister interface {
	Stale() []string
}

// Sessions loads the signed-in user.
type Sessions interface {
	Load(ctx context.Context) (*session.Session, error)
}

// ErrorClass checks whether an error belongs to a class, such as not found.
type ErrorClass func(error) bool

// Server handles HTTP requests.
type Server struct {
	connection     Connection
	router         Router
	presenter      Presenter
	queries        Queries
	stale          StaleLister
	sessions       Sessions
	metrics        http.Handler
	logger         *slog.Logger
	limiter        *rateLimiter
	isUnknownQuery ErrorClass
	isNotFound     ErrorClass
	isUnauthorized ErrorClass
	heartbeat      time.Duration
}

// Config holds server configuration.
type Config struct {
	Connection     Connection
	Router         Router
	Presenter      Presenter
	Queries        Queries
	Stale          StaleLister
	Sessions       Sessions
	Metrics        http.Handler
	Logger         *slog.Logger
	IsUnknownQuery ErrorClass
	IsNotFound     ErrorClass
	IsUnauthorized ErrorClass
	Heartbeat      time.Duration // SSE keep-alive interval, default 15s
	ReconnectLimit int           // Manual reconnects per client IP per hour, default 5
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	never := func(error) bool { return false }
	s := &Server{
		connection:     cfg.Connection,
		router:         cfg.Router,
		presenter:      cfg.Presenter,
		queries:        cfg.Queries,
		stale:          cfg.Stale,
		sessions:       cfg.Sessions,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		isUnknownQuery: cfg.IsUnknownQuery,
		isNotFound:     cfg.IsNotFound,
		isUnauthorized: cfg.IsUnauthorized,
		heartbeat:      cfg.Heartbeat,
	}
	if s.isUnknownQuery == nil {
		s.isUnknownQuery = never
	}
	if s.isNotFound == nil {
		s.isNotFound = never
	}
	if s.isUnauthorized == nil {
		s.isUnauthorized = never
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 15 * time.Second
	}
	limit := cfg.ReconnectLimit
	if limit <= 0 {
		limit = 5
	}
	s.limiter = newRateLimiter(limit, time.Hour)
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("POST /views/{view}/open", s.handleOpenView)
	mux.HandleFunc("GET /queries/{name}", s.handleQuery)
	mux.HandleFunc("POST /notifications/{id}/dismiss", s.handleDismiss)
	mux.HandleFunc("POST /reconnect", s.handleReconnect)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Serve listens on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0, // /stream responses are long-lived
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

type statusResponse struct {
	User          *session.User           `json:"user,omitempty"`
	Badges        map[string]int          `json:"badges"`
	Connection    conn.Status             `json:"connection"`
	Notifications []notifier.Notification `json:"notifications"`
	Stale         []string                `json:"stale_queries"`
}

func (s *Server) status(ctx context.Context) statusResponse {
	resp := statusResponse{
		Badges:        s.presenter.Badges(),
		Connection:    s.connection.Status(),
		Notifications: s.presenter.Visible(),
		Stale:         s.stale.Stale(),
	}
	if resp.Notifications == nil {
		resp.Notifications = []notifier.Notification{}
	}
	if resp.Stale == nil {
		resp.Stale = []string{}
	}
	if s.sessions != nil {
		if sess, err := s.sessions.Load(ctx); err == nil {
			resp.User = &sess.User
		}
	}
	return resp
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")

	if err := templates.ExecuteTemplate(w, "status.tmpl", s.status(r.Context())); err != nil {
		s.logger.Error("Failed to render template", "template", "status.tmpl", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	s.logger.Info("Manual reconnect requested", "ip", ip, "state", s.connection.Status().State.String())
	s.connection.Connect(r.Context())
	s.writeJSON(w, http.StatusAccepted, s.connection.Status())
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
