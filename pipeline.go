package main

import (
	"log/slog"
	"time"

	"github.com/juju/clock"

	"laundry-notifier/cache"
	"laundry-notifier/conn"
	"laundry-notifier/pkg/notifier"
	"laundry-notifier/present"
	"laundry-notifier/router"
)

// pipeline is the connection, the router and the two consumers wired together.
type pipeline struct {
	router      *router.Router
	registry    *cache.Registry
	store       *cache.Store
	presenter   *present.Presenter
	conn        *conn.Manager
	unsubscribe []func()
}

type pipelineConfig struct {
	Dialer          conn.Dialer
	Clock           clock.Clock
	Tokens          conn.TokenSource
	Fetcher         cache.Fetcher
	Display         present.Display
	Player          present.Player
	Logger          *slog.Logger
	OnProfileUpdate func()
	Endpoint        string
	BaseDelay       time.Duration
	MaxRetries      int
	ToastDuration   time.Duration
	CacheTTL        time.Duration
}

func newPipeline(cfg *pipelineConfig) *pipeline {
	logger := cfg.Logger
	r := router.New(logger)
	registry := cache.NewRegistry()
	bridge := cache.NewBridge(registry, logger)
	presenter := present.New(&present.Config{
		Display:  cfg.Display,
		Player:   cfg.Player,
		Clock:    cfg.Clock,
		Logger:   logger,
		Duration: cfg.ToastDuration,
	})

	p := &pipeline{
		router:    r,
		registry:  registry,
		store:     cache.NewStore(cfg.Fetcher, registry, cfg.CacheTTL, logger),
		presenter: presenter,
	}

	// Invalidate before presenting so a toast never links to a stale view.
	p.unsubscribe = append(p.unsubscribe,
		r.Subscribe("cache", router.AnyKind, bridge.Handle),
		r.Subscribe("presenter", router.AnyKind, presenter.Handle),
	)
	if cfg.OnProfileUpdate != nil {
		p.unsubscribe = append(p.unsubscribe,
			r.Subscribe("session", router.Kinds(notifier.KindProfileUpdate), func(notifier.Event) error {
				cfg.OnProfileUpdate()
				return nil
			}))
	}

	p.conn = conn.New(&conn.Config{
		Dialer:     cfg.Dialer,
		Clock:      cfg.Clock,
		Tokens:     cfg.Tokens,
		Logger:     logger,
		OnFrame:    r.OnFrame,
		OnGiveUp:   presenter.Unavailable,
		Endpoint:   cfg.Endpoint,
		BaseDelay:  cfg.BaseDelay,
		MaxRetries: cfg.MaxRetries,
	})
	return p
}

// close tears the connection down first so no frame arrives mid-shutdown.
func (p *pipeline) close() {
	p.conn.Teardown()
	for _, unsubscribe := range p.unsubscribe {
		unsubscribe()
	}
	p.presenter.Close()
}
