// Package main runs the laundry admin notification client. It keeps one
// real-time connection to the backend, marks cached REST queries stale when
// events arrive and presents toasts, audio cues and view badges.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/api/option"

	"laundry-notifier/config"
	"laundry-notifier/conn"
	"laundry-notifier/metrics"
	"laundry-notifier/present"
	"laundry-notifier/restapi"
	"laundry-notifier/server"
	"laundry-notifier/session"
)

const handshakeTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("NOTIFIER_CONFIG"), "path to a YAML, TOML or JSON config file")
	flag.Parse()

	loadEnvFiles()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Notifier failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Notifier stopped")
}

// loadEnvFiles loads .env.local, then .env. Variables already set win, so
// .env.local takes precedence over .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	storageClient, err := newStorageClient(ctx, cfg.Session)
	if err != nil {
		return err
	}
	if storageClient != nil {
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	}

	sessions := session.New(storageClient, cfg.Session.Bucket, cfg.Session.Object, cfg.Session.LocalPath, cfg.Session.TTL, logger)
	logger.Info("Reading session", "source", sessions.Source())

	display, err := newDisplay(ctx, cfg, logger)
	if err != nil {
		return err
	}
	player, err := newPlayer(cfg, logger)
	if err != nil {
		return err
	}

	p := newPipeline(&pipelineConfig{
		Dialer:          conn.NewWebsocketDialer(handshakeTimeout),
		Tokens:          sessions,
		Fetcher:         restapi.New(cfg.API.BaseURL, cfg.API.Timeout, sessions, logger),
		Display:         display,
		Player:          player,
		Logger:          logger,
		OnProfileUpdate: sessions.Forget,
		Endpoint:        cfg.Endpoint,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxRetries:      cfg.Retry.MaxRetries,
		ToastDuration:   cfg.Toast.Duration,
		CacheTTL:        cfg.Cache.TTL,
	})
	defer p.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// The service itself is a permanent consumer of the connection.
	release := p.conn.Acquire(ctx)
	defer release()

	srv := server.New(&server.Config{
		Connection:     p.conn,
		Router:         p.router,
		Presenter:      p.presenter,
		Queries:        p.store,
		Stale:          p.registry,
		Sessions:       sessions,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         logger,
		IsUnknownQuery: func(err error) bool { return errors.Is(err, restapi.ErrUnknownQuery) },
		IsNotFound:     restapi.IsNotFound,
		IsUnauthorized: restapi.IsUnauthorized,
	})
	return srv.Serve(ctx, cfg.Server.Port)
}

// newStorageClient returns nil when no session bucket is configured.
func newStorageClient(ctx context.Context, cfg config.SessionConfig) (*storage.Client, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, nil
}

func newDisplay(ctx context.Context, cfg config.Config, logger *slog.Logger) (present.Display, error) {
	if cfg.Webhook.URL == "" {
		logger.Info("No webhook configured, notifications go to the log")
		return present.NewLogDisplay(logger), nil
	}
	d := present.NewWebhookDisplay(cfg.Webhook.URL, cfg.Webhook.QueueSize, logger)
	go d.Run(ctx)
	return d, nil
}

func newPlayer(cfg config.Config, logger *slog.Logger) (present.Player, error) {
	if cfg.Audio.Command == "" {
		return present.NopPlayer{}, nil
	}
	p, err := present.NewCommandPlayer(cfg.Audio.Command)
	if err != nil {
		return nil, fmt.Errorf("audio player: %w", err)
	}
	logger.Info("Audio cues enabled", "command", cfg.Audio.Command)
	return p, nil
}
