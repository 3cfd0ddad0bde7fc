// Package config loads notifier settings from an optional file and NOTIFIER_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSessionPath is read when no session bucket or path is configured.
const DefaultSessionPath = "session.json"

// Config is the full notifier configuration.
type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Retry    RetryConfig   `mapstructure:"retry"`
	Toast    ToastConfig   `mapstructure:"toast"`
	API      APIConfig     `mapstructure:"api"`
	Cache    CacheConfig   `mapstructure:"cache"`
	Session  SessionConfig `mapstructure:"session"`
	Server   ServerConfig  `mapstructure:"server"`
	Audio    AudioConfig   `mapstructure:"audio"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
	Log      LogConfig     `mapstructure:"log"`
}

// RetryConfig bounds reconnect attempts after the connection drops.
type RetryConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// ToastConfig controls how long text notifications stay visible.
type ToastConfig struct {
	Duration time.Duration `mapstructure:"duration"`
}

// APIConfig points at the REST API used to refetch stale queries.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig sets how long fetched query results are kept without a stale marker.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SessionConfig selects where the session document is read from. A bucket
// wins over a local path; with neither set the session is read from
// DefaultSessionPath.
type SessionConfig struct {
	LocalPath       string        `mapstructure:"local_path"`
	Bucket          string        `mapstructure:"bucket"`
	Object          string        `mapstructure:"object"`
	CredentialsJSON string        `mapstructure:"credentials_json"`
	TTL             time.Duration `mapstructure:"ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// AudioConfig holds the command run for audio cues. {cue} is replaced with
// the cue name. Empty disables audio.
type AudioConfig struct {
	Command string `mapstructure:"command"`
}

// WebhookConfig enables forwarding notifications to a webhook when URL is set.
type WebhookConfig struct {
	URL       string `mapstructure:"url"`
	QueueSize int    `mapstructure:"queue_size"`
}

// LogConfig holds the slog level: debug, info, warn or error.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads the config file at path, if any, and applies environment
// overrides such as NOTIFIER_RETRY_MAX_RETRIES.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("notifier")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by hosting platforms and the GCP tooling.
	if err := v.BindEnv("server.port", "NOTIFIER_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("session.credentials_json", "NOTIFIER_SESSION_CREDENTIALS_JSON", "GOOGLE_CREDENTIALS_JSON"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	switch {
	case cfg.Session.Bucket != "":
		cfg.Session.LocalPath = ""
	case cfg.Session.LocalPath == "":
		cfg.Session.LocalPath = DefaultSessionPath
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "ws://localhost:8080")
	v.SetDefault("retry.base_delay", 2*time.Second)
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("toast.duration", 4*time.Second)
	v.SetDefault("api.base_url", "http://localhost:8080/api")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("session.local_path", "")
	v.SetDefault("session.bucket", "")
	v.SetDefault("session.object", "session.json")
	v.SetDefault("session.credentials_json", "")
	v.SetDefault("session.ttl", 30*time.Second)
	v.SetDefault("server.port", "8081")
	v.SetDefault("audio.command", "")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.queue_size", 64)
	v.SetDefault("log.level", "info")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got %q", c.Endpoint)
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive")
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1")
	}
	if c.Toast.Duration <= 0 {
		return fmt.Errorf("toast.duration must be positive")
	}
	if err := httpURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if c.Session.LocalPath == "" && c.Session.Bucket == "" {
		return fmt.Errorf("one of session.local_path or session.bucket is required")
	}
	if c.Session.Bucket != "" && c.Session.Object == "" {
		return fmt.Errorf("session.object is required with session.bucket")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Webhook.URL != "" {
		if err := httpURL("webhook.url", c.Webhook.URL); err != nil {
			return err
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the configured slog level.
func (c Config) LogLevel() slog.Level {
	l, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}

func httpURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	return nil
}
