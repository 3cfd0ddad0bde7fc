// Package session reads the signed-in user's session document.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	gocache "github.com/patrickmn/go-cache"
)

// ErrNotFound means no session document exists: the user is signed out.
var ErrNotFound = errors.New("session: not found")

// IsNotFound checks if an error indicates there is no session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// User is the signed-in user.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the stored session document.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

const cacheKey = "session"

// Store reads the session from a local file or a Cloud Storage object. It
// never writes.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	cached    *gocache.Cache
	ttl       time.Duration
	localPath string
	bucket    string
	object    string
}

// New creates a session reader. When bucket is set the session is read from
// Cloud Storage and localPath is ignored. Loaded sessions are reused for ttl; a zero ttl rereads
// every time.
func New(client *storage.Client, bucket, object, localPath string, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		cached:    gocache.New(ttl, time.Minute),
		ttl:       ttl,
		localPath: localPath,
		bucket:    bucket,
		object:    object,
	}
}

// Load returns the current session.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	if v, ok := s.cached.Get(cacheKey); ok {
		return v.(*Session), nil
	}

	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if sess.Token == "" {
		return nil, ErrNotFound
	}

	if s.ttl > 0 {
		s.cached.SetDefault(cacheKey, &sess)
	}
	s.logger.Debug("Session loaded", "user_id", sess.User.ID, "role", sess.User.Role)
	return &sess, nil
}

// Token returns the session token, or "" when signed out.
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, err := s.Load(ctx)
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// Forget drops the cached session so the next Load rereads it.
func (s *Store) Forget() {
	s.cached.Delete(cacheKey)
}

// Source describes where the session is read from.
func (s *Store) Source() string {
	if s.bucket != "" {
		return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
	}
	return s.localPath
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	if s.bucket == "" {
		if s.localPath == "" {
			return nil, ErrNotFound
		}
		data, err := os.ReadFile(s.localPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("read local session: %w", err)
		}
		return data, nil
	}

	if s.client == nil || s.object == "" {
		return nil, ErrNotFound
	}

	var data []byte
	missing := false
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					missing = true
					return retry.Unrecoverable(ErrNotFound)
				}
				return fmt.Errorf("open session object: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read session object: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying session load after error", "attempt", n, "object", s.object, "error", retryErr)
		}),
	)
	if missing {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session after retries: %w", err)
	}
	return data, nil
}
