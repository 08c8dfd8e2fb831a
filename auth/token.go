// Package auth obtains and caches bearer tokens for the gateway. A Source
// reuses the cached credential while it is valid and coalesces concurrent
// refreshes into a single authentication request.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/singleflight"
)

const (
	tokenPath      = "/token/getToken"
	requestTimeout = 15 * time.Second

	// fallbackTTL bounds a token whose response carried no expiry. The
	// gateway documents tokens as short-lived; five minutes is the
	// conservative horizon.
	fallbackTTL = 5 * time.Minute
)

// Error is returned when the authentication endpoint is unreachable, answers
// with a non-zero result code, or answers success without a token. ResultCode
// and ResultMsg repeat the gateway envelope when one was parsed.
type Error struct {
	ResultCode int
	ResultMsg  string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication: %v", e.Err)
	}
	return fmt.Sprintf("authentication: gateway result %d: %s", e.ResultCode, e.ResultMsg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config carries what a Source needs to exchange credentials for tokens.
type Config struct {
	BaseURL  string
	Username string
	Password string
}

// Source is the credential cache. The zero value is not usable; construct
// with NewSource.
type Source struct {
	cfg    Config
	client *http.Client
	store  Store
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient replaces the HTTP client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// WithStore replaces the in-memory credential store, e.g. with a Redis-backed
// one shared across client instances.
func WithStore(st Store) Option {
	return func(s *Source) { s.store = st }
}

// WithLogger enables debug logging of cache hits and refreshes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithClock replaces the wall clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

func NewSource(cfg Config, opts ...Option) *Source {
	s := &Source{
		cfg:    cfg,
		client: &http.Client{},
		store:  NewMemoryStore(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a valid bearer token, refreshing it from the gateway when the
// cached one is absent or expired. Concurrent callers during a refresh all
// wait for the same in-flight authentication request. A failed refresh leaves
// the stored credential untouched.
func (s *Source) Token(ctx context.Context) (string, error) {
	cred, ok, err := s.store.Load(ctx)
	if err != nil {
		return "", &Error{Err: fmt.Errorf("loading credential: %w", err)}
	}
	if ok && cred.ValidAt(s.now()) {
		return cred.Token, nil
	}

	v, err, _ := s.group.Do("token", func() (interface{}, error) {
		// A waiter that lost the race may enter after the winner already
		// stored a fresh token.
		cred, ok, err := s.store.Load(ctx)
		if err != nil {
			return "", &Error{Err: fmt.Errorf("loading credential: %w", err)}
		}
		if ok && cred.ValidAt(s.now()) {
			return cred.Token, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenEnvelope struct {
	ResultCode int    `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
	Token      string `json:"token"`
	// Expiry is the granted lifetime in seconds; optional.
	Expiry int64 `json:"expiry"`
}

func (s *Source) refresh(ctx context.Context) (string, error) {
	body, err := json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{s.cfg.Username, s.cfg.Password})
	if err != nil {
		return "", &Error{Err: fmt.Errorf("encoding credentials: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Err: fmt.Errorf("building token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &Error{Err: fmt.Errorf("token endpoint: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Err: fmt.Errorf("reading token response: %w", err)}
	}

	var env tokenEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &Error{Err: fmt.Errorf("token endpoint status %d: decoding response: %w", resp.StatusCode, err)}
	}
	if env.ResultCode != 0 {
		return "", &Error{ResultCode: env.ResultCode, ResultMsg: env.ResultMsg}
	}
	if env.Token == "" {
		return "", &Error{Err: fmt.Errorf("gateway returned success without a token")}
	}

	ttl := fallbackTTL
	if env.Expiry > 0 {
		ttl = time.Duration(env.Expiry) * time.Second
	}
	cred := Credential{Token: env.Token, ExpiresAt: s.now().Add(ttl)}
	if err := s.store.Save(ctx, cred); err != nil {
		return "", &Error{Err: fmt.Errorf("saving credential: %w", err)}
	}

	if s.logger != nil {
		s.logger.Debug("token refreshed", slog.Time("expires_at", cred.ExpiresAt))
	}

	return cred.Token, nil
}
