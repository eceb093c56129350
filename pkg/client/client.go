// Package client is a Go SDK for the evaluation platform API.
//
// Reads go through a shared cache (package cache): a fresh entry is served
// without a request and concurrent reads of the same missing entry share
// one request. Every mutation drops the entries it made stale before it
// returns, including when the server reports a partially applied roster
// cascade.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avalia-hub/avalia-hub/pkg/circuitbreaker"
	"github.com/avalia-hub/avalia-hub/pkg/client/cache"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
	"github.com/avalia-hub/avalia-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains client configuration.
type Config struct {
	// BaseURL of the API, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 15 * time.Second,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCache shares a cache between clients or injects one built for tests.
func WithCache(cc *cache.Cache) Option {
	return func(c *Client) {
		if cc != nil {
			c.cache = cc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetrier replaces the retry policy of reads.
func WithRetrier(r *retry.Retrier) Option {
	return func(c *Client) {
		if r != nil {
			c.retrier = r
		}
	}
}

// WithBreaker replaces the circuit breaker guarding every request.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	cache   *cache.Cache
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger

	Classes     *ClassService
	Assignments *AssignmentService
	Students    *StudentService
	Evaluations *EvaluationService
}

// New creates a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: base URL %q needs a scheme and a host", cfg.BaseURL)
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   cache.New(),
		retrier: retry.ReadRetrier(isTransient),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("api_client"))
	if c.breaker == nil {
		c.breaker = circuitbreaker.APIBreaker(isTransient, func(name string, from, to circuitbreaker.State) {
			c.log.Warn("circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
	}

	c.Classes = &ClassService{c: c}
	c.Assignments = &AssignmentService{c: c}
	c.Students = &StudentService{c: c}
	c.Evaluations = &EvaluationService{c: c}
	return c, nil
}

// Cache exposes the read cache, e.g. to subscribe to its events.
func (c *Client) Cache() *cache.Cache { return c.cache }

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string

	// Fields holds per-field validation messages (400).
	Fields map[string]string

	// Cascade is set when a roster cascade stopped part way (409).
	Cascade *CascadeFailure
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// PartialCascade returns the cascade progress carried by err, if any.
func PartialCascade(err error) (*CascadeFailure, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Cascade != nil {
		return apiErr.Cascade, true
	}
	return nil, false
}

// isTransient decides which read failures are retried: network errors and
// 502/503/504 answers.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var cascade CascadeFailure
	if resp.StatusCode == http.StatusConflict && json.Unmarshal(body, &cascade) == nil && cascade.RunID != "" {
		apiErr.Cascade = &cascade
		apiErr.Message = cascade.Error
		return apiErr
	}

	var generic map[string]any
	if json.Unmarshal(body, &generic) == nil {
		if msg, ok := generic["error"].(string); ok {
			apiErr.Message = msg
			return apiErr
		}
		fields := make(map[string]string, len(generic))
		for k, v := range generic {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
		if len(fields) > 0 {
			apiErr.Fields = fields
			apiErr.Message = "validation failed"
			return apiErr
		}
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// send performs one request through the circuit breaker and decodes a
// JSON answer into out.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, query, body, out)
	})
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("client: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("api request failed",
			logger.String("method", method),
			logger.String("path", path),
			logger.Err(err),
		)
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("api request",
		logger.String("method", method),
		logger.String("path", path),
		logger.StatusCode(resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

// get is send for idempotent reads, with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.send(ctx, http.MethodGet, path, query, nil, out)
	})
}

// load reads key through the cache, fetching path on a miss.
func load[T any](ctx context.Context, c *Client, key, path string, query url.Values) (T, error) {
	return cache.NewTyped[T](c.cache).Load(ctx, key, func(ctx context.Context) (T, error) {
		var out T
		err := c.get(ctx, path, query, &out)
		return out, err
	})
}

// invalidate drops what m made stale. A malformed mutation is a bug in this
// package; it is logged and the whole cache is cleared instead.
func (c *Client) invalidate(ms ...cache.Mutation) {
	if err := c.cache.InvalidateAll(ms...); err != nil {
		c.log.Error("cache invalidation failed, clearing cache", logger.Err(err))
		c.cache.ClearAll()
	}
}

func idQuery(name, value string) url.Values {
	return url.Values{name: {value}}
}
