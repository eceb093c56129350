// Package retry runs an operation again after failures that a predicate
// classifies as transient, waiting an exponentially growing, jittered
// delay between attempts.
//
// The client SDK retries idempotent reads with it and the worker retries
// store calls made by its jobs.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// MaxAttempts counts the first call. Default: 3.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt. Default: 100ms.
	InitialDelay time.Duration

	// MaxDelay caps every wait. Default: 30s.
	MaxDelay time.Duration

	// Multiplier grows the wait after each attempt. Default: 2.
	Multiplier float64

	// JitterFactor spreads each wait by up to ±factor of itself. Default: 0.1.
	JitterFactor float64

	// RetryIf classifies errors. Nil retries nothing.
	RetryIf func(error) bool

	// OnRetry observes each retry before its wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns the defaults listed on Config.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// Option configures a Retrier.
type Option func(*Config)

// WithMaxAttempts sets the attempt budget. Values below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithMultiplier sets the backoff growth. Values below one are ignored.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1 {
			c.Multiplier = m
		}
	}
}

// WithJitter sets the jitter factor, between 0 and 1.
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

// WithRetryIf sets the predicate that decides whether an error is retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) {
		c.RetryIf = fn
	}
}

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

// Retrier is safe for concurrent use.
type Retrier struct {
	config Config
}

// New creates a Retrier.
func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Do calls operation until it succeeds, returns an error RetryIf rejects,
// or the attempts run out. The last operation error is returned as is.
// A context cancelled before the first attempt returns ctx.Err(); one
// cancelled later returns the last operation error.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.config.MaxAttempts || r.config.RetryIf == nil || !r.config.RetryIf(err) {
			return err
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-ctx.Done():
			return err
		case <-timer.C:
		}
	}
}

// delay returns the wait after the given failed attempt:
// InitialDelay * Multiplier^(attempt-1), capped and then jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.config.MaxDelay))
	if r.config.JitterFactor > 0 {
		d += d * r.config.JitterFactor * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, r *Retrier, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := operation(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}

// ReadRetrier is tuned for idempotent API reads.
func ReadRetrier(retryIf func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(200*time.Millisecond),
		WithMaxDelay(2*time.Second),
		WithJitter(0.2),
		WithRetryIf(retryIf),
	)
}

// StoreRetrier is tuned for store calls made by background jobs, where one
// transient failure should not fail the whole run.
func StoreRetrier(retryIf func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.05),
		WithRetryIf(retryIf),
	)
}
