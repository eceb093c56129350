package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
func fail(context.Context) error         { return errDown }
func succeed(context.Context) error      { return nil }

func newTestBreaker(opts ...Option) (*CircuitBreaker, *clock) {
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cb := New("test", opts...)
	cb.now = clk.now
	return cb, clk
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	cb, _ := newTestBreaker(
		WithFailureThreshold(3),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejection(err))
	assert.False(t, called)

	counts := cb.Counts()
	assert.Equal(t, 6, counts.Requests)
	assert.Equal(t, 1, counts.Rejected)
	assert.Equal(t, 5, counts.TotalFailures)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Minute))
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	require.Equal(t, StateOpen, cb.State())

	clk.advance(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

	clk.advance(30 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	cb, clk := newTestBreaker(WithFailureThreshold(1), WithCooldown(time.Minute))
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	clk.advance(time.Minute)

	require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	// The cool-down restarts from the failed probe.
	clk.advance(59 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestBreaker_LimitsConcurrentProbes(t *testing.T) {
	cb, clk := newTestBreaker(WithFailureThreshold(1), WithCooldown(time.Second), WithMaxProbes(1))
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	clk.advance(time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrTooManyRequests)
		return nil
	})
	require.NoError(t, err)
}

func TestBreaker_IgnoresErrorsThatAreNotFailures(t *testing.T) {
	errBadInput := errors.New("bad input")
	cb, _ := newTestBreaker(
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, errBadInput) }),
	)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return errBadInput }), errBadInput)
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 5, cb.Counts().TotalSuccesses)
}

func TestBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(WithFailureThreshold(1))
	require.ErrorIs(t, cb.Execute(context.Background(), fail), errDown)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Counts())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}
