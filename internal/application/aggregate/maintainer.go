// Package aggregate keeps the derived mediaGeral of every assignment equal to
// the reduction of its surviving evaluations.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentWriter persists recomputed aggregates.
type AssignmentWriter interface {
	SetAggregate(ctx context.Context, id string, value float64) error
}

// EvaluationReader reads the evaluations an aggregate is derived from.
type EvaluationReader interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]*evaluation.Evaluation, error)
	ListByAssignmentAndEvaluated(ctx context.Context, assignmentID, studentID string) ([]*evaluation.Evaluation, error)
}

// Locker serializes recomputation of one assignment across processes.
// Acquire blocks until the lock is held or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, resource string) (release func(), err error)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAINTAINER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the maintainer.
type Config struct {
	// LockWait bounds how long a recomputation waits for its assignment lock.
	LockWait time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{LockWait: 15 * time.Second}
}

// Maintainer recomputes and persists assignment aggregates. Recomputations of
// the same assignment never overlap: an in-process keyed lock always applies
// and an optional distributed Locker extends it across replicas. Each
// recomputation reads the evaluation set after taking the lock, so the value
// written last reflects the latest committed evaluations.
type Maintainer struct {
	assignments AssignmentWriter
	evaluations EvaluationReader
	locker      Locker
	keys        *keyedMutex
	config      Config
	log         *logger.Logger
}

// Option customizes a Maintainer.
type Option func(*Maintainer)

// WithLocker adds a distributed lock around every recomputation.
func WithLocker(l Locker) Option {
	return func(m *Maintainer) { m.locker = l }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(m *Maintainer) {
		if cfg.LockWait > 0 {
			m.config = cfg
		}
	}
}

// NewMaintainer creates a Maintainer.
func NewMaintainer(assignments AssignmentWriter, evaluations EvaluationReader, log *logger.Logger, opts ...Option) *Maintainer {
	if log == nil {
		log = logger.Discard()
	}
	m := &Maintainer{
		assignments: assignments,
		evaluations: evaluations,
		keys:        newKeyedMutex(),
		config:      DefaultConfig(),
		log:         log.With(logger.Component("aggregate_maintainer")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Recompute derives the aggregate of one assignment with the given strategy
// and persists it. Zero surviving evaluations yield 0. Malformed payloads
// score 0 and are logged as warnings.
func (m *Maintainer) Recompute(ctx context.Context, assignmentID string, strategy grading.Strategy) (float64, error) {
	if !strategy.IsValid() {
		return 0, shared.Validation("aggregate", "Recompute", fmt.Sprintf("unknown strategy %q", strategy))
	}

	unlock, err := m.lock(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	evals, err := m.evaluations.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return 0, fmt.Errorf("recompute %s: list evaluations: %w", assignmentID, err)
	}

	value := grading.Aggregate(m.scores(assignmentID, evals, strategy))

	if err := m.assignments.SetAggregate(ctx, assignmentID, value); err != nil {
		return 0, fmt.Errorf("recompute %s: persist aggregate: %w", assignmentID, err)
	}

	m.log.Debug("aggregate recomputed",
		logger.AssignmentID(assignmentID),
		logger.Strategy(strategy.String()),
		logger.Int("evaluations", len(evals)),
		logger.Aggregate(value),
	)
	return value, nil
}

// RecomputeMany recomputes each assignment in order and stops at the first
// failure. It returns the IDs that were recomputed.
func (m *Maintainer) RecomputeMany(ctx context.Context, assignmentIDs []string, strategy grading.Strategy) ([]string, error) {
	done := make([]string, 0, len(assignmentIDs))
	for _, id := range assignmentIDs {
		if _, err := m.Recompute(ctx, id, strategy); err != nil {
			return done, err
		}
		done = append(done, id)
	}
	return done, nil
}

// StudentAverage returns the mean score of the evaluations a student received
// under one assignment, or nil when there are none. Nothing is persisted.
func (m *Maintainer) StudentAverage(ctx context.Context, assignmentID, studentID string, strategy grading.Strategy) (*float64, error) {
	evals, err := m.evaluations.ListByAssignmentAndEvaluated(ctx, assignmentID, studentID)
	if err != nil {
		return nil, fmt.Errorf("student average %s/%s: %w", assignmentID, studentID, err)
	}
	if len(evals) == 0 {
		return nil, nil
	}
	value := grading.Aggregate(m.scores(assignmentID, evals, strategy))
	return &value, nil
}

func (m *Maintainer) scores(assignmentID string, evals []*evaluation.Evaluation, strategy grading.Strategy) []float64 {
	scores := make([]float64, 0, len(evals))
	for _, e := range evals {
		score, err := strategy.Score(e.Payload)
		if err != nil {
			m.log.Warn("malformed grade payload scored as zero",
				logger.AssignmentID(assignmentID),
				logger.EvaluationID(e.ID),
				logger.Err(err),
			)
		}
		scores = append(scores, score)
	}
	return scores
}

func (m *Maintainer) lock(ctx context.Context, assignmentID string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, m.config.LockWait)
	defer cancel()

	unlockLocal, err := m.keys.Lock(waitCtx, assignmentID)
	if err != nil {
		return nil, lockErr(ctx, err)
	}
	if m.locker == nil {
		return unlockLocal, nil
	}

	release, err := m.locker.Acquire(waitCtx, "assignment:"+assignmentID)
	if err != nil {
		unlockLocal()
		return nil, lockErr(ctx, err)
	}
	return func() {
		release()
		unlockLocal()
	}, nil
}

// lockErr keeps caller cancellation intact and reports an expired wait as a
// busy lock.
func lockErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.ErrRecomputeLockBusy
	}
	return err
}
