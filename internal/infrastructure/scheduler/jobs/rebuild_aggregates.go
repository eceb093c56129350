// Package jobs contains the scheduled maintenance jobs of the worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD AGGREGATES JOB
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentLister pages through every assignment ID.
type AssignmentLister interface {
	ListIDs(ctx context.Context, page shared.Page) ([]string, error)
}

// Recomputer recomputes and stores the aggregate of one assignment.
type Recomputer interface {
	Recompute(ctx context.Context, assignmentID string, strategy grading.Strategy) (float64, error)
}

// RebuildAggregatesConfig contains configuration for the rebuild job.
type RebuildAggregatesConfig struct {
	// PageSize is the number of assignment IDs read per page.
	PageSize int

	// Strategy reduces evaluations to scores.
	Strategy grading.Strategy

	// Retrier wraps each recomputation. Nil means one attempt.
	Retrier *retry.Retrier
}

// DefaultRebuildAggregatesConfig returns default configuration.
func DefaultRebuildAggregatesConfig() RebuildAggregatesConfig {
	return RebuildAggregatesConfig{
		PageSize: 100,
		Strategy: grading.StrategySimpleMedia,
		Retrier:  retry.StoreRetrier(shared.IsRetryable),
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Scanned     int
	Recomputed  int
	Vanished    int
	Failed      int
}

// RebuildAggregatesJob recomputes the aggregate of every assignment. It
// repairs values left stale by writers that bypass the API.
type RebuildAggregatesJob struct {
	assignments AssignmentLister
	recomputer  Recomputer
	logger      *slog.Logger
	config      RebuildAggregatesConfig

	lastStats atomic.Pointer[RebuildStats]
}

// NewRebuildAggregatesJob creates the job.
func NewRebuildAggregatesJob(
	assignments AssignmentLister,
	recomputer Recomputer,
	logger *slog.Logger,
	config RebuildAggregatesConfig,
) *RebuildAggregatesJob {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultRebuildAggregatesConfig()
	if config.PageSize <= 0 {
		config.PageSize = def.PageSize
	}
	if !config.Strategy.IsValid() {
		config.Strategy = def.Strategy
	}
	if config.Retrier == nil {
		config.Retrier = retry.New(retry.WithMaxAttempts(1))
	}

	return &RebuildAggregatesJob{
		assignments: assignments,
		recomputer:  recomputer,
		logger:      logger.With("job", "rebuild_aggregates"),
		config:      config,
	}
}

// Name returns the job name.
func (j *RebuildAggregatesJob) Name() string {
	return "rebuild_aggregates"
}

// Description returns a human-readable description.
func (j *RebuildAggregatesJob) Description() string {
	return "Recomputes the stored aggregate of every assignment"
}

// Run executes the rebuild. A failing assignment does not stop the run;
// the failures are reported together at the end.
func (j *RebuildAggregatesJob) Run(ctx context.Context) error {
	stats := &RebuildStats{StartedAt: time.Now()}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	var failures []error
	page := shared.Page{Limit: j.config.PageSize}
	for {
		ids, err := j.assignments.ListIDs(ctx, page)
		if err != nil {
			return fmt.Errorf("list assignments at offset %d: %w", page.Offset, err)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.Scanned++

			err := j.config.Retrier.Do(ctx, func(ctx context.Context) error {
				_, err := j.recomputer.Recompute(ctx, id, j.config.Strategy)
				return err
			})
			switch {
			case err == nil:
				stats.Recomputed++
			case shared.IsNotFound(err):
				// Deleted since it was listed.
				stats.Vanished++
			default:
				stats.Failed++
				failures = append(failures, fmt.Errorf("assignment %s: %w", id, err))
				j.logger.Warn("recompute failed", "assignment_id", id, "error", err)
			}
		}

		if len(ids) < page.Limit {
			break
		}
		page.Offset += page.Limit
	}

	j.logger.Info("aggregates rebuilt",
		"scanned", stats.Scanned,
		"recomputed", stats.Recomputed,
		"vanished", stats.Vanished,
		"failed", stats.Failed,
	)
	return errors.Join(failures...)
}

// LastStats returns the statistics of the last run, or nil.
func (j *RebuildAggregatesJob) LastStats() *RebuildStats {
	return j.lastStats.Load()
}
