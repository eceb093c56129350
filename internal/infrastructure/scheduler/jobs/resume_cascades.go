package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/application/saga"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESUME CASCADES JOB
// ══════════════════════════════════════════════════════════════════════════════

// CascadeResumer is the part of saga.RosterCascade the job drives.
type CascadeResumer interface {
	Pending(ctx context.Context) ([]string, error)
	Cursor(ctx context.Context, runID string) (*saga.CascadeCursor, error)
	Resume(ctx context.Context, runID string) (*saga.CascadeResult, error)
}

// ResumeCascadesConfig contains configuration for the resume job.
type ResumeCascadesConfig struct {
	// StaleAfter is how long a cursor still marked running must be idle
	// before the run is taken as abandoned by a crashed process.
	StaleAfter time.Duration

	// MaxRuns bounds the runs resumed per execution. Zero means no bound.
	MaxRuns int
}

// DefaultResumeCascadesConfig returns default configuration.
func DefaultResumeCascadesConfig() ResumeCascadesConfig {
	return ResumeCascadesConfig{
		StaleAfter: 2 * time.Minute,
		MaxRuns:    50,
	}
}

// ResumeCascadesJob resumes roster cascades that stopped part way, so a
// transient store failure does not leave a roster half applied.
type ResumeCascadesJob struct {
	cascade CascadeResumer
	logger  *slog.Logger
	config  ResumeCascadesConfig
	now     func() time.Time
}

// NewResumeCascadesJob creates the job.
func NewResumeCascadesJob(cascade CascadeResumer, logger *slog.Logger, config ResumeCascadesConfig) *ResumeCascadesJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultResumeCascadesConfig().StaleAfter
	}
	return &ResumeCascadesJob{
		cascade: cascade,
		logger:  logger.With("job", "resume_cascades"),
		config:  config,
		now:     time.Now,
	}
}

// Name returns the job name.
func (j *ResumeCascadesJob) Name() string {
	return "resume_cascades"
}

// Description returns a human-readable description.
func (j *ResumeCascadesJob) Description() string {
	return "Resumes roster cascades that stopped at a failed step"
}

// Run resumes every eligible run. Runs failing for a reason a retry cannot
// fix are logged and left for an operator.
func (j *ResumeCascadesJob) Run(ctx context.Context) error {
	ids, err := j.cascade.Pending(ctx)
	if err != nil {
		return fmt.Errorf("list pending cascades: %w", err)
	}

	var resumed, skipped, stuck int
	var failures []error
	for _, runID := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if j.config.MaxRuns > 0 && resumed+len(failures) >= j.config.MaxRuns {
			break
		}

		cursor, err := j.cascade.Cursor(ctx, runID)
		if err != nil {
			failures = append(failures, fmt.Errorf("load cursor %s: %w", runID, err))
			continue
		}
		if !j.eligible(cursor) {
			skipped++
			continue
		}

		result, err := j.cascade.Resume(ctx, runID)
		if err != nil {
			var cascadeErr *saga.CascadeError
			if errors.As(err, &cascadeErr) && !cascadeErr.IsRetryable() {
				stuck++
				j.logger.Error("cascade cannot be resumed",
					"run_id", runID,
					"class_id", cursor.ClassID,
					"step", string(cascadeErr.Step),
					"error", err,
				)
				continue
			}
			failures = append(failures, fmt.Errorf("resume %s: %w", runID, err))
			continue
		}

		resumed++
		j.logger.Info("cascade resumed",
			"run_id", runID,
			"class_id", result.ClassID,
			"removed", len(result.Removed),
			"recomputed", len(result.Recomputed),
		)
	}

	j.logger.Info("pending cascades processed",
		"pending", len(ids),
		"resumed", resumed,
		"skipped", skipped,
		"stuck", stuck,
		"failed", len(failures),
	)
	return errors.Join(failures...)
}

// eligible reports whether the run has stopped. A running cursor may belong
// to a request still in flight and is only taken once it goes stale.
func (j *ResumeCascadesJob) eligible(c *saga.CascadeCursor) bool {
	switch c.Status {
	case saga.StatusFailed:
		return true
	case saga.StatusRunning:
		return j.now().Sub(c.UpdatedAt) >= j.config.StaleAfter
	default:
		return false
	}
}
