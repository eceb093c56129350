// Package command contains write operations (CQRS - Commands).
//
// Every command that changes evaluations, directly or through a roster
// change, recomputes the affected assignment aggregates before it returns.
package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Recomputer recomputes and persists the aggregate of one assignment.
type Recomputer interface {
	Recompute(ctx context.Context, assignmentID string, strategy grading.Strategy) (float64, error)
	RecomputeMany(ctx context.Context, assignmentIDs []string, strategy grading.Strategy) ([]string, error)
}

// RosterCascade changes class rosters and cleans up the evaluations a
// departing student leaves behind.
type RosterCascade interface {
	RemoveStudent(ctx context.Context, classID, studentID string) (*saga.CascadeResult, error)
	ApplyRoster(ctx context.Context, classID string, target []string) (*saga.CascadeResult, error)
	Resume(ctx context.Context, runID string) (*saga.CascadeResult, error)
	Strategy() grading.Strategy
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// pickID returns the requested ID or a generated one.
func pickID(requested string, gen IDGenerator) string {
	if requested != "" {
		return requested
	}
	if gen == nil {
		gen = UUIDGenerator{}
	}
	return gen.NewID()
}
