package client

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Board is everything an evaluation screen shows for one assignment.
type Board struct {
	Assignment  *AssignmentDetails
	Class       *Class
	Evaluations []Evaluation
	Report      *GradeReport
}

// EvaluationBoard loads the pieces of a Board concurrently through the
// cache. It fails with the first error.
func (c *Client) EvaluationBoard(ctx context.Context, classID, assignmentID string) (*Board, error) {
	var b Board
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a, err := c.Assignments.Get(ctx, assignmentID)
		if err != nil {
			return fmt.Errorf("assignment: %w", err)
		}
		b.Assignment = a
		return nil
	})
	g.Go(func() error {
		cl, err := c.Classes.Get(ctx, classID)
		if err != nil {
			return fmt.Errorf("class: %w", err)
		}
		b.Class = cl
		return nil
	})
	g.Go(func() error {
		list, err := c.Evaluations.ListByAssignment(ctx, assignmentID)
		if err != nil {
			return fmt.Errorf("evaluations: %w", err)
		}
		b.Evaluations = list
		return nil
	})
	g.Go(func() error {
		r, err := c.Assignments.Report(ctx, assignmentID)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		b.Report = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if b.Assignment.ClassID != classID {
		return nil, fmt.Errorf("client: assignment %s belongs to class %s, not %s", assignmentID, b.Assignment.ClassID, classID)
	}
	return &b, nil
}
