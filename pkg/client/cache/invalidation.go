package cache

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// INVALIDATION GRAPH
// Which cached reads a mutation makes stale. Derived data counts: an
// evaluation change moves the assignment aggregate, and a roster removal
// deletes evaluations across the class.
// ══════════════════════════════════════════════════════════════════════════════

// Entity is the kind of thing a mutation changed.
type Entity string

const (
	EntityClass      Entity = "class"
	EntityAssignment Entity = "assignment"
	EntityStudent    Entity = "student"
	EntityRoster     Entity = "roster"
	EntityEvaluation Entity = "evaluation"
)

// Op is the mutation performed.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// Mutation describes a completed (or partially applied) write.
type Mutation struct {
	Entity Entity
	Op     Op

	// ID is the mutated entity. Unused for roster mutations.
	ID string

	// ClassID is the class the entity belongs to, if known.
	ClassID string

	// AssignmentID scopes evaluation mutations.
	AssignmentID string

	// StudentID names the student of a roster mutation.
	StudentID string
}

// Target is one key, or every key with the given prefix.
type Target struct {
	Key    string
	Prefix bool
}

func exact(key string) Target  { return Target{Key: key} }
func prefix(key string) Target { return Target{Key: key, Prefix: true} }

// assignmentsOfClass matches the class-wide list and its per-student views.
// An unknown class matches every class.
func assignmentsOfClass(classID string) []Target {
	if classID == "" {
		return []Target{prefix(PrefixAssignmentsByClass)}
	}
	key := AssignmentsByClassKey(classID, "")
	return []Target{exact(key), prefix(key + ":")}
}

// ErrUnknownMutation is returned for an (entity, op) pair outside the graph.
var ErrUnknownMutation = errors.New("cache: unknown mutation")

type rule func(m Mutation) ([]Target, error)

var graph = map[Entity]map[Op]rule{
	EntityClass: {
		OpCreate: classChanged,
		OpUpdate: classChanged,
		OpDelete: classDeleted,
	},
	EntityAssignment: {
		OpCreate: assignmentChanged,
		OpUpdate: assignmentChanged,
		OpDelete: assignmentChanged,
	},
	EntityStudent: {
		OpCreate: studentChanged,
		OpUpdate: studentChanged,
		OpDelete: studentDeleted,
	},
	EntityRoster: {
		OpAdd:    rosterAdded,
		OpRemove: rosterRemoved,
	},
	EntityEvaluation: {
		OpCreate: evaluationChanged,
		OpUpdate: evaluationChanged,
		OpDelete: evaluationChanged,
	},
}

func need(m Mutation, field, value string) error {
	if value == "" {
		return fmt.Errorf("cache: %s %s mutation needs %s", m.Entity, m.Op, field)
	}
	return nil
}

func classChanged(m Mutation) ([]Target, error) {
	if err := need(m, "ID", m.ID); err != nil {
		return nil, err
	}
	return []Target{exact(ClassKey(m.ID)), prefix(PrefixClassList)}, nil
}

// classDeleted: the store drops the class's assignments with their
// evaluations and leaves its students without a class.
func classDeleted(m Mutation) ([]Target, error) {
	targets, err := classChanged(m)
	if err != nil {
		return nil, err
	}
	targets = append(targets, assignmentsOfClass(m.ID)...)
	return append(targets,
		prefix(PrefixAssignment),
		prefix(PrefixEvaluationsByAssignment),
		prefix(PrefixGradeReport),
		prefix(PrefixStudent),
		prefix(PrefixStudentList),
	), nil
}

func assignmentChanged(m Mutation) ([]Target, error) {
	if err := need(m, "ID", m.ID); err != nil {
		return nil, err
	}
	targets := []Target{
		exact(AssignmentKey(m.ID)),
		exact(EvaluationsByAssignmentKey(m.ID)),
		exact(GradeReportKey(m.ID)),
	}
	return append(targets, assignmentsOfClass(m.ClassID)...), nil
}

func studentChanged(m Mutation) ([]Target, error) {
	if err := need(m, "ID", m.ID); err != nil {
		return nil, err
	}
	targets := []Target{exact(StudentKey(m.ID)), prefix(PrefixStudentList)}
	if m.ClassID != "" {
		targets = append(targets, exact(ClassKey(m.ClassID)), prefix(PrefixClassList))
	}
	return targets, nil
}

// studentDeleted: deleting a student removes every evaluation they wrote
// or received, so any assignment may have a new aggregate.
func studentDeleted(m Mutation) ([]Target, error) {
	targets, err := studentChanged(m)
	if err != nil {
		return nil, err
	}
	return append(targets,
		prefix(PrefixAssignment),
		prefix(PrefixAssignmentsByClass),
		prefix(PrefixEvaluationsByAssignment),
		prefix(PrefixGradeReport),
	), nil
}

func rosterAdded(m Mutation) ([]Target, error) {
	if err := need(m, "ClassID", m.ClassID); err != nil {
		return nil, err
	}
	targets := []Target{exact(ClassKey(m.ClassID)), prefix(PrefixClassList), prefix(PrefixStudentList)}
	// Without a student the whole roster changed and any cached student may
	// carry a stale classId.
	if m.StudentID != "" {
		targets = append(targets, exact(StudentKey(m.StudentID)))
	} else {
		targets = append(targets, prefix(PrefixStudent))
	}
	return targets, nil
}

// rosterRemoved: the cascade deletes the student's evaluations under every
// assignment of the class and recomputes them.
func rosterRemoved(m Mutation) ([]Target, error) {
	targets, err := rosterAdded(m)
	if err != nil {
		return nil, err
	}
	targets = append(targets, assignmentsOfClass(m.ClassID)...)
	return append(targets,
		prefix(PrefixAssignment),
		prefix(PrefixEvaluationsByAssignment),
		prefix(PrefixGradeReport),
	), nil
}

func evaluationChanged(m Mutation) ([]Target, error) {
	if err := need(m, "AssignmentID", m.AssignmentID); err != nil {
		return nil, err
	}
	targets := []Target{
		exact(EvaluationsByAssignmentKey(m.AssignmentID)),
		exact(AssignmentKey(m.AssignmentID)),
		exact(GradeReportKey(m.AssignmentID)),
	}
	return append(targets, assignmentsOfClass(m.ClassID)...), nil
}

// Targets returns what m invalidates.
func Targets(m Mutation) ([]Target, error) {
	ops, ok := graph[m.Entity]
	if !ok {
		return nil, fmt.Errorf("%w: entity %q", ErrUnknownMutation, m.Entity)
	}
	r, ok := ops[m.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownMutation, m.Entity, m.Op)
	}
	return r(m)
}

// Invalidate drops everything m makes stale in one atomic step.
func (c *Cache) Invalidate(m Mutation) error {
	targets, err := Targets(m)
	if err != nil {
		return err
	}
	c.ClearTargets(targets...)
	return nil
}

// InvalidateAll applies several mutations in one atomic step.
func (c *Cache) InvalidateAll(ms ...Mutation) error {
	var all []Target
	for _, m := range ms {
		targets, err := Targets(m)
		if err != nil {
			return err
		}
		all = append(all, targets...)
	}
	c.ClearTargets(all...)
	return nil
}
