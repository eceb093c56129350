package cache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populated returns a cache holding one entry for every kind of read.
func populated(t *testing.T) *Cache {
	t.Helper()
	c, _ := newTestCache()
	for _, k := range allKeys() {
		c.SetData(k, k)
	}
	return c
}

func allKeys() []string {
	return []string{
		ClassKey("c1"),
		ClassKey("c2"),
		ClassListKey(0, 0),
		ClassListKey(10, 20),
		AssignmentKey("a1"),
		AssignmentKey("a2"),
		AssignmentsByClassKey("c1", ""),
		AssignmentsByClassKey("c1", "s1"),
		AssignmentsByClassKey("c10", ""),
		AssignmentsByClassKey("c2", ""),
		EvaluationsByAssignmentKey("a1"),
		EvaluationsByAssignmentKey("a2"),
		GradeReportKey("a1"),
		StudentKey("s1"),
		StudentKey("s2"),
		StudentListKey(nil),
		StudentListKey(url.Values{"classId": {"c1"}}),
	}
}

func freshKeys(c *Cache) []string {
	var out []string
	for _, k := range allKeys() {
		if c.IsFresh(k) {
			out = append(out, k)
		}
	}
	return out
}

func without(keys []string, drop ...string) []string {
	gone := make(map[string]bool, len(drop))
	for _, d := range drop {
		gone[d] = true
	}
	var out []string
	for _, k := range keys {
		if !gone[k] {
			out = append(out, k)
		}
	}
	return out
}

func TestInvalidate_ClassUpdateDropsEntityAndList(t *testing.T) {
	c := populated(t)
	require.NoError(t, c.Invalidate(Mutation{Entity: EntityClass, Op: OpUpdate, ID: "c1"}))

	_, ok := c.GetCached(ClassKey("c1"))
	assert.False(t, ok, "a read right after the update must miss")
	_, ok = c.GetCached(ClassListKey(0, 0))
	assert.False(t, ok)

	assert.Equal(t, without(allKeys(), ClassKey("c1"), ClassListKey(0, 0), ClassListKey(10, 20)), freshKeys(c))
}

func TestInvalidate_Table(t *testing.T) {
	tests := []struct {
		name    string
		m       Mutation
		dropped []string
	}{
		{
			name:    "class create",
			m:       Mutation{Entity: EntityClass, Op: OpCreate, ID: "c3"},
			dropped: []string{ClassListKey(0, 0), ClassListKey(10, 20)},
		},
		{
			name: "assignment update",
			m:    Mutation{Entity: EntityAssignment, Op: OpUpdate, ID: "a1", ClassID: "c1"},
			dropped: []string{
				AssignmentKey("a1"), EvaluationsByAssignmentKey("a1"), GradeReportKey("a1"),
				AssignmentsByClassKey("c1", ""), AssignmentsByClassKey("c1", "s1"),
			},
		},
		{
			name: "assignment delete without class",
			m:    Mutation{Entity: EntityAssignment, Op: OpDelete, ID: "a2"},
			dropped: []string{
				AssignmentKey("a2"), EvaluationsByAssignmentKey("a2"),
				AssignmentsByClassKey("c1", ""), AssignmentsByClassKey("c1", "s1"),
				AssignmentsByClassKey("c10", ""), AssignmentsByClassKey("c2", ""),
			},
		},
		{
			name:    "student update without class",
			m:       Mutation{Entity: EntityStudent, Op: OpUpdate, ID: "s2"},
			dropped: []string{StudentKey("s2"), StudentListKey(nil), StudentListKey(url.Values{"classId": {"c1"}})},
		},
		{
			name: "student create in class",
			m:    Mutation{Entity: EntityStudent, Op: OpCreate, ID: "s9", ClassID: "c1"},
			dropped: []string{
				StudentListKey(nil), StudentListKey(url.Values{"classId": {"c1"}}),
				ClassKey("c1"), ClassListKey(0, 0), ClassListKey(10, 20),
			},
		},
		{
			name: "roster add",
			m:    Mutation{Entity: EntityRoster, Op: OpAdd, ClassID: "c2", StudentID: "s1"},
			dropped: []string{
				ClassKey("c2"), ClassListKey(0, 0), ClassListKey(10, 20),
				StudentKey("s1"), StudentListKey(nil), StudentListKey(url.Values{"classId": {"c1"}}),
			},
		},
		{
			name: "evaluation create",
			m:    Mutation{Entity: EntityEvaluation, Op: OpCreate, ID: "e1", AssignmentID: "a1", ClassID: "c1"},
			dropped: []string{
				EvaluationsByAssignmentKey("a1"), AssignmentKey("a1"), GradeReportKey("a1"),
				AssignmentsByClassKey("c1", ""), AssignmentsByClassKey("c1", "s1"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := populated(t)
			require.NoError(t, c.Invalidate(tt.m))
			assert.ElementsMatch(t, without(allKeys(), tt.dropped...), freshKeys(c))
		})
	}
}

func TestInvalidate_RosterRemoveDropsDerivedData(t *testing.T) {
	c := populated(t)
	require.NoError(t, c.Invalidate(Mutation{Entity: EntityRoster, Op: OpRemove, ClassID: "c1", StudentID: "s1"}))

	assert.ElementsMatch(t, []string{
		ClassKey("c2"),
		AssignmentsByClassKey("c10", ""),
		AssignmentsByClassKey("c2", ""),
		StudentKey("s2"),
	}, freshKeys(c))
}

func TestInvalidate_RosterReplaceDropsEveryStudent(t *testing.T) {
	c := populated(t)
	require.NoError(t, c.Invalidate(Mutation{Entity: EntityRoster, Op: OpRemove, ClassID: "c1"}))

	assert.ElementsMatch(t, []string{
		ClassKey("c2"),
		AssignmentsByClassKey("c10", ""),
		AssignmentsByClassKey("c2", ""),
	}, freshKeys(c))

	c = populated(t)
	require.NoError(t, c.Invalidate(Mutation{Entity: EntityRoster, Op: OpAdd, ClassID: "c2"}))
	assert.False(t, c.IsFresh(StudentKey("s1")))
	assert.False(t, c.IsFresh(StudentKey("s2")))
	assert.True(t, c.IsFresh(ClassKey("c1")))
}

func TestInvalidate_DeletesReachDependents(t *testing.T) {
	c := populated(t)
	require.NoError(t, c.Invalidate(Mutation{Entity: EntityClass, Op: OpDelete, ID: "c1"}))
	assert.ElementsMatch(t, []string{
		ClassKey("c2"),
		AssignmentsByClassKey("c10", ""),
		AssignmentsByClassKey("c2", ""),
	}, freshKeys(c))

	c = populated(t)
	require.NoError(t, c.Invalidate(Mutation{Entity: EntityStudent, Op: OpDelete, ID: "s1", ClassID: "c2"}))
	assert.ElementsMatch(t, []string{ClassKey("c1"), StudentKey("s2")}, freshKeys(c))
}

func TestInvalidate_Errors(t *testing.T) {
	c := populated(t)

	err := c.Invalidate(Mutation{Entity: "rubric", Op: OpCreate, ID: "x"})
	assert.ErrorIs(t, err, ErrUnknownMutation)

	err = c.Invalidate(Mutation{Entity: EntityRoster, Op: OpUpdate, ClassID: "c1"})
	assert.ErrorIs(t, err, ErrUnknownMutation)

	assert.Error(t, c.Invalidate(Mutation{Entity: EntityEvaluation, Op: OpDelete, ID: "e1"}))
	assert.Error(t, c.Invalidate(Mutation{Entity: EntityClass, Op: OpUpdate}))

	assert.Len(t, freshKeys(c), len(allKeys()), "failed invalidations touch nothing")
}

func TestInvalidateAll(t *testing.T) {
	c := populated(t)
	require.NoError(t, c.InvalidateAll(
		Mutation{Entity: EntityClass, Op: OpUpdate, ID: "c2"},
		Mutation{Entity: EntityStudent, Op: OpUpdate, ID: "s2"},
	))
	assert.False(t, c.IsFresh(ClassKey("c2")))
	assert.False(t, c.IsFresh(StudentKey("s2")))
	assert.True(t, c.IsFresh(ClassKey("c1")))

	assert.Error(t, c.InvalidateAll(Mutation{Entity: EntityClass, Op: OpUpdate}))
}

func TestEveryGraphEntryResolves(t *testing.T) {
	m := Mutation{ID: "x", ClassID: "c", AssignmentID: "a", StudentID: "s"}
	for entity, ops := range graph {
		for op := range ops {
			m.Entity, m.Op = entity, op
			targets, err := Targets(m)
			require.NoError(t, err, "%s %s", entity, op)
			assert.NotEmpty(t, targets)
		}
	}
}
