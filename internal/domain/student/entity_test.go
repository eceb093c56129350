package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

func TestNew(t *testing.T) {
	s, err := New(NewParams{ID: "s1", Name: " Ana ", Email: "Ana@Example.com"})
	require.NoError(t, err)

	assert.Equal(t, "Ana", s.Name)
	assert.Equal(t, "ana@example.com", s.Email)
	assert.False(t, s.HasClass())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(NewParams{ID: "s1", Name: "Ana", Email: "not-an-email"})
	assert.True(t, shared.IsValidation(err))

	_, err = New(NewParams{ID: "", Name: "Ana", Email: "ana@example.com"})
	assert.True(t, shared.IsValidation(err))

	_, err = New(NewParams{ID: "s1", Name: "   ", Email: "ana@example.com"})
	assert.True(t, shared.IsValidation(err))
}

func TestClassMembership(t *testing.T) {
	s, err := New(NewParams{ID: "s1", Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	require.NoError(t, s.JoinClass("c1"))
	assert.True(t, s.InClass("c1"))
	assert.False(t, s.InClass("c2"))

	s.LeaveClass()
	assert.Nil(t, s.ClassID)
}
