package routine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSuperset(t *testing.T) {
	r := newRoutine(exercise("A", 2), exercise("B", 2))

	out, s := CreateSuperset(r, "")
	require.Len(t, out.Supersets, 1)
	assert.Equal(t, "Superset A", s.Name)
	assert.Equal(t, r.ID, s.RoutineID)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, r.Supersets, "input routine untouched")
}

func TestAddAndRemoveExerciseFromSuperset(t *testing.T) {
	r := newRoutine(exercise("A", 2), exercise("B", 2), exercise("C", 2))
	r, s := CreateSuperset(r, "Pair")

	r, err := AddExerciseToSuperset(r, "re-A", s.ID)
	require.NoError(t, err)
	r, err = AddExerciseToSuperset(r, "re-C", s.ID)
	require.NoError(t, err)
	r, err = AddExerciseToSuperset(r, "re-B", s.ID)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 1}, r.SupersetMembers(s.ID))

	r, err = RemoveExerciseFromSuperset(r, "re-C")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, r.SupersetMembers(s.ID))
	assert.Equal(t, 0, r.Exercises[0].OrderInSuperset)
	assert.Equal(t, 1, r.Exercises[1].OrderInSuperset)
	assert.Empty(t, r.Exercises[2].SupersetID)
}

func TestAddExerciseToSuperset_MovesBetweenSupersets(t *testing.T) {
	r := newRoutine(
		inSuperset(exercise("A", 1), "S1", 0),
		inSuperset(exercise("B", 1), "S1", 1),
		inSuperset(exercise("C", 1), "S2", 0),
	)
	out, err := AddExerciseToSuperset(r, "re-A", "S2")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, out.SupersetMembers("S1"))
	assert.Equal(t, 0, out.Exercises[1].OrderInSuperset)
	assert.Equal(t, []int{2, 0}, out.SupersetMembers("S2"))
}

func TestSupersetErrors(t *testing.T) {
	r := newRoutine(exercise("A", 1))

	_, err := AddExerciseToSuperset(r, "re-A", "nope")
	assert.ErrorIs(t, err, ErrSupersetNotFound)

	r, s := CreateSuperset(r, "x")
	_, err = AddExerciseToSuperset(r, "missing", s.ID)
	assert.ErrorIs(t, err, ErrExerciseNotFound)

	_, err = UpdateSuperset(r, Superset{ID: "nope"})
	assert.ErrorIs(t, err, ErrSupersetNotFound)

	_, err = DeleteSuperset(r, "nope")
	assert.ErrorIs(t, err, ErrSupersetNotFound)
}

func TestUpdateAndDeleteSuperset(t *testing.T) {
	r := newRoutine(
		inSuperset(exercise("A", 1), "S", 0),
		inSuperset(exercise("B", 1), "S", 1),
	)
	s, _ := r.Superset("S")
	s.RestBetweenSeconds = 30
	s.Name = "Arms"

	out, err := UpdateSuperset(r, s)
	require.NoError(t, err)
	got, ok := out.Superset("S")
	require.True(t, ok)
	assert.Equal(t, 30, got.RestBetweenSeconds)
	assert.Equal(t, "Arms", got.Name)

	out, err = DeleteSuperset(out, "S")
	require.NoError(t, err)
	assert.Empty(t, out.Supersets)
	for _, ex := range out.Exercises {
		assert.Empty(t, ex.SupersetID)
	}
	require.NoError(t, out.Validate())
}
