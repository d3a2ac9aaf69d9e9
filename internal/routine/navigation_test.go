package routine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(e, s int) Step { return Step{ExerciseIndex: e, SetIndex: s} }

func TestNextStep_SupersetInterleaves(t *testing.T) {
	r := newRoutine(
		inSuperset(exercise("A", 2), "S", 0),
		inSuperset(exercise("B", 2), "S", 1),
		exercise("C", 1),
	)

	cases := []struct {
		from Step
		want Step
	}{
		{step(0, 0), step(1, 0)},
		{step(1, 0), step(0, 1)},
		{step(0, 1), step(1, 1)},
		{step(1, 1), step(2, 0)},
	}
	for _, tc := range cases {
		got, ok := r.NextStep(tc.from)
		require.True(t, ok, "from %+v", tc.from)
		assert.Equal(t, tc.want, got, "from %+v", tc.from)
	}

	_, ok := r.NextStep(step(2, 0))
	assert.False(t, ok, "routine complete after the last set")
}

func TestNextStep_SupersetLastInRoutine(t *testing.T) {
	r := newRoutine(
		inSuperset(exercise("A", 2), "S", 0),
		inSuperset(exercise("B", 2), "S", 1),
	)
	_, ok := r.NextStep(step(1, 1))
	assert.False(t, ok)
}

func TestNextStep_SupersetUsesOrderInSupersetNotListPosition(t *testing.T) {
	r := newRoutine(
		inSuperset(exercise("A", 2), "S", 1),
		inSuperset(exercise("B", 2), "S", 0),
	)
	// B runs first in each cycle
	got, ok := r.NextStep(step(1, 0))
	require.True(t, ok)
	assert.Equal(t, step(0, 0), got)

	got, ok = r.NextStep(step(0, 0))
	require.True(t, ok)
	assert.Equal(t, step(1, 1), got)
}

func TestNextStep_SupersetUnevenSetCounts(t *testing.T) {
	r := newRoutine(
		inSuperset(exercise("A", 3), "S", 0),
		inSuperset(exercise("B", 1), "S", 1),
		exercise("C", 1),
	)
	var visited []Step
	for s, ok := step(0, 0), true; ok; s, ok = r.NextStep(s) {
		visited = append(visited, s)
	}
	assert.Equal(t, []Step{step(0, 0), step(1, 0), step(0, 1), step(0, 2), step(2, 0)}, visited)
}

func TestNextStep_Standalone(t *testing.T) {
	r := newRoutine(exercise("A", 2), exercise("B", 1))

	got, ok := r.NextStep(step(0, 0))
	require.True(t, ok)
	assert.Equal(t, step(0, 1), got)

	got, ok = r.NextStep(step(0, 1))
	require.True(t, ok)
	assert.Equal(t, step(1, 0), got)

	_, ok = r.NextStep(step(1, 0))
	assert.False(t, ok)
}

func TestNextStep_InvalidPosition(t *testing.T) {
	r := newRoutine(exercise("A", 2))
	_, ok := r.NextStep(step(3, 0))
	assert.False(t, ok)
	_, ok = r.NextStep(step(0, 5))
	assert.False(t, ok)
}

func TestPreviousStep_Superset(t *testing.T) {
	r := newRoutine(
		exercise("W", 2),
		inSuperset(exercise("A", 2), "S", 0),
		inSuperset(exercise("B", 2), "S", 1),
	)

	cases := []struct {
		from Step
		want Step
	}{
		{step(2, 1), step(1, 1)},
		{step(1, 1), step(2, 0)},
		{step(2, 0), step(1, 0)},
		{step(1, 0), step(0, 1)},
		{step(0, 1), step(0, 0)},
	}
	for _, tc := range cases {
		got, ok := r.PreviousStep(tc.from)
		require.True(t, ok, "from %+v", tc.from)
		assert.Equal(t, tc.want, got, "from %+v", tc.from)
	}

	_, ok := r.PreviousStep(step(0, 0))
	assert.False(t, ok)
}

func TestPreviousStep_StandaloneClampsToPriorExerciseLastSet(t *testing.T) {
	r := newRoutine(exercise("A", 4), exercise("B", 2))
	got, ok := r.PreviousStep(step(1, 0))
	require.True(t, ok)
	assert.Equal(t, step(0, 3), got)
}

// routineShapes enumerates a spread of superset layouts for the round-trip check.
func routineShapes() map[string]*Routine {
	return map[string]*Routine{
		"standalone": newRoutine(exercise("A", 3), exercise("B", 1), exercise("C", 2)),
		"superset-only": newRoutine(
			inSuperset(exercise("A", 2), "S", 0),
			inSuperset(exercise("B", 2), "S", 1),
		),
		"superset-middle": newRoutine(
			exercise("W", 1),
			inSuperset(exercise("A", 3), "S", 0),
			inSuperset(exercise("B", 3), "S", 1),
			inSuperset(exercise("C", 3), "S", 2),
			exercise("Z", 2),
		),
		"uneven-superset": newRoutine(
			inSuperset(exercise("A", 3), "S", 0),
			inSuperset(exercise("B", 1), "S", 1),
			exercise("C", 2),
		),
		"back-to-back-supersets": newRoutine(
			inSuperset(exercise("A", 2), "S1", 0),
			inSuperset(exercise("B", 3), "S1", 1),
			inSuperset(exercise("C", 2), "S2", 0),
			inSuperset(exercise("D", 2), "S2", 1),
		),
	}
}

func TestNextPrevious_RoundTrip(t *testing.T) {
	for name, r := range routineShapes() {
		t.Run(name, func(t *testing.T) {
			for ei := range r.Exercises {
				for si := 0; si < r.Exercises[ei].SetCount(); si++ {
					from := step(ei, si)
					if next, ok := r.NextStep(from); ok {
						back, ok := r.PreviousStep(next)
						require.True(t, ok, "previous of %+v", next)
						assert.Equal(t, from, back, fmt.Sprintf("next then previous from %+v", from))
					}
					if prev, ok := r.PreviousStep(from); ok {
						fwd, ok := r.NextStep(prev)
						require.True(t, ok, "next of %+v", prev)
						assert.Equal(t, from, fwd, fmt.Sprintf("previous then next from %+v", from))
					}
				}
			}
		})
	}
}

func TestSteps_VisitsEverySetOnce(t *testing.T) {
	for name, r := range routineShapes() {
		t.Run(name, func(t *testing.T) {
			steps := r.Steps()
			assert.Len(t, steps, r.TotalSets())
			seen := map[Step]bool{}
			for _, s := range steps {
				assert.False(t, seen[s], "step %+v visited twice", s)
				seen[s] = true
			}
		})
	}
}
