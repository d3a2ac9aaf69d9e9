package routine

import "fmt"

func intp(v int) *int { return &v }

// fixedSets builds n sets of reps each.
func fixedSets(n, reps int) []*int {
	sets := make([]*int, n)
	for i := range sets {
		sets[i] = intp(reps)
	}
	return sets
}

func exercise(name string, sets int) RoutineExercise {
	return RoutineExercise{
		ID:               "re-" + name,
		Exercise:         Exercise{ID: name, Name: name, Equipment: []string{"handles"}},
		Reps:             10,
		SetReps:          fixedSets(sets, 10),
		WeightPerCableKg: 20,
	}
}

func inSuperset(ex RoutineExercise, supersetID string, order int) RoutineExercise {
	ex.SupersetID = supersetID
	ex.OrderInSuperset = order
	return ex
}

func newRoutine(exercises ...RoutineExercise) *Routine {
	r := &Routine{ID: "r1", Name: "test", Exercises: exercises}
	seen := map[string]bool{}
	for i := range r.Exercises {
		r.Exercises[i].OrderIndex = i
		if id := r.Exercises[i].SupersetID; id != "" && !seen[id] {
			seen[id] = true
			r.Supersets = append(r.Supersets, Superset{ID: id, RoutineID: r.ID, Name: fmt.Sprintf("S-%s", id), RestBetweenSeconds: 15})
		}
	}
	return r
}
