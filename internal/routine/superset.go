package routine

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	supersetColorCount      = 8
	defaultSupersetRestSecs = 10
)

// CreateSuperset appends a new, empty superset to a copy of r.
func CreateSuperset(r *Routine, name string) (*Routine, Superset) {
	out := r.Clone()
	order := 0
	for _, s := range out.Supersets {
		order = max(order, s.OrderIndex+1)
	}
	if name == "" {
		name = fmt.Sprintf("Superset %c", 'A'+rune(len(out.Supersets)%26))
	}
	s := Superset{
		ID:                 uuid.NewString(),
		RoutineID:          out.ID,
		Name:               name,
		ColorIndex:         len(out.Supersets) % supersetColorCount,
		RestBetweenSeconds: defaultSupersetRestSecs,
		OrderIndex:         order,
	}
	out.Supersets = append(out.Supersets, s)
	return out, s
}

// UpdateSuperset replaces the superset with the same id in a copy of r.
func UpdateSuperset(r *Routine, updated Superset) (*Routine, error) {
	out := r.Clone()
	for i := range out.Supersets {
		if out.Supersets[i].ID == updated.ID {
			updated.RoutineID = out.ID
			out.Supersets[i] = updated
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSupersetNotFound, updated.ID)
}

// DeleteSuperset removes a superset; its members become standalone exercises.
func DeleteSuperset(r *Routine, supersetID string) (*Routine, error) {
	out := r.Clone()
	idx := -1
	for i, s := range out.Supersets {
		if s.ID == supersetID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSupersetNotFound, supersetID)
	}
	out.Supersets = append(out.Supersets[:idx], out.Supersets[idx+1:]...)
	for i := range out.Exercises {
		if out.Exercises[i].SupersetID == supersetID {
			out.Exercises[i].SupersetID = ""
			out.Exercises[i].OrderInSuperset = 0
		}
	}
	return out, nil
}

// AddExerciseToSuperset moves the exercise slot into supersetID as its last
// member, leaving any superset it previously belonged to.
func AddExerciseToSuperset(r *Routine, exerciseID, supersetID string) (*Routine, error) {
	if _, ok := r.Superset(supersetID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrSupersetNotFound, supersetID)
	}
	out, err := RemoveExerciseFromSuperset(r, exerciseID)
	if err != nil {
		return nil, err
	}
	idx, _ := out.ExerciseIndex(exerciseID)
	out.Exercises[idx].SupersetID = supersetID
	out.Exercises[idx].OrderInSuperset = len(out.supersetMembers(supersetID)) - 1
	return out, nil
}

// RemoveExerciseFromSuperset detaches the exercise slot from its superset and
// renumbers the remaining members. Removing a standalone exercise is a no-op.
func RemoveExerciseFromSuperset(r *Routine, exerciseID string) (*Routine, error) {
	out := r.Clone()
	idx, ok := out.ExerciseIndex(exerciseID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExerciseNotFound, exerciseID)
	}
	supersetID := out.Exercises[idx].SupersetID
	if supersetID == "" {
		return out, nil
	}
	out.Exercises[idx].SupersetID = ""
	out.Exercises[idx].OrderInSuperset = 0
	renumberSuperset(out, supersetID)
	return out, nil
}

func renumberSuperset(r *Routine, supersetID string) {
	for order, m := range r.supersetMembers(supersetID) {
		r.Exercises[m].OrderInSuperset = order
	}
}
