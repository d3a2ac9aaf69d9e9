package routine

import "sort"

// Step addresses one set of one exercise in a routine.
type Step struct {
	ExerciseIndex int
	SetIndex      int
}

// supersetMembers returns the routine indices of the exercises in superset id,
// ordered by OrderInSuperset (routine order breaks ties).
func (r *Routine) supersetMembers(id string) []int {
	var members []int
	for i, ex := range r.Exercises {
		if ex.SupersetID == id {
			members = append(members, i)
		}
	}
	sort.SliceStable(members, func(a, b int) bool {
		return r.Exercises[members[a]].OrderInSuperset < r.Exercises[members[b]].OrderInSuperset
	})
	return members
}

// SupersetMembers is the exported form of supersetMembers.
func (r *Routine) SupersetMembers(id string) []int {
	return r.supersetMembers(id)
}

func indexOf(members []int, exerciseIndex int) int {
	for i, m := range members {
		if m == exerciseIndex {
			return i
		}
	}
	return -1
}

// entryStep is where navigation lands when it arrives at exerciseIndex from
// before: the first set of the exercise, or the first step of its superset.
func (r *Routine) entryStep(exerciseIndex int) Step {
	ex := &r.Exercises[exerciseIndex]
	if ex.SupersetID != "" {
		if members := r.supersetMembers(ex.SupersetID); len(members) > 0 {
			return Step{ExerciseIndex: members[0], SetIndex: 0}
		}
	}
	return Step{ExerciseIndex: exerciseIndex, SetIndex: 0}
}

// terminalStep is where navigation lands when it arrives at exerciseIndex from
// after: the last set of the exercise, or the last step of its superset.
func (r *Routine) terminalStep(exerciseIndex int) Step {
	ex := &r.Exercises[exerciseIndex]
	if ex.SupersetID != "" {
		members := r.supersetMembers(ex.SupersetID)
		lastSet := -1
		for _, m := range members {
			lastSet = max(lastSet, r.Exercises[m].SetCount()-1)
		}
		for i := len(members) - 1; i >= 0; i-- {
			if r.Exercises[members[i]].SetCount() > lastSet {
				return Step{ExerciseIndex: members[i], SetIndex: lastSet}
			}
		}
	}
	return Step{ExerciseIndex: exerciseIndex, SetIndex: ex.SetCount() - 1}
}

// NextStep returns the step after from, or false when the routine is complete.
//
// Inside a superset the current set-cycle is exhausted first (the next member
// with a set at the same index), then the set index advances and the
// superset is scanned again from its first member. When no member has a set
// at the new index the superset is done and navigation moves to the exercise
// after the superset's highest routine-index member.
func (r *Routine) NextStep(from Step) (Step, bool) {
	if !r.Contains(from) {
		return Step{}, false
	}
	ex := &r.Exercises[from.ExerciseIndex]

	if ex.SupersetID != "" {
		members := r.supersetMembers(ex.SupersetID)
		pos := indexOf(members, from.ExerciseIndex)

		for _, m := range members[pos+1:] {
			if r.Exercises[m].SetCount() > from.SetIndex {
				return Step{ExerciseIndex: m, SetIndex: from.SetIndex}, true
			}
		}

		nextSet := from.SetIndex + 1
		for _, m := range members {
			if r.Exercises[m].SetCount() > nextSet {
				return Step{ExerciseIndex: m, SetIndex: nextSet}, true
			}
		}

		highest := members[0]
		for _, m := range members {
			highest = max(highest, m)
		}
		if highest+1 < len(r.Exercises) {
			return r.entryStep(highest + 1), true
		}
		return Step{}, false
	}

	if from.SetIndex+1 < ex.SetCount() {
		return Step{ExerciseIndex: from.ExerciseIndex, SetIndex: from.SetIndex + 1}, true
	}
	if from.ExerciseIndex+1 < len(r.Exercises) {
		return r.entryStep(from.ExerciseIndex + 1), true
	}
	return Step{}, false
}

// PreviousStep mirrors NextStep: scan backward within the set-cycle, then the
// prior set-cycle from the superset's last member backward, then fall to the
// exercise before the superset's lowest routine-index member.
func (r *Routine) PreviousStep(from Step) (Step, bool) {
	if !r.Contains(from) {
		return Step{}, false
	}
	ex := &r.Exercises[from.ExerciseIndex]

	if ex.SupersetID != "" {
		members := r.supersetMembers(ex.SupersetID)
		pos := indexOf(members, from.ExerciseIndex)

		for i := pos - 1; i >= 0; i-- {
			if r.Exercises[members[i]].SetCount() > from.SetIndex {
				return Step{ExerciseIndex: members[i], SetIndex: from.SetIndex}, true
			}
		}

		if from.SetIndex > 0 {
			prevSet := from.SetIndex - 1
			for i := len(members) - 1; i >= 0; i-- {
				if r.Exercises[members[i]].SetCount() > prevSet {
					return Step{ExerciseIndex: members[i], SetIndex: prevSet}, true
				}
			}
		}

		lowest := members[0]
		for _, m := range members {
			lowest = min(lowest, m)
		}
		if lowest > 0 {
			return r.terminalStep(lowest - 1), true
		}
		return Step{}, false
	}

	if from.SetIndex > 0 {
		return Step{ExerciseIndex: from.ExerciseIndex, SetIndex: from.SetIndex - 1}, true
	}
	if from.ExerciseIndex > 0 {
		return r.terminalStep(from.ExerciseIndex - 1), true
	}
	return Step{}, false
}

// Steps lists the whole routine in navigation order starting at the first
// exercise's entry step.
func (r *Routine) Steps() []Step {
	if len(r.Exercises) == 0 {
		return nil
	}
	var steps []Step
	seen := make(map[Step]bool)
	step, ok := r.entryStep(0), true
	for ok && !seen[step] {
		seen[step] = true
		steps = append(steps, step)
		step, ok = r.NextStep(step)
	}
	return steps
}
