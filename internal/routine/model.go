// Package routine holds the durable workout plan: routines, their exercises
// and supersets, plus the pure algorithms over them (per-set targets,
// superset-aware navigation and superset editing).
package routine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	ErrUnknownSuperset  = errors.New("exercise references unknown superset")
	ErrSupersetNotFound = errors.New("superset not found")
	ErrExerciseNotFound = errors.New("exercise not found")
)

// ProgramMode is the resistance profile the machine applies.
type ProgramMode int

const (
	ProgramOldSchool ProgramMode = iota
	ProgramPump
	ProgramTUT
	ProgramTUTBeast
	ProgramEccentricOnly
	ProgramEcho
)

var programModeNames = map[ProgramMode]string{
	ProgramOldSchool:     "old_school",
	ProgramPump:          "pump",
	ProgramTUT:           "tut",
	ProgramTUTBeast:      "tut_beast",
	ProgramEccentricOnly: "eccentric_only",
	ProgramEcho:          "echo",
}

func (m ProgramMode) String() string {
	if name, ok := programModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("program_mode(%d)", int(m))
}

func (m ProgramMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ProgramMode) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for mode, name := range programModeNames {
		if name == s {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown program mode %q", s)
}

// EchoLevel is the assistance level used by the Echo program.
type EchoLevel int

const (
	EchoHard EchoLevel = iota
	EchoHarder
	EchoHardest
	EchoEpic
)

var echoLevelNames = map[EchoLevel]string{
	EchoHard:    "hard",
	EchoHarder:  "harder",
	EchoHardest: "hardest",
	EchoEpic:    "epic",
}

func (l EchoLevel) String() string {
	if name, ok := echoLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("echo_level(%d)", int(l))
}

func (l EchoLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *EchoLevel) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for level, name := range echoLevelNames {
		if name == s {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("unknown echo level %q", s)
}

// cableEquipment lists equipment tags that need the machine's cables.
var cableEquipment = map[string]bool{
	"cable":        true,
	"cables":       true,
	"handles":      true,
	"bar":          true,
	"long_bar":     true,
	"short_bar":    true,
	"rope":         true,
	"ankle_straps": true,
	"belt":         true,
	"straps":       true,
}

// Exercise is the catalogue entry a RoutineExercise points at.
type Exercise struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	MuscleGroups []string `yaml:"muscle_groups,omitempty" json:"muscle_groups,omitempty"`
	Equipment    []string `yaml:"equipment,omitempty" json:"equipment,omitempty"`
}

// IsBodyweight reports whether the exercise has no cable-requiring equipment.
func (e Exercise) IsBodyweight() bool {
	for _, tag := range e.Equipment {
		if cableEquipment[strings.ToLower(strings.TrimSpace(tag))] {
			return false
		}
	}
	return true
}

// RoutineExercise is one exercise slot in a routine.
//
// SetReps holds per-set target reps; a nil entry means AMRAP for that set.
// When SetReps is empty the exercise has a single set of Reps.
// SetWeightsKg holds per-set weight overrides; missing or non-positive
// entries fall back to WeightPerCableKg.
type RoutineExercise struct {
	ID                    string      `yaml:"id,omitempty" json:"id"`
	Exercise              Exercise    `yaml:"exercise" json:"exercise"`
	OrderIndex            int         `yaml:"-" json:"order_index"`
	Reps                  int         `yaml:"reps,omitempty" json:"reps"`
	SetReps               []*int      `yaml:"sets,omitempty" json:"set_reps,omitempty"`
	WeightPerCableKg      float64     `yaml:"weight_kg,omitempty" json:"weight_per_cable_kg"`
	SetWeightsKg          []float64   `yaml:"set_weights_kg,omitempty" json:"set_weights_kg,omitempty"`
	ProgramMode           ProgramMode `yaml:"mode,omitempty" json:"program_mode"`
	EchoLevel             EchoLevel   `yaml:"echo_level,omitempty" json:"echo_level"`
	EccentricLoadPercent  int         `yaml:"eccentric_load_percent,omitempty" json:"eccentric_load_percent"`
	ProgressionKg         float64     `yaml:"progression_kg,omitempty" json:"progression_kg"`
	IsAMRAP               bool        `yaml:"amrap,omitempty" json:"is_amrap"`
	RestSeconds           int         `yaml:"rest_seconds,omitempty" json:"rest_seconds"`
	SupersetID            string      `yaml:"superset,omitempty" json:"superset_id,omitempty"`
	OrderInSuperset       int         `yaml:"order_in_superset,omitempty" json:"order_in_superset"`
	StallDetectionEnabled bool        `yaml:"stall_detection,omitempty" json:"stall_detection_enabled"`
	WarmupReps            *int        `yaml:"warmup_reps,omitempty" json:"warmup_reps,omitempty"`
	DurationSeconds       int         `yaml:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
	PercentOfPR           int         `yaml:"percent_of_pr,omitempty" json:"percent_of_pr,omitempty"`
	SetPercentOfPR        []int       `yaml:"set_percent_of_pr,omitempty" json:"set_percent_of_pr,omitempty"`
}

// SetCount returns the number of sets, never less than one.
func (e *RoutineExercise) SetCount() int {
	if len(e.SetReps) == 0 {
		return 1
	}
	return len(e.SetReps)
}

// SetTarget returns the target reps for set i and whether that set is AMRAP.
// An absent per-set value always means AMRAP for that set. The exercise-level
// AMRAP flag only applies to the final set.
func (e *RoutineExercise) SetTarget(i int) (reps int, amrap bool) {
	if e.IsAMRAP && i == e.SetCount()-1 {
		return 0, true
	}
	if i >= 0 && i < len(e.SetReps) {
		if e.SetReps[i] == nil {
			return 0, true
		}
		return *e.SetReps[i], *e.SetReps[i] <= 0
	}
	return e.Reps, e.Reps <= 0
}

// SetWeight returns the per-cable weight for set i.
func (e *RoutineExercise) SetWeight(i int) float64 {
	if i >= 0 && i < len(e.SetWeightsKg) && e.SetWeightsKg[i] > 0 {
		return e.SetWeightsKg[i]
	}
	return e.WeightPerCableKg
}

// UsesPercentOfPR reports whether any weight is expressed relative to the PR.
func (e *RoutineExercise) UsesPercentOfPR() bool {
	if e.PercentOfPR > 0 {
		return true
	}
	for _, p := range e.SetPercentOfPR {
		if p > 0 {
			return true
		}
	}
	return false
}

// ResolvePercentOfPR converts percentage weights into absolute weights using
// prKg. A non-positive prKg leaves the absolute weights untouched.
func (e RoutineExercise) ResolvePercentOfPR(prKg float64) RoutineExercise {
	if prKg <= 0 {
		return e
	}
	if e.PercentOfPR > 0 {
		e.WeightPerCableKg = RoundToHalfKg(prKg * float64(e.PercentOfPR) / 100)
	}
	if len(e.SetPercentOfPR) > 0 {
		weights := make([]float64, max(len(e.SetWeightsKg), len(e.SetPercentOfPR)))
		copy(weights, e.SetWeightsKg)
		for i, pct := range e.SetPercentOfPR {
			if pct > 0 {
				weights[i] = RoundToHalfKg(prKg * float64(pct) / 100)
			}
		}
		e.SetWeightsKg = weights
	}
	return e
}

// RoundToHalfKg rounds to the machine's 0.5 kg resolution.
func RoundToHalfKg(kg float64) float64 {
	return math.Round(kg*2) / 2
}

// Superset groups exercises performed back to back, set by set.
type Superset struct {
	ID                 string `yaml:"id" json:"id"`
	RoutineID          string `yaml:"-" json:"routine_id"`
	Name               string `yaml:"name" json:"name"`
	ColorIndex         int    `yaml:"color_index,omitempty" json:"color_index"`
	RestBetweenSeconds int    `yaml:"rest_seconds,omitempty" json:"rest_between_seconds"`
	OrderIndex         int    `yaml:"-" json:"order_index"`
}

// Routine is an ordered list of exercises plus the supersets they belong to.
type Routine struct {
	ID          string            `yaml:"id,omitempty" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Exercises   []RoutineExercise `yaml:"exercises" json:"exercises"`
	Supersets   []Superset        `yaml:"supersets,omitempty" json:"supersets,omitempty"`
	CreatedAt   time.Time         `yaml:"-" json:"created_at"`
	LastUsed    time.Time         `yaml:"-" json:"last_used"`
	UseCount    int               `yaml:"-" json:"use_count"`
}

// Clone returns a deep copy so callers can transform a routine without
// touching the published one.
func (r *Routine) Clone() *Routine {
	if r == nil {
		return nil
	}
	c := *r
	c.Exercises = make([]RoutineExercise, len(r.Exercises))
	for i, ex := range r.Exercises {
		ex.Exercise.Equipment = append([]string(nil), ex.Exercise.Equipment...)
		ex.Exercise.MuscleGroups = append([]string(nil), ex.Exercise.MuscleGroups...)
		if ex.SetReps != nil {
			reps := make([]*int, len(ex.SetReps))
			for j, v := range ex.SetReps {
				if v != nil {
					n := *v
					reps[j] = &n
				}
			}
			ex.SetReps = reps
		}
		ex.SetWeightsKg = append([]float64(nil), ex.SetWeightsKg...)
		ex.SetPercentOfPR = append([]int(nil), ex.SetPercentOfPR...)
		if ex.WarmupReps != nil {
			n := *ex.WarmupReps
			ex.WarmupReps = &n
		}
		c.Exercises[i] = ex
	}
	c.Supersets = append([]Superset(nil), r.Supersets...)
	return &c
}

// Normalize orders exercises by OrderIndex and renumbers them densely.
func (r *Routine) Normalize() {
	sort.SliceStable(r.Exercises, func(i, j int) bool {
		return r.Exercises[i].OrderIndex < r.Exercises[j].OrderIndex
	})
	for i := range r.Exercises {
		r.Exercises[i].OrderIndex = i
	}
	sort.SliceStable(r.Supersets, func(i, j int) bool {
		return r.Supersets[i].OrderIndex < r.Supersets[j].OrderIndex
	})
	for i := range r.Supersets {
		r.Supersets[i].OrderIndex = i
		r.Supersets[i].RoutineID = r.ID
	}
}

// Validate checks that every superset reference resolves inside the routine.
func (r *Routine) Validate() error {
	for _, ex := range r.Exercises {
		if ex.SupersetID == "" {
			continue
		}
		if _, ok := r.Superset(ex.SupersetID); !ok {
			return fmt.Errorf("%w: exercise %q references %q", ErrUnknownSuperset, ex.Exercise.Name, ex.SupersetID)
		}
	}
	return nil
}

// Superset looks up a superset by id.
func (r *Routine) Superset(id string) (Superset, bool) {
	for _, s := range r.Supersets {
		if s.ID == id {
			return s, true
		}
	}
	return Superset{}, false
}

// ExerciseIndex returns the routine index of the exercise slot with id.
func (r *Routine) ExerciseIndex(id string) (int, bool) {
	for i, ex := range r.Exercises {
		if ex.ID == id {
			return i, true
		}
	}
	return -1, false
}

// TotalSets sums the set counts of every exercise.
func (r *Routine) TotalSets() int {
	total := 0
	for i := range r.Exercises {
		total += r.Exercises[i].SetCount()
	}
	return total
}

// Contains reports whether step addresses an existing exercise and set.
func (r *Routine) Contains(step Step) bool {
	if step.ExerciseIndex < 0 || step.ExerciseIndex >= len(r.Exercises) {
		return false
	}
	return step.SetIndex >= 0 && step.SetIndex < r.Exercises[step.ExerciseIndex].SetCount()
}
