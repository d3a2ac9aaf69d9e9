package storage

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/session"
)

var (
	_ session.RoutineRepository = (*DB)(nil)
	_ session.SessionRepository = (*DB)(nil)
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "trainer.db"), log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func intp(v int) *int { return &v }

func pullDay() *routine.Routine {
	return &routine.Routine{
		ID:   "pull-day",
		Name: "Pull Day",
		Exercises: []routine.RoutineExercise{
			{
				ID:               "re-row",
				Exercise:         routine.Exercise{ID: "row", Name: "Row", Equipment: []string{"handles"}},
				SetReps:          []*int{intp(10), intp(8), nil},
				WeightPerCableKg: 20,
				ProgramMode:      routine.ProgramEcho,
				EchoLevel:        routine.EchoHardest,
				SupersetID:       "ss-1",
			},
			{
				ID:              "re-curl",
				Exercise:        routine.Exercise{ID: "curl", Name: "Curl", Equipment: []string{"bar"}},
				Reps:            12,
				PercentOfPR:     80,
				SupersetID:      "ss-1",
				OrderInSuperset: 1,
				OrderIndex:      1,
			},
		},
		Supersets: []routine.Superset{{ID: "ss-1", RoutineID: "pull-day", Name: "Arms", RestBetweenSeconds: 20}},
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainer.db")
	v1, err := Migrate(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v1)

	v2, err := Migrate(path)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestRoutines_SaveGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	in := pullDay()

	require.NoError(t, db.SaveRoutine(ctx, in))
	got, err := db.GetRoutine(ctx, "pull-day")
	require.NoError(t, err)

	assert.Equal(t, "Pull Day", got.Name)
	require.Len(t, got.Exercises, 2)
	row := got.Exercises[0]
	assert.Equal(t, routine.ProgramEcho, row.ProgramMode)
	assert.Equal(t, routine.EchoHardest, row.EchoLevel)
	require.Len(t, row.SetReps, 3)
	assert.Nil(t, row.SetReps[2], "AMRAP set survives storage")
	assert.Equal(t, 8, *row.SetReps[1])
	assert.Equal(t, 80, got.Exercises[1].PercentOfPR)
	assert.Equal(t, in.Supersets, got.Supersets)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRoutines_SaveAssignsIDAndUpdates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := pullDay()
	r.ID = ""

	require.NoError(t, db.SaveRoutine(ctx, r))
	require.NotEmpty(t, r.ID)

	r.Name = "Pull Day B"
	r.UseCount = 3
	r.LastUsed = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	r.Supersets = nil
	for i := range r.Exercises {
		r.Exercises[i].SupersetID = ""
	}
	require.NoError(t, db.SaveRoutine(ctx, r))

	got, err := db.GetRoutine(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pull Day B", got.Name)
	assert.Equal(t, 3, got.UseCount)
	assert.Equal(t, r.LastUsed, got.LastUsed)
	assert.Empty(t, got.Supersets)
}

func TestRoutines_ListAndDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	older := pullDay()
	newer := &routine.Routine{ID: "legs", Name: "Legs", LastUsed: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Exercises: []routine.RoutineExercise{{ID: "re-squat", Exercise: routine.Exercise{ID: "squat", Name: "Squat"}, Reps: 5}}}
	require.NoError(t, db.SaveRoutine(ctx, older))
	require.NoError(t, db.SaveRoutine(ctx, newer))

	list, err := db.ListRoutines(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "legs", list[0].ID)
	assert.Len(t, list[1].Supersets, 1)

	require.NoError(t, db.DeleteRoutine(ctx, "pull-day"))
	_, err = db.GetRoutine(ctx, "pull-day")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteRoutine(ctx, "pull-day"), ErrNotFound)

	var supersets int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM supersets`).Scan(&supersets))
	assert.Zero(t, supersets, "supersets are deleted with their routine")
}

func TestSupersets_SaveAndDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveRoutine(ctx, pullDay()))

	ss := routine.Superset{ID: "ss-2", RoutineID: "pull-day", Name: "Back", RestBetweenSeconds: 10, OrderIndex: 1}
	require.NoError(t, db.SaveSuperset(ctx, ss))
	ss.RestBetweenSeconds = 30
	require.NoError(t, db.SaveSuperset(ctx, ss))

	got, err := db.GetRoutine(ctx, "pull-day")
	require.NoError(t, err)
	require.Len(t, got.Supersets, 2)
	assert.Equal(t, 30, got.Supersets[1].RestBetweenSeconds)

	require.NoError(t, db.DeleteSuperset(ctx, "pull-day", "ss-2"))
	assert.ErrorIs(t, db.DeleteSuperset(ctx, "pull-day", "ss-2"), ErrNotFound)

	orphan := routine.Superset{ID: "ss-3", RoutineID: "missing", Name: "Orphan"}
	assert.Error(t, db.SaveSuperset(ctx, orphan), "supersets need an existing routine")
}

func TestSessions_SaveAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := history.SessionRecord{
		ID:               "s-1",
		RoutineID:        "pull-day",
		ExerciseID:       "row",
		ExerciseName:     "Row",
		StartedAt:        started,
		Duration:         42 * time.Second,
		ProgramMode:      routine.ProgramPump,
		WeightPerCableKg: 22.5,
		TargetReps:       10,
		WorkingReps:      10,
		WarmupReps:       3,
		TotalReps:        13,
		PeakForceKg:      30,
		AverageForceKg:   21.5,
		TotalVolumeKg:    225,
		IsPersonalRecord: true,
		CompletionReason: history.ReasonTargetReached,
		Metrics:          []history.MetricPoint{{OffsetMs: 0, Position: 10}, {OffsetMs: 50, Position: 60, Force: 20}},
	}
	require.NoError(t, db.SaveSession(ctx, rec))
	justLift := history.SessionRecord{ID: "s-2", ExerciseName: "Just Lift", StartedAt: started.Add(time.Minute),
		IsJustLift: true, CompletionReason: history.ReasonUserStop}
	require.NoError(t, db.SaveSession(ctx, justLift))

	list, err := db.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s-2", list[0].ID)
	assert.True(t, list[0].IsJustLift)

	got := list[1]
	assert.Equal(t, routine.ProgramPump, got.ProgramMode)
	assert.Equal(t, started, got.StartedAt)
	assert.Equal(t, 42*time.Second, got.Duration)
	assert.True(t, got.IsPersonalRecord)
	assert.Equal(t, history.ReasonTargetReached, got.CompletionReason)
	assert.Nil(t, got.Metrics)

	points, err := db.SessionMetrics(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Metrics, points)
	points, err = db.SessionMetrics(ctx, "s-2")
	require.NoError(t, err)
	assert.Empty(t, points)
	_, err = db.SessionMetrics(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompletedSets(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveSession(ctx, history.SessionRecord{ID: "s-1", ExerciseName: "Row", StartedAt: at}))

	for i := 1; i >= 0; i-- {
		require.NoError(t, db.SaveCompletedSet(ctx, history.CompletedSet{
			ID: "c-" + string(rune('a'+i)), SessionID: "s-1", RoutineID: "pull-day",
			SetIndex: i, ActualReps: 8, IsAMRAP: i == 1, CompletedAt: at.Add(time.Duration(i) * time.Minute),
		}))
	}
	sets, err := db.CompletedSets(ctx, "pull-day")
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, 0, sets[0].SetIndex)
	assert.True(t, sets[1].IsAMRAP)

	err = db.SaveCompletedSet(ctx, history.CompletedSet{ID: "c-x", SessionID: "missing", RoutineID: "pull-day"})
	assert.Error(t, err, "a set log entry needs its session")
}

func TestPersonalRecords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, found, err := db.PersonalRecord(ctx, "row", routine.ProgramOldSchool)
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.SavePersonalRecord(ctx, history.PersonalRecord{
		ExerciseID: "row", ProgramMode: routine.ProgramOldSchool, WeightPerCableKg: 20, Reps: 8, AchievedAt: at}))
	require.NoError(t, db.SavePersonalRecord(ctx, history.PersonalRecord{
		ExerciseID: "row", ProgramMode: routine.ProgramOldSchool, WeightPerCableKg: 22.5, Reps: 8, AchievedAt: at}))
	require.NoError(t, db.SavePersonalRecord(ctx, history.PersonalRecord{
		ExerciseID: "row", ProgramMode: routine.ProgramPump, WeightPerCableKg: 10, Reps: 20, AchievedAt: at}))

	pr, found, err := db.PersonalRecord(ctx, "row", routine.ProgramOldSchool)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 22.5, pr.WeightPerCableKg)
	assert.Equal(t, at, pr.AchievedAt)

	pr, found, err = db.PersonalRecord(ctx, "row", routine.ProgramPump)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 20, pr.Reps)
}
