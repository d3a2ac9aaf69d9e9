package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/history"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
)

// SaveSession appends one completed set's session record.
func (d *DB) SaveSession(ctx context.Context, rec history.SessionRecord) error {
	points := rec.Metrics
	if points == nil {
		points = []history.MetricPoint{}
	}
	metrics, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO sessions (id, routine_id, routine_exercise_id, exercise_id, exercise_name,
		   started_at, duration_ms, program_mode, weight_per_cable_kg, target_reps, is_amrap,
		   is_just_lift, working_reps, warmup_reps, total_reps, peak_force_kg, average_force_kg,
		   total_volume_kg, is_personal_record, completion_reason, metrics)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RoutineID, rec.RoutineExerciseID, rec.ExerciseID, rec.ExerciseName,
		toMillis(rec.StartedAt), rec.Duration.Milliseconds(), rec.ProgramMode.String(), rec.WeightPerCableKg,
		rec.TargetReps, boolInt(rec.IsAMRAP), boolInt(rec.IsJustLift), rec.WorkingReps, rec.WarmupReps,
		rec.TotalReps, rec.PeakForceKg, rec.AverageForceKg, rec.TotalVolumeKg, boolInt(rec.IsPersonalRecord),
		string(rec.CompletionReason), string(metrics))
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.ID, err)
	}
	return nil
}

// ListSessions returns the newest sessions first, without metric history.
func (d *DB) ListSessions(ctx context.Context, limit int) ([]history.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, routine_id, routine_exercise_id, exercise_id, exercise_name, started_at,
		   duration_ms, program_mode, weight_per_cable_kg, target_reps, is_amrap, is_just_lift,
		   working_reps, warmup_reps, total_reps, peak_force_kg, average_force_kg, total_volume_kg,
		   is_personal_record, completion_reason
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []history.SessionRecord
	for rows.Next() {
		var (
			rec                           history.SessionRecord
			started, durationMs           int64
			mode, reason                  string
			amrap, justLift, personalBest int
		)
		if err := rows.Scan(&rec.ID, &rec.RoutineID, &rec.RoutineExerciseID, &rec.ExerciseID, &rec.ExerciseName,
			&started, &durationMs, &mode, &rec.WeightPerCableKg, &rec.TargetReps, &amrap, &justLift,
			&rec.WorkingReps, &rec.WarmupReps, &rec.TotalReps, &rec.PeakForceKg, &rec.AverageForceKg,
			&rec.TotalVolumeKg, &personalBest, &reason); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if err := rec.ProgramMode.UnmarshalText([]byte(mode)); err != nil {
			return nil, fmt.Errorf("session %s: %w", rec.ID, err)
		}
		rec.StartedAt = fromMillis(started)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.IsAMRAP = amrap != 0
		rec.IsJustLift = justLift != 0
		rec.IsPersonalRecord = personalBest != 0
		rec.CompletionReason = history.CompletionReason(reason)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SessionMetrics returns the stored metric history of one session.
func (d *DB) SessionMetrics(ctx context.Context, id string) ([]history.MetricPoint, error) {
	var raw string
	err := d.db.QueryRowContext(ctx, `SELECT metrics FROM sessions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session metrics: %w", err)
	}
	var points []history.MetricPoint
	if err := json.Unmarshal([]byte(raw), &points); err != nil {
		return nil, fmt.Errorf("decoding metrics of session %s: %w", id, err)
	}
	return points, nil
}

// SaveCompletedSet appends a routine set log entry.
func (d *DB) SaveCompletedSet(ctx context.Context, set history.CompletedSet) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO completed_sets (id, session_id, routine_id, exercise_index, set_index, exercise_id,
		   weight_per_cable_kg, target_reps, actual_reps, is_amrap, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		set.ID, set.SessionID, set.RoutineID, set.ExerciseIndex, set.SetIndex, set.ExerciseID,
		set.WeightPerCableKg, set.TargetReps, set.ActualReps, boolInt(set.IsAMRAP), toMillis(set.CompletedAt))
	if err != nil {
		return fmt.Errorf("saving completed set %s: %w", set.ID, err)
	}
	return nil
}

// CompletedSets returns the set log of a routine in completion order.
func (d *DB) CompletedSets(ctx context.Context, routineID string) ([]history.CompletedSet, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, session_id, routine_id, exercise_index, set_index, exercise_id,
		   weight_per_cable_kg, target_reps, actual_reps, is_amrap, completed_at
		 FROM completed_sets WHERE routine_id = ? ORDER BY completed_at ASC, exercise_index ASC, set_index ASC`,
		routineID)
	if err != nil {
		return nil, fmt.Errorf("querying completed sets: %w", err)
	}
	defer rows.Close()

	var out []history.CompletedSet
	for rows.Next() {
		var (
			set       history.CompletedSet
			amrap     int
			completed int64
		)
		if err := rows.Scan(&set.ID, &set.SessionID, &set.RoutineID, &set.ExerciseIndex, &set.SetIndex,
			&set.ExerciseID, &set.WeightPerCableKg, &set.TargetReps, &set.ActualReps, &amrap, &completed); err != nil {
			return nil, fmt.Errorf("scanning completed set: %w", err)
		}
		set.IsAMRAP = amrap != 0
		set.CompletedAt = fromMillis(completed)
		out = append(out, set)
	}
	return out, rows.Err()
}

// PersonalRecord returns the stored PR for an exercise in a program mode.
func (d *DB) PersonalRecord(ctx context.Context, exerciseID string, mode routine.ProgramMode) (history.PersonalRecord, bool, error) {
	pr := history.PersonalRecord{ExerciseID: exerciseID, ProgramMode: mode}
	var achieved int64
	err := d.db.QueryRowContext(ctx,
		`SELECT weight_per_cable_kg, reps, achieved_at FROM personal_records
		 WHERE exercise_id = ? AND program_mode = ?`, exerciseID, mode.String()).
		Scan(&pr.WeightPerCableKg, &pr.Reps, &achieved)
	if errors.Is(err, sql.ErrNoRows) {
		return history.PersonalRecord{}, false, nil
	}
	if err != nil {
		return history.PersonalRecord{}, false, fmt.Errorf("querying personal record: %w", err)
	}
	pr.AchievedAt = fromMillis(achieved)
	return pr, true, nil
}

// SavePersonalRecord replaces the PR for the record's exercise and mode.
func (d *DB) SavePersonalRecord(ctx context.Context, pr history.PersonalRecord) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO personal_records (exercise_id, program_mode, weight_per_cable_kg, reps, achieved_at)
		 VALUES (?, ?, ?, ?, ?)`,
		pr.ExerciseID, pr.ProgramMode.String(), pr.WeightPerCableKg, pr.Reps, toMillis(pr.AchievedAt))
	if err != nil {
		return fmt.Errorf("saving personal record for %s: %w", pr.ExerciseID, err)
	}
	return nil
}
