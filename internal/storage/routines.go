package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
)

// ListRoutines returns every routine, most recently used first.
func (d *DB) ListRoutines(ctx context.Context) ([]*routine.Routine, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, description, exercises, created_at, last_used, use_count
		 FROM routines ORDER BY last_used DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var out []*routine.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	for _, r := range out {
		if r.Supersets, err = d.supersets(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetRoutine returns one routine with its supersets.
func (d *DB) GetRoutine(ctx context.Context, id string) (*routine.Routine, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, description, exercises, created_at, last_used, use_count
		 FROM routines WHERE id = ?`, id)
	r, err := scanRoutine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if r.Supersets, err = d.supersets(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoutine(s scanner) (*routine.Routine, error) {
	var (
		r                 routine.Routine
		exercises         string
		created, lastUsed int64
	)
	if err := s.Scan(&r.ID, &r.Name, &r.Description, &exercises, &created, &lastUsed, &r.UseCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning routine: %w", err)
	}
	if err := json.Unmarshal([]byte(exercises), &r.Exercises); err != nil {
		return nil, fmt.Errorf("decoding exercises of routine %s: %w", r.ID, err)
	}
	r.CreatedAt = fromMillis(created)
	r.LastUsed = fromMillis(lastUsed)
	return &r, nil
}

func (d *DB) supersets(ctx context.Context, routineID string) ([]routine.Superset, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, routine_id, name, color_index, rest_between_seconds, order_index
		 FROM supersets WHERE routine_id = ? ORDER BY order_index ASC`, routineID)
	if err != nil {
		return nil, fmt.Errorf("querying supersets: %w", err)
	}
	defer rows.Close()

	var out []routine.Superset
	for rows.Next() {
		var s routine.Superset
		if err := rows.Scan(&s.ID, &s.RoutineID, &s.Name, &s.ColorIndex, &s.RestBetweenSeconds, &s.OrderIndex); err != nil {
			return nil, fmt.Errorf("scanning superset: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveRoutine inserts or replaces r and its supersets. A routine without an
// id gets one.
func (d *DB) SaveRoutine(ctx context.Context, r *routine.Routine) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	exercises, err := json.Marshal(r.Exercises)
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving routine: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO routines (id, name, description, exercises, created_at, last_used, use_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, description = excluded.description, exercises = excluded.exercises,
		   last_used = excluded.last_used, use_count = excluded.use_count`,
		r.ID, r.Name, r.Description, string(exercises), toMillis(r.CreatedAt), toMillis(r.LastUsed), r.UseCount)
	if err != nil {
		return fmt.Errorf("saving routine %s: %w", r.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM supersets WHERE routine_id = ?`, r.ID); err != nil {
		return fmt.Errorf("replacing supersets of %s: %w", r.ID, err)
	}
	for _, s := range r.Supersets {
		s.RoutineID = r.ID
		if err := upsertSuperset(ctx, tx, s); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("saving routine %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRoutine removes a routine; its supersets go with it.
func (d *DB) DeleteRoutine(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting routine %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveSuperset inserts or updates one superset of an existing routine.
func (d *DB) SaveSuperset(ctx context.Context, s routine.Superset) error {
	return upsertSuperset(ctx, d.db, s)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSuperset(ctx context.Context, db execer, s routine.Superset) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO supersets (id, routine_id, name, color_index, rest_between_seconds, order_index)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, color_index = excluded.color_index,
		   rest_between_seconds = excluded.rest_between_seconds, order_index = excluded.order_index`,
		s.ID, s.RoutineID, s.Name, s.ColorIndex, s.RestBetweenSeconds, s.OrderIndex)
	if err != nil {
		return fmt.Errorf("saving superset %s: %w", s.ID, err)
	}
	return nil
}

// DeleteSuperset removes one superset of a routine.
func (d *DB) DeleteSuperset(ctx context.Context, routineID, supersetID string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM supersets WHERE id = ? AND routine_id = ?`, supersetID, routineID)
	if err != nil {
		return fmt.Errorf("deleting superset %s: %w", supersetID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("superset %s: %w", supersetID, ErrNotFound)
	}
	return nil
}
