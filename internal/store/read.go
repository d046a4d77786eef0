package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/modhost/internal/trace"
)

const runColumns = `id, seq, entry, status, error_code, error_specifier, error_message, value, started_at, duration_ms`

// ReadRun returns a run by ID, or an error wrapping ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns every run, oldest first.
// Returns an empty slice (not nil) when the store has no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadModules returns a run's modules in discovery order.
func (s *Store) ReadModules(ctx context.Context, runID string) ([]Module, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, specifier, state, media_type, hash, referrer, dynamic, error
		FROM modules
		WHERE run_id = ?
		ORDER BY seq ASC, specifier COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	modules := []Module{}
	for rows.Next() {
		var (
			m       Module
			dynamic int
		)
		if err := rows.Scan(&m.Seq, &m.Specifier, &m.State, &m.MediaType, &m.Hash, &m.Referrer, &dynamic, &m.Error); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		m.Dynamic = dynamic != 0
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return modules, nil
}

// ReadEvents returns a run's trace in seq order, optionally restricted to
// the given kinds.
func (s *Store) ReadEvents(ctx context.Context, runID string, kinds ...trace.Kind) ([]trace.Event, error) {
	query := `
		SELECT seq, kind, name, specifier, detail
		FROM events
		WHERE run_id = ?`
	args := []any{runID}
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(`, ?`, len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += `
		ORDER BY seq ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		var (
			e    trace.Event
			kind string
		)
		if err := rows.Scan(&e.Seq, &kind, &e.Name, &e.Specifier, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = trace.Kind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r          Run
		status     string
		v          sql.NullString
		startedAt  string
		durationMS int64
	)
	if err := row.Scan(&r.ID, &r.Seq, &r.Entry, &status, &r.ErrorCode, &r.ErrorSpecifier, &r.ErrorMessage, &v, &startedAt, &durationMS); err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	r.Duration = time.Duration(durationMS) * time.Millisecond

	var err error
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Run{}, fmt.Errorf("parse started_at of run %s: %w", r.ID, err)
	}
	if r.Value, err = unmarshalValue(v); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	return r, nil
}
