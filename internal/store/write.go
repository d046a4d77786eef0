package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/modhost/internal/trace"
)

// WriteRun inserts a run in StatusRunning. The run's seq is assigned from
// the store: one more than the highest seq so far.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteRun(ctx context.Context, id, entry string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seq, entry, status, started_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		entry,
		string(StatusRunning),
		startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun records a run's outcome. The run must exist.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	v, err := marshalValue(out.Value)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error_code = ?, error_specifier = ?, error_message = ?, value = ?, duration_ms = ?
		WHERE id = ?
	`,
		string(out.Status),
		out.ErrorCode,
		out.ErrorSpecifier,
		out.ErrorMessage,
		v,
		out.Duration.Milliseconds(),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// WriteModules stores the final module states of a run in one transaction.
// A module written twice keeps the later state.
func (s *Store) WriteModules(ctx context.Context, runID string, modules []Module) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write modules: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO modules (run_id, seq, specifier, state, media_type, hash, referrer, dynamic, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, specifier) DO UPDATE SET state = excluded.state, error = excluded.error
	`)
	if err != nil {
		return fmt.Errorf("write modules: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range modules {
		if _, err := stmt.ExecContext(ctx,
			runID, m.Seq, m.Specifier, m.State, m.MediaType, m.Hash, m.Referrer, boolToInt(m.Dynamic), m.Error,
		); err != nil {
			return fmt.Errorf("write module %s: %w", m.Specifier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write modules: commit: %w", err)
	}
	return nil
}

// WriteEvents appends a run's trace events in one transaction. Events are
// keyed by (run_id, seq); rewriting an event is a no-op.
func (s *Store) WriteEvents(ctx context.Context, runID string, events []trace.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, kind, name, specifier, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, runID, e.Seq, string(e.Kind), e.Name, e.Specifier, e.Detail); err != nil {
			return fmt.Errorf("write event %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}
