package host

import (
	"context"
	"fmt"

	"github.com/roach88/modhost/internal/store"
)

// Save writes the run, its modules, and its trace to st. runErr is the
// error Run returned alongside r.
func (r *Result) Save(ctx context.Context, st *store.Store, runErr error) error {
	entry := r.Entry.String()
	if err := st.WriteRun(ctx, r.RunID, entry, r.StartedAt); err != nil {
		return err
	}

	modules := make([]store.Module, len(r.Modules))
	for i, m := range r.Modules {
		modules[i] = store.Module{
			Seq:       int64(i + 1),
			Specifier: m.Specifier,
			State:     m.State,
			MediaType: string(m.MediaType),
			Hash:      m.Hash,
			Referrer:  m.Referrer,
			Dynamic:   m.Dynamic,
			Error:     m.Error,
		}
	}
	if err := st.WriteModules(ctx, r.RunID, modules); err != nil {
		return err
	}
	if err := st.WriteEvents(ctx, r.RunID, r.Trace); err != nil {
		return err
	}

	out := store.Outcome{Status: store.StatusOK, Value: r.Value, Duration: r.Duration}
	if runErr != nil {
		out = store.Outcome{
			Status:         store.StatusFailed,
			ErrorCode:      string(CodeOf(runErr)),
			ErrorSpecifier: SpecifierOf(runErr),
			ErrorMessage:   runErr.Error(),
			Duration:       r.Duration,
		}
	}
	if err := st.FinishRun(ctx, r.RunID, out); err != nil {
		return fmt.Errorf("save run %s: %w", r.RunID, err)
	}
	return nil
}
