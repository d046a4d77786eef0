package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/modhost/internal/store"
	"github.com/roach88/modhost/internal/trace"
	"github.com/roach88/modhost/internal/value"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Kinds    []string // optional - filter events by kind
}

// RunSummary is one stored run as printed by trace.
type RunSummary struct {
	ID             string `json:"id"`
	Seq            int64  `json:"seq"`
	Entry          string `json:"entry"`
	Status         string `json:"status"`
	ErrorCode      string `json:"error_code,omitempty"`
	ErrorSpecifier string `json:"error_specifier,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Value          any    `json:"value,omitempty"`
	StartedAt      string `json:"started_at"`
	DurationMS     int64  `json:"duration_ms"`
}

// TraceResult holds the complete trace output for one run.
type TraceResult struct {
	Run      RunSummary     `json:"run"`
	Modules  []store.Module `json:"modules"`
	Timeline []trace.Event  `json:"timeline"`
	Stats    TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Modules     int `json:"modules"`
	Microtasks  int `json:"microtasks"`
	Macrotasks  int `json:"macrotasks"`
	Errors      int `json:"errors"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show recorded runs",
		Long: `Show runs recorded with run --trace-db.

Without a run ID, lists every recorded run. With a run ID, shows the run's
outcome, its modules, and its event timeline in execution order.

Examples:
  modhost trace --db ./runs.db
  modhost trace --db ./runs.db 0190f3c2-...
  modhost trace --db ./runs.db 0190f3c2-... --kind step --kind error
  modhost trace --db ./runs.db 0190f3c2-... --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only show events of this kind (repeatable)")

	return cmd
}

func runTrace(opts *TraceOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if len(args) == 0 {
		return listRuns(ctx, st, opts, cmd)
	}

	run, err := st.ReadRun(ctx, args[0])
	if errors.Is(err, store.ErrRunNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", args[0]))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	modules, err := st.ReadModules(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read modules", err)
	}
	kinds := make([]trace.Kind, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds = append(kinds, trace.Kind(k))
	}
	events, err := st.ReadEvents(ctx, run.ID, kinds...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	if len(opts.Kinds) == 0 && !opts.Verbose {
		events = withoutLoopStates(events)
	}

	result := TraceResult{
		Run:      summarizeRun(run),
		Modules:  modules,
		Timeline: events,
		Stats:    traceStats(events, len(modules)),
	}
	if result.Modules == nil {
		result.Modules = []store.Module{}
	}
	if result.Timeline == nil {
		result.Timeline = []trace.Event{}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func listRuns(ctx context.Context, st *store.Store, opts *TraceOptions, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, summarizeRun(r))
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range summaries {
		fmt.Fprintf(w, "%4d  %s  %-7s %s", r.Seq, r.ID, r.Status, r.Entry)
		if r.ErrorCode != "" {
			fmt.Fprintf(w, "  %s", r.ErrorCode)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func summarizeRun(r store.Run) RunSummary {
	s := RunSummary{
		ID:             r.ID,
		Seq:            r.Seq,
		Entry:          r.Entry,
		Status:         string(r.Status),
		ErrorCode:      r.ErrorCode,
		ErrorSpecifier: r.ErrorSpecifier,
		ErrorMessage:   r.ErrorMessage,
		StartedAt:      r.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		DurationMS:     r.Duration.Milliseconds(),
	}
	if r.Value != nil {
		s.Value = value.Native(r.Value)
	}
	return s
}

func withoutLoopStates(events []trace.Event) []trace.Event {
	out := events[:0:0]
	for _, ev := range events {
		if ev.Kind != trace.KindLoopState {
			out = append(out, ev)
		}
	}
	return out
}

func traceStats(events []trace.Event, modules int) TraceStats {
	stats := TraceStats{TotalEvents: len(events), Modules: modules}
	for _, ev := range events {
		switch ev.Kind {
		case trace.KindMicrotask:
			stats.Microtasks++
		case trace.KindMacrotask:
			stats.Macrotasks++
		case trace.KindError:
			stats.Errors++
		}
	}
	return stats
}

// outputTraceJSON outputs trace data as JSON.
func outputTraceJSON(cmd *cobra.Command, data any) error {
	response := CLIResponse{
		Status: "ok",
		Data:   data,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	r := result.Run
	fmt.Fprintf(w, "Trace for Run: %s\n", r.ID)
	fmt.Fprintf(w, "Entry: %s\n", r.Entry)
	fmt.Fprintf(w, "Status: %s\n", runStatus(r))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Modules ===")
	if len(result.Modules) == 0 {
		fmt.Fprintln(w, "  (no modules)")
	}
	for _, m := range result.Modules {
		fmt.Fprintf(w, "  %-9s %s", m.State, m.Specifier)
		if m.Dynamic {
			fmt.Fprint(w, " (dynamic)")
		}
		fmt.Fprintln(w)
		if verbose && m.Error != "" {
			fmt.Fprintf(w, "            error: %s\n", m.Error)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %-12s %s", ev.Seq, ev.Kind, ev.Name)
		if ev.Specifier != "" {
			fmt.Fprintf(w, " %s", ev.Specifier)
		}
		if ev.Detail != "" {
			fmt.Fprintf(w, " (%s)", ev.Detail)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Modules:      %d\n", result.Stats.Modules)
	fmt.Fprintf(w, "  Microtasks:   %d\n", result.Stats.Microtasks)
	fmt.Fprintf(w, "  Macrotasks:   %d\n", result.Stats.Macrotasks)
	fmt.Fprintf(w, "  Errors:       %d\n", result.Stats.Errors)
}

// runStatus returns a human-readable run status.
func runStatus(r RunSummary) string {
	switch {
	case r.Status == string(store.StatusOK):
		return fmt.Sprintf("ok (%d ms)", r.DurationMS)
	case r.ErrorCode != "":
		return fmt.Sprintf("failed: %s in %s", r.ErrorCode, r.ErrorSpecifier)
	default:
		return r.Status
	}
}
