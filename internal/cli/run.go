package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/host"
	"github.com/roach88/modhost/internal/modscript"
	"github.com/roach88/modhost/internal/store"
	"github.com/roach88/modhost/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	HostOptions

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to host.UUIDv7Generator.
	RunIDs host.RunIDGenerator
}

// RunOutput is the JSON payload of a successful run.
type RunOutput struct {
	RunID      string               `json:"run_id"`
	Entry      string               `json:"entry"`
	Value      value.Value          `json:"value"`
	Modules    []host.ModuleSummary `json:"modules,omitempty"`
	Cycles     []graph.CycleWarning `json:"cycles,omitempty"`
	DurationMS int64                `json:"duration_ms"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{HostOptions: HostOptions{RootOptions: rootOpts}})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <entry>",
		Short: "Run an entry module",
		Long: `Run an entry module to completion.

The entry and every module it imports are loaded, linked, and evaluated;
the event loop then runs until the entry settles and no work remains.
The settled value is printed on stdout.

Exit codes:
  0 - The entry settled
  1 - The run failed (graph, link, evaluation, stall, cancellation)
  2 - Command error (bad flags, unreadable config, etc.)

Examples:
  modhost run ./main.yaml
  modhost run main.yaml --timeout 5s --root .
  modhost run https://example.com/app.yaml --allow-remote --lock modhost.lock
  modhost run main.yaml --trace-db ./runs.db --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(opts, args[0], cmd)
		},
	}

	addHostFlags(cmd, &opts.HostOptions)
	cmd.Flags().StringVar(&opts.TraceDB, "trace-db", "", "record the run in this SQLite database")

	return cmd
}

func runModule(opts *RunOptions, raw string, cmd *cobra.Command) error {
	settings, err := opts.Settings(cmd)
	if err != nil {
		return err
	}
	logger := opts.Logger(cmd.ErrOrStderr())
	out := opts.Formatter(cmd)

	src, err := newModuleSource(settings)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up loaders", err)
	}
	entry, err := src.Entry(raw)
	if err != nil {
		return reportFailure(out, "", err)
	}

	ctx, stop := interruptible(cmd.Context(), logger)
	defer stop()

	hostOpts := []host.Option{
		host.WithLogger(logger),
		host.WithTimeout(settings.Timeout),
	}
	if opts.RunIDs != nil {
		hostOpts = append(hostOpts, host.WithRunIDGenerator(opts.RunIDs))
	}

	res, runErr := host.Run(ctx, entry.String(), src.Loader, modscript.New(), hostOpts...)

	if settings.TraceDB != "" {
		if err := saveRun(ctx, settings.TraceDB, res, runErr, logger); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}
	if runErr != nil {
		return reportFailure(out, res.RunID, runErr)
	}
	if err := src.SaveLock(); err != nil {
		return WrapExitError(ExitCommandError, "failed to update lockfile", err)
	}

	if opts.Format == "json" {
		data := RunOutput{
			RunID:      res.RunID,
			Entry:      res.Entry.String(),
			Value:      res.Value,
			Cycles:     res.Cycles,
			DurationMS: res.Duration.Milliseconds(),
		}
		if opts.Verbose {
			data.Modules = res.Modules
		}
		return out.Success(data)
	}
	for _, w := range res.Cycles {
		out.VerboseLog("warning: %s", w.Message)
	}
	return out.Success(value.Text(res.Value))
}

// saveRun records a finished run. The database is created if needed.
func saveRun(ctx context.Context, path string, res *host.Result, runErr error, logger *slog.Logger) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// A cancelled run is still recorded.
	return res.Save(context.WithoutCancel(ctx), st, runErr)
}

// reportFailure renders a run failure with its code and originating
// specifier and returns the matching exit error.
func reportFailure(out *OutputFormatter, runID string, err error) error {
	e := CLIError{
		Code:      string(host.CodeOf(err)),
		Specifier: host.SpecifierOf(err),
		Message:   err.Error(),
	}
	if runID != "" {
		e.Details = map[string]string{"run_id": runID}
	}
	if renderErr := out.Error(e); renderErr != nil {
		return WrapExitError(ExitCommandError, "failed to write output", errors.Join(renderErr, err))
	}
	return &ExitError{Code: ExitFailure, Message: e.Code, Err: err, Reported: true}
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
