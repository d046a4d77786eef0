package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/host"
	"github.com/roach88/modhost/internal/modscript"
)

// CheckOutput is the JSON payload of a successful check.
type CheckOutput struct {
	Entry   string               `json:"entry"`
	Modules int                  `json:"modules"`
	Cycles  []graph.CycleWarning `json:"cycles,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <entry>",
		Short: "Load and link an entry module without evaluating it",
		Long: `Load the full static module graph of an entry and link it.

No module is evaluated. Load, parse, and link failures are reported with
the module they originate from.

Examples:
  modhost check ./main.yaml
  modhost check main.yaml --lock modhost.lock --frozen-lock`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkModule(opts, args[0], cmd)
		},
	}

	addHostFlags(cmd, opts)
	return cmd
}

func checkModule(opts *HostOptions, raw string, cmd *cobra.Command) error {
	res, out, err := prepareGraph(opts, raw, cmd)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return out.Success(CheckOutput{
			Entry:   res.Entry.String(),
			Modules: len(res.Modules),
			Cycles:  res.Cycles,
		})
	}
	for _, w := range res.Cycles {
		out.VerboseLog("warning: %s", w.Message)
	}
	return out.Success(fmt.Sprintf("✓ %s: %d modules linked", res.Entry, len(res.Modules)))
}

// prepareGraph runs host.Check for check and info. Failures are already
// reported when it returns an error.
func prepareGraph(opts *HostOptions, raw string, cmd *cobra.Command) (*host.Result, *OutputFormatter, error) {
	settings, err := opts.Settings(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := opts.Logger(cmd.ErrOrStderr())
	out := opts.Formatter(cmd)

	src, err := newModuleSource(settings)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to set up loaders", err)
	}
	entry, err := src.Entry(raw)
	if err != nil {
		return nil, nil, reportFailure(out, "", err)
	}

	ctx, stop := interruptible(cmd.Context(), logger)
	defer stop()

	res, err := host.Check(ctx, entry.String(), src.Loader, modscript.New(),
		host.WithLogger(logger),
		host.WithTimeout(settings.Timeout),
	)
	if err != nil {
		return res, out, reportFailure(out, "", err)
	}
	if err := src.SaveLock(); err != nil {
		return res, out, WrapExitError(ExitCommandError, "failed to update lockfile", err)
	}
	return res, out, nil
}
