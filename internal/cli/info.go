package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/host"
)

// InfoOutput is the JSON payload of the info command.
type InfoOutput struct {
	Entry   string               `json:"entry"`
	Modules []host.ModuleSummary `json:"modules"`
	Cycles  []graph.CycleWarning `json:"cycles,omitempty"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info <entry>",
		Short: "Print the module graph of an entry",
		Long: `Print every module of an entry's static graph in discovery order with
its media type, content hash, and importer, followed by import cycle
warnings.

Examples:
  modhost info ./main.yaml
  modhost info main.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, out, err := prepareGraph(opts, args[0], cmd)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return out.Success(InfoOutput{
					Entry:   res.Entry.String(),
					Modules: res.Modules,
					Cycles:  res.Cycles,
				})
			}
			return out.Success(formatInfo(res))
		},
	}

	addHostFlags(cmd, opts)
	return cmd
}

func formatInfo(res *host.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "entry: %s\n", res.Entry)
	fmt.Fprintf(&b, "modules (%d):\n", len(res.Modules))
	for _, m := range res.Modules {
		fmt.Fprintf(&b, "  %s [%s]", m.Specifier, m.MediaType)
		if m.Hash != "" {
			fmt.Fprintf(&b, " %s", shortHash(m.Hash))
		}
		if m.Referrer != "" {
			fmt.Fprintf(&b, " <- %s", m.Referrer)
		}
		b.WriteByte('\n')
	}
	if len(res.Cycles) > 0 {
		fmt.Fprintf(&b, "cycles (%d):\n", len(res.Cycles))
		for _, w := range res.Cycles {
			fmt.Fprintf(&b, "  %s\n", strings.Join(w.Path, " -> "))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func shortHash(h string) string {
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[i+1:]
	}
	if len(h) > 12 {
		h = h[:12]
	}
	return h
}
