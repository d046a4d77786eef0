package host

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/trace"
	"github.com/roach88/modhost/internal/value"
)

// ModuleSummary describes one module of a finished run.
type ModuleSummary struct {
	Specifier string           `json:"specifier"`
	State     string           `json:"state"`
	MediaType loader.MediaType `json:"media_type,omitempty"`
	Hash      string           `json:"hash,omitempty"`
	Referrer  string           `json:"referrer,omitempty"`
	Dynamic   bool             `json:"dynamic,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Result is the outcome of a run. Run always returns a non-nil Result;
// on failure the fields describe how far the run got.
type Result struct {
	RunID   string               `json:"run_id"`
	Entry   specifier.Specifier  `json:"entry"`
	Value   value.Value          `json:"value,omitempty"`
	Exports value.Object         `json:"exports,omitempty"`
	Modules []ModuleSummary      `json:"modules"`
	Cycles  []graph.CycleWarning `json:"cycles,omitempty"`
	Trace   []trace.Event        `json:"-"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Graph     *graph.Graph  `json:"-"`
}

// EntryValue returns a namespace's default export, or the namespace itself
// when it has none.
func EntryValue(ns value.Object) value.Value {
	if v, ok := ns[script.Default]; ok {
		return v
	}
	return ns
}

// Run resolves entry, builds and links its module graph, evaluates it on a
// fresh event loop, and returns the entry's value once the loop has run
// out of work.
//
// Failures are returned with their taxonomy type: *specifier.InvalidSpecifierError,
// *graph.GraphError, *linker.LinkError, *EvaluationError,
// *loop.StalledError, or *loop.CancelledError.
func Run(ctx context.Context, entry string, ld loader.Loader, eng script.Engine, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	rc, res := start(ctx, ld, eng, o)
	if err := rc.prepare(ctx, res, entry); err != nil {
		return rc.finish(res, err)
	}

	c := rc.Driver.Evaluate(rc, rc.Entry)
	v, err := rc.Loop.Run(ctx, c)
	if err != nil {
		return rc.finish(res, rc.evaluationFailure(err))
	}
	if ns, ok := v.(value.Object); ok {
		res.Exports = ns
		res.Value = EntryValue(ns)
	}
	return rc.finish(res, nil)
}

// Check resolves entry and builds and links its module graph without
// evaluating anything. The returned Result has no value; its Modules and
// Cycles describe the graph.
func Check(ctx context.Context, entry string, ld loader.Loader, eng script.Engine, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	rc, res := start(ctx, ld, eng, o)
	return rc.finish(res, rc.prepare(ctx, res, entry))
}

func start(ctx context.Context, ld loader.Loader, eng script.Engine, o Options) (*RunContext, *Result) {
	id := o.RunIDs.Generate()
	return newRunContext(ctx, id, ld, eng, o), &Result{RunID: id, StartedAt: time.Now()}
}

// prepare resolves the entry, builds the static graph, and links it.
func (rc *RunContext) prepare(ctx context.Context, res *Result, entry string) error {
	s, err := rc.Loader.Resolve(nil, entry)
	if err != nil {
		return err
	}
	rc.Entry, res.Entry = s, s
	rc.Logger.Info("run started", "specifier", s.String())

	g, err := rc.Builder.Build(ctx, s)
	rc.Graph, res.Graph = g, g
	if err != nil {
		return interrupted(ctx, err)
	}
	res.Cycles = graph.Cycles(g)
	for _, w := range res.Cycles {
		rc.Logger.Debug("import cycle", "path", w.Path)
	}

	if _, err := rc.Linker.Link(ctx, g, s); err != nil {
		return interrupted(ctx, err)
	}
	return nil
}

// interrupted reports err as a cancellation when ctx ended while the graph
// was being built or linked.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, loop.ErrCancelled) {
		return &loop.CancelledError{Cause: ctx.Err()}
	}
	return err
}

// evaluationFailure converts loop failures into the host taxonomy. A task
// that failed after its module's body settled is attributed to that module.
func (rc *RunContext) evaluationFailure(err error) error {
	var te *loop.TaskError
	if errors.As(err, &te) {
		return rc.Driver.fail(rc, te.Owner, te.Cause)
	}
	return normalize(err)
}

func (rc *RunContext) finish(res *Result, err error) (*Result, error) {
	res.Duration = time.Since(res.StartedAt)
	res.Modules = summarize(rc.Graph)
	res.Trace = rc.Recorder.Events()

	if err != nil {
		rc.Logger.Debug("run failed",
			"specifier", SpecifierOf(err),
			"code", string(CodeOf(err)),
			"error", err,
		)
		return res, err
	}
	rc.Logger.Info("run finished",
		"specifier", res.Entry.String(),
		"modules", len(res.Modules),
		"duration", res.Duration,
	)
	return res, nil
}

func summarize(g *graph.Graph) []ModuleSummary {
	if g == nil {
		return nil
	}
	specs := g.Specifiers()
	out := make([]ModuleSummary, 0, len(specs))
	for _, s := range specs {
		r, _ := g.Get(s)
		m := ModuleSummary{
			Specifier: s.String(),
			State:     r.State.String(),
			MediaType: r.MediaType,
			Hash:      r.Hash,
			Dynamic:   r.Dynamic,
		}
		if !r.Referrer.IsZero() {
			m.Referrer = r.Referrer.String()
		}
		if r.Err != nil {
			m.Error = r.Err.Error()
		}
		out = append(out, m)
	}
	return out
}
