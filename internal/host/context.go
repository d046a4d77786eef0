package host

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/linker"
	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/trace"
	"github.com/roach88/modhost/internal/value"
)

// RunContext is the state of one run. It is created by Run and passed
// explicitly to the driver and to every module runtime.
type RunContext struct {
	ID       string
	Entry    specifier.Specifier
	Graph    *graph.Graph
	Loop     *loop.Loop
	Engine   script.Engine
	Loader   loader.Loader
	Builder  *graph.Builder
	Linker   *linker.Linker
	Driver   *Driver
	Logger   *slog.Logger
	Recorder *trace.Recorder
	Options  Options

	ctx context.Context

	// evaluating holds the body promise of every module whose evaluation
	// has started and not yet settled.
	evaluating map[specifier.Specifier]*loop.Promise

	// loading holds specifiers whose fetch is in flight.
	loading map[specifier.Specifier]bool

	// parked are dynamic imports waiting for modules another import is
	// still loading. They are retried after every integrated wave.
	parked []func()
}

func newRunContext(ctx context.Context, id string, ld loader.Loader, eng script.Engine, o Options) *RunContext {
	rc := &RunContext{
		ID:         id,
		Engine:     eng,
		Loader:     ld,
		Logger:     o.Logger.With("run_id", id),
		Recorder:   o.Recorder,
		Options:    o,
		ctx:        ctx,
		evaluating: make(map[specifier.Specifier]*loop.Promise),
		loading:    make(map[specifier.Specifier]bool),
	}
	rc.Builder = graph.NewBuilder(ld, eng,
		graph.WithMaxConcurrentLoads(o.MaxConcurrentLoads),
		graph.WithLogger(rc.Logger),
		graph.WithStateObserver(rc.observeState),
	)
	rc.Linker = linker.New(eng, rc.Logger)
	rc.Driver = &Driver{}
	rc.Loop = loop.New(
		loop.WithTimeSource(o.TimeSource),
		loop.WithObserver(rc.Recorder),
		loop.WithLogger(rc.Logger),
	)
	return rc
}

// Context returns the run's context.
func (rc *RunContext) Context() context.Context { return rc.ctx }

// Runtime returns the script runtime for module s.
func (rc *RunContext) Runtime(s specifier.Specifier) script.Runtime {
	return &moduleRuntime{rc: rc, spec: s}
}

func (rc *RunContext) observeState(s specifier.Specifier, st graph.State) {
	rc.Recorder.ModuleState(s, st.String())
	rc.Logger.Debug("module state changed", "specifier", s.String(), "state", st.String())
}

// importModule starts a dynamic import of raw from referrer. The returned
// promise resolves to the module's namespace once the module and every
// module it newly pulls in are loaded, linked, and evaluated.
func (rc *RunContext) importModule(ctx context.Context, referrer specifier.Specifier, raw string) *loop.Promise {
	p := rc.Loop.NewPromise(referrer, "import:"+raw)
	s, wave, err := rc.Builder.Begin(rc.Graph, referrer, raw)
	if err != nil {
		p.Reject(&graph.GraphError{Specifier: referrer, Cause: err})
		return p
	}
	rc.Logger.Debug("dynamic import", "specifier", referrer.String(), "target", s.String())
	rc.extend(ctx, p, s, wave)
	return p
}

// extend fetches wave off the loop and integrates it in a completion
// macrotask, repeating until the subgraph under s is complete.
func (rc *RunContext) extend(ctx context.Context, p *loop.Promise, s specifier.Specifier, wave []specifier.Specifier) {
	if len(wave) == 0 {
		rc.settleImport(ctx, p, s)
		return
	}
	for _, w := range wave {
		rc.loading[w] = true
	}
	hold := rc.Loop.Hold(s, "load:"+s.String())
	go func() {
		fetched := rc.Builder.Fetch(ctx, wave)
		hold.Complete(func() error {
			for _, w := range wave {
				delete(rc.loading, w)
			}
			next, err := rc.Builder.Integrate(ctx, rc.Graph, fetched)
			if err != nil {
				rc.abandon(err)
				p.Reject(err)
			} else {
				rc.extend(ctx, p, s, next)
			}
			rc.retryParked()
			return nil
		})
	}()
}

// settleImport links and evaluates the subgraph under s, then resolves p
// with s's namespace.
func (rc *RunContext) settleImport(ctx context.Context, p *loop.Promise, s specifier.Specifier) {
	for _, dep := range linker.Order(rc.Graph, s) {
		r, _ := rc.Graph.Get(dep)
		switch r.State {
		case graph.Fetching, graph.Fetched:
			rc.parked = append(rc.parked, func() { rc.settleImport(ctx, p, s) })
			return
		case graph.Errored:
			p.Reject(r.Err)
			return
		}
	}

	if _, err := rc.Linker.Link(ctx, rc.Graph, s); err != nil {
		p.Reject(err)
		return
	}
	rc.Driver.run(rc, s, func(err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		r, _ := rc.Graph.Get(s)
		ns, err := rc.Engine.Namespace(r.Handle)
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(ns)
	})
}

// abandon fails every record left unloaded by an aborted wave, so imports
// waiting on them do not wait forever.
func (rc *RunContext) abandon(err error) {
	for _, s := range rc.Graph.Specifiers() {
		r, _ := rc.Graph.Get(s)
		if r.State == graph.Fetching && !rc.loading[s] {
			rc.Graph.Fail(s, err)
		}
	}
}

func (rc *RunContext) retryParked() {
	parked := rc.parked
	rc.parked = nil
	for _, fn := range parked {
		fn()
	}
}

// moduleRuntime is the script.Runtime of one module. Everything it
// schedules is attributed to that module.
type moduleRuntime struct {
	rc   *RunContext
	spec specifier.Specifier
}

var _ script.Runtime = (*moduleRuntime)(nil)

func (m *moduleRuntime) Specifier() specifier.Specifier { return m.spec }

func (m *moduleRuntime) QueueMicrotask(name string, fn func() error) {
	m.rc.Loop.QueueMicrotask(m.spec, name, fn)
}

func (m *moduleRuntime) SetTimeout(name string, delay time.Duration, fn func() error) loop.TimerID {
	return m.rc.Loop.SetTimeout(m.spec, name, delay, fn)
}

func (m *moduleRuntime) StartIO(ctx context.Context, name string, work func(context.Context) (value.Value, error)) *loop.Promise {
	return m.rc.Loop.StartIO(ctx, m.spec, name, work)
}

func (m *moduleRuntime) NewPromise(name string) *loop.Promise {
	return m.rc.Loop.NewPromise(m.spec, name)
}

func (m *moduleRuntime) Import(ctx context.Context, referrer specifier.Specifier, raw string) *loop.Promise {
	return m.rc.importModule(ctx, referrer, raw)
}

func (m *moduleRuntime) Logger() *slog.Logger {
	return m.rc.Logger
}

func (m *moduleRuntime) Recorder() *trace.Recorder {
	return m.rc.Recorder
}
