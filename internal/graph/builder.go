package graph

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/specifier"
)

// DefaultMaxConcurrentLoads bounds the loads in flight within one wave.
const DefaultMaxConcurrentLoads = 8

// FetchResult is the outcome of loading one specifier of a wave.
type FetchResult struct {
	Specifier specifier.Specifier
	Source    loader.Source
	Err       error
}

// Builder constructs graphs breadth-first.
//
// Each wave loads every newly discovered specifier concurrently through
// the Loader. Results are then integrated one by one, in discovery order,
// on the caller's goroutine: parse declarations, resolve imports, create
// records for unseen specifiers. The next wave is exactly the specifiers
// that integration created.
type Builder struct {
	loader        loader.Loader
	engine        script.Engine
	maxConcurrent int
	logger        *slog.Logger
	observe       func(specifier.Specifier, State)
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMaxConcurrentLoads bounds concurrent loads per wave. Values below 1
// mean unbounded.
func WithMaxConcurrentLoads(n int) BuilderOption {
	return func(b *Builder) {
		b.maxConcurrent = n
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithStateObserver installs a hook on every graph the builder creates.
func WithStateObserver(fn func(specifier.Specifier, State)) BuilderOption {
	return func(b *Builder) {
		b.observe = fn
	}
}

// NewBuilder creates a builder.
func NewBuilder(ld loader.Loader, eng script.Engine, opts ...BuilderOption) *Builder {
	b := &Builder{
		loader:        ld,
		engine:        eng,
		maxConcurrent: DefaultMaxConcurrentLoads,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build loads the full static graph reachable from entry. Any load or
// parse failure fails the whole build with *GraphError.
func (b *Builder) Build(ctx context.Context, entry specifier.Specifier) (*Graph, error) {
	g := newGraph(entry, b.observe)
	wave := []specifier.Specifier{entry}
	for len(wave) > 0 {
		fetched := b.Fetch(ctx, wave)
		next, err := b.Integrate(ctx, g, fetched)
		if err != nil {
			return g, err
		}
		wave = next
	}
	b.logger.Debug("module graph built", "specifier", entry.String(), "modules", g.Len())
	return g, nil
}

// Begin starts a dynamic import of raw from base. It returns the resolved
// specifier and the first wave to fetch, which is empty when the module is
// already in the graph.
func (b *Builder) Begin(g *Graph, base specifier.Specifier, raw string) (specifier.Specifier, []specifier.Specifier, error) {
	s, err := b.loader.Resolve(&base, raw)
	if err != nil {
		return specifier.Specifier{}, nil, err
	}

	if r, ok := g.records[base]; ok {
		resolved := false
		for i := range r.Imports {
			e := &r.Imports[i]
			if e.Dynamic && e.Requested == raw && e.Resolved.IsZero() {
				e.Resolved = s
				resolved = true
				break
			}
		}
		if !resolved {
			r.Imports = append(r.Imports, Edge{Requested: raw, Resolved: s, Dynamic: true})
		}
	}

	if g.Has(s) {
		return s, nil, nil
	}
	g.add(s, base, true)
	return s, []specifier.Specifier{s}, nil
}

// Fetch loads every specifier of a wave concurrently. It does not touch
// the graph and is safe to call from any goroutine. Per-specifier errors
// are reported in the results, in wave order.
func (b *Builder) Fetch(ctx context.Context, wave []specifier.Specifier) []FetchResult {
	results := make([]FetchResult, len(wave))
	var eg errgroup.Group
	if b.maxConcurrent > 0 {
		eg.SetLimit(b.maxConcurrent)
	}
	for i, s := range wave {
		eg.Go(func() error {
			src, err := b.loader.Load(ctx, s)
			results[i] = FetchResult{Specifier: s, Source: src, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// Integrate adds a fetched wave to g and returns the next wave. The first
// failure in wave order aborts integration with *GraphError.
func (b *Builder) Integrate(ctx context.Context, g *Graph, fetched []FetchResult) ([]specifier.Specifier, error) {
	var next []specifier.Specifier
	for _, f := range fetched {
		r, ok := g.records[f.Specifier]
		if !ok {
			continue
		}
		fail := func(s specifier.Specifier, cause error) error {
			g.Fail(s, cause)
			b.logger.Debug("module graph failed", "specifier", s.String(), "error", cause)
			return &GraphError{Specifier: s, Referrer: g.records[s].Referrer, Cause: cause}
		}

		if f.Err != nil {
			return nil, fail(r.Specifier, f.Err)
		}
		r.Source = f.Source.Text
		r.MediaType = f.Source.MediaType
		r.Hash = f.Source.Hash
		g.SetState(r.Specifier, Fetched)

		info, err := b.engine.Parse(ctx, f.Source)
		if err != nil {
			return nil, fail(r.Specifier, err)
		}
		r.Handle = info.Handle
		r.Exports = info.Exports
		g.SetState(r.Specifier, Parsed)

		for _, imp := range info.Imports {
			if imp.Dynamic {
				r.Imports = append(r.Imports, Edge{Requested: imp.Specifier, Names: imp.Names, Dynamic: true})
				continue
			}
			s, err := b.loader.Resolve(&r.Specifier, imp.Specifier)
			if err != nil {
				return nil, fail(r.Specifier, err)
			}
			r.Imports = append(r.Imports, Edge{Requested: imp.Specifier, Resolved: s, Names: imp.Names})
			if !g.Has(s) {
				g.add(s, r.Specifier, r.Dynamic)
				next = append(next, s)
			}
		}

		for _, raw := range info.StarExports {
			s, err := b.loader.Resolve(&r.Specifier, raw)
			if err != nil {
				return nil, fail(r.Specifier, err)
			}
			r.StarExports = append(r.StarExports, s)
			if !g.Has(s) {
				r.Imports = append(r.Imports, Edge{Requested: raw, Resolved: s})
				g.add(s, r.Specifier, r.Dynamic)
				next = append(next, s)
			}
		}
	}
	return next, nil
}
