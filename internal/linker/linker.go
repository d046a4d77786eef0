// Package linker orders a module graph and binds every module's imports to
// its dependencies' exports before any module is evaluated.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/specifier"
)

// LinkError reports an import that cannot be bound.
type LinkError struct {
	// Specifier is the importing module.
	Specifier specifier.Specifier

	// Dependency is the module the import was resolved to.
	Dependency specifier.Specifier

	// MissingExport is the requested name the dependency does not export.
	MissingExport string

	// Cause is set when the engine rejected the bindings.
	Cause error
}

// Error implements the error interface.
func (e *LinkError) Error() string {
	if e.MissingExport != "" {
		return fmt.Sprintf("link %s: %s does not export %q", e.Specifier, e.Dependency, e.MissingExport)
	}
	return fmt.Sprintf("link %s: %v", e.Specifier, e.Cause)
}

// Unwrap returns the engine error, if any.
func (e *LinkError) Unwrap() error {
	return e.Cause
}

// Order returns the modules reachable from root in dependency order: a
// post-order depth-first traversal that visits import edges in declaration
// order and each module once. Under cycles the first edge discovered wins.
func Order(g *graph.Graph, root specifier.Specifier) []specifier.Specifier {
	var (
		out     []specifier.Specifier
		visited = make(map[specifier.Specifier]bool)
	)
	var visit func(specifier.Specifier)
	visit = func(s specifier.Specifier) {
		if visited[s] || !g.Has(s) {
			return
		}
		visited[s] = true
		for _, dep := range g.Dependencies(s) {
			visit(dep)
		}
		out = append(out, s)
	}
	visit(root)
	return out
}

// ExportNames returns every name s exports: its own declared exports plus
// the names of its star re-exports, excluding their default. The result is
// sorted.
func ExportNames(g *graph.Graph, s specifier.Specifier) []string {
	set := make(map[string]bool)
	collectExports(g, s, set, make(map[specifier.Specifier]bool), true)
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func collectExports(g *graph.Graph, s specifier.Specifier, set map[string]bool, visited map[specifier.Specifier]bool, own bool) {
	if visited[s] {
		return
	}
	visited[s] = true
	r, ok := g.Get(s)
	if !ok {
		return
	}
	for _, n := range r.Exports {
		if !own && n == script.Default {
			continue
		}
		set[n] = true
	}
	for _, star := range r.StarExports {
		collectExports(g, star, set, visited, false)
	}
}

// Linker instantiates modules through the engine.
type Linker struct {
	engine script.Engine
	logger *slog.Logger
}

// New creates a linker. A nil logger uses slog.Default().
func New(eng script.Engine, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{engine: eng, logger: logger}
}

// Link binds and instantiates every not-yet-linked module reachable from
// root, in Order. It returns that order.
func (l *Linker) Link(ctx context.Context, g *graph.Graph, root specifier.Specifier) ([]specifier.Specifier, error) {
	order := Order(g, root)
	for _, s := range order {
		r, _ := g.Get(s)
		if r.State != graph.Parsed {
			continue
		}

		bindings, err := l.bindings(g, r)
		if err != nil {
			g.Fail(s, err)
			return order, err
		}
		if err := l.engine.Instantiate(ctx, r.Handle, bindings); err != nil {
			le := &LinkError{Specifier: s, Cause: err}
			g.Fail(s, le)
			return order, le
		}
		g.SetState(s, graph.Linked)
	}
	l.logger.Debug("module graph linked", "specifier", root.String(), "modules", len(order))
	return order, nil
}

func (l *Linker) bindings(g *graph.Graph, r *graph.Record) ([]script.Binding, error) {
	var out []script.Binding
	for _, e := range r.Imports {
		if e.Dynamic || e.Resolved.IsZero() || len(e.Names) == 0 {
			continue
		}
		dep, ok := g.Get(e.Resolved)
		if !ok {
			return nil, &LinkError{Specifier: r.Specifier, Dependency: e.Resolved, Cause: fmt.Errorf("%s is not in the graph", e.Resolved)}
		}

		exports := make(map[string]bool)
		for _, n := range ExportNames(g, e.Resolved) {
			exports[n] = true
		}
		for _, n := range e.Names {
			if n.Imported != script.Namespace && !exports[n.Imported] {
				return nil, &LinkError{Specifier: r.Specifier, Dependency: e.Resolved, MissingExport: n.Imported}
			}
			out = append(out, script.Binding{
				Local:      n.Local,
				Imported:   n.Imported,
				From:       e.Resolved,
				FromHandle: dep.Handle,
			})
		}
	}
	for _, star := range r.StarExports {
		dep, ok := g.Get(star)
		if !ok {
			continue
		}
		out = append(out, script.Binding{Imported: script.Namespace, From: star, FromHandle: dep.Handle, Star: true})
	}
	return out, nil
}
