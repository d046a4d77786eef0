// Package graph builds and holds the module graph of a run.
//
// The graph maps each canonical specifier to exactly one Record. Records
// are created in Fetching state when a specifier is first discovered and
// are never re-fetched or re-parsed afterwards, which is what makes import
// cycles terminate and keeps loader fetches at one per specifier.
package graph

import (
	"fmt"

	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/specifier"
)

// State is a module's lifecycle state.
type State int

const (
	Fetching State = iota
	Fetched
	Parsed
	Linked
	Evaluating
	Evaluated
	Errored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Fetched:
		return "fetched"
	case Parsed:
		return "parsed"
	case Linked:
		return "linked"
	case Evaluating:
		return "evaluating"
	case Evaluated:
		return "evaluated"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Edge is one import declaration of a module.
//
// Static edges are resolved while the graph is built. Dynamic edges keep
// only the requested text until the import runs.
type Edge struct {
	Requested string
	Resolved  specifier.Specifier
	Names     []script.ImportName
	Dynamic   bool
}

// Record is the graph's entry for one module.
type Record struct {
	Specifier   specifier.Specifier
	State       State
	Source      string
	MediaType   loader.MediaType
	Hash        string
	Imports     []Edge
	Exports     []string
	StarExports []specifier.Specifier
	Handle      script.Handle
	Err         error

	// Referrer is the module that first imported this one (zero for the
	// entry).
	Referrer specifier.Specifier

	// Dynamic is set for modules first reached through a dynamic import.
	Dynamic bool
}

// Graph is the set of discovered modules rooted at an entry specifier.
//
// Thread-safety: a Graph is owned by one goroutine at a time (the
// builder's caller, then the event loop).
type Graph struct {
	entry   specifier.Specifier
	records map[specifier.Specifier]*Record
	order   []specifier.Specifier
	observe func(specifier.Specifier, State)
}

// New creates a graph containing only the entry module, in Fetching state.
func New(entry specifier.Specifier) *Graph {
	return newGraph(entry, nil)
}

func newGraph(entry specifier.Specifier, observe func(specifier.Specifier, State)) *Graph {
	g := &Graph{
		entry:   entry,
		records: make(map[specifier.Specifier]*Record),
		observe: observe,
	}
	g.add(entry, specifier.Specifier{}, false)
	return g
}

// Observe registers a hook called on every state change.
func (g *Graph) Observe(fn func(specifier.Specifier, State)) {
	g.observe = fn
}

// Entry returns the entry specifier.
func (g *Graph) Entry() specifier.Specifier { return g.entry }

// Get returns the record for s.
func (g *Graph) Get(s specifier.Specifier) (*Record, bool) {
	r, ok := g.records[s]
	return r, ok
}

// Has reports whether s is in the graph.
func (g *Graph) Has(s specifier.Specifier) bool {
	_, ok := g.records[s]
	return ok
}

// Len returns the number of modules.
func (g *Graph) Len() int { return len(g.records) }

// Specifiers returns all modules in discovery order.
func (g *Graph) Specifiers() []specifier.Specifier {
	out := make([]specifier.Specifier, len(g.order))
	copy(out, g.order)
	return out
}

// Dependencies returns the resolved static imports of s in declaration
// order, without duplicates.
func (g *Graph) Dependencies(s specifier.Specifier) []specifier.Specifier {
	r, ok := g.records[s]
	if !ok {
		return nil
	}
	seen := make(map[specifier.Specifier]bool, len(r.Imports))
	var out []specifier.Specifier
	for _, e := range r.Imports {
		if e.Dynamic || e.Resolved.IsZero() || seen[e.Resolved] {
			continue
		}
		seen[e.Resolved] = true
		out = append(out, e.Resolved)
	}
	return out
}

// Dependents returns modules with a static import of s, in discovery order.
func (g *Graph) Dependents(s specifier.Specifier) []specifier.Specifier {
	var out []specifier.Specifier
	for _, from := range g.order {
		for _, dep := range g.Dependencies(from) {
			if dep == s {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// SetState moves s to state and notifies the observer.
func (g *Graph) SetState(s specifier.Specifier, state State) {
	r, ok := g.records[s]
	if !ok || r.State == state {
		return
	}
	r.State = state
	if g.observe != nil {
		g.observe(s, state)
	}
}

// Fail marks s as Errored with err.
func (g *Graph) Fail(s specifier.Specifier, err error) {
	if r, ok := g.records[s]; ok {
		r.Err = err
		g.SetState(s, Errored)
	}
}

func (g *Graph) add(s, referrer specifier.Specifier, dynamic bool) *Record {
	r := &Record{Specifier: s, State: Fetching, Referrer: referrer, Dynamic: dynamic}
	g.records[s] = r
	g.order = append(g.order, s)
	if g.observe != nil {
		g.observe(s, Fetching)
	}
	return r
}

// GraphError reports a load or parse failure during graph construction.
type GraphError struct {
	// Specifier is the module that failed to load or parse.
	Specifier specifier.Specifier

	// Referrer is the module that imported it (zero for the entry).
	Referrer specifier.Specifier

	Cause error
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	if !e.Referrer.IsZero() {
		return fmt.Sprintf("module graph: %s (imported by %s): %v", e.Specifier, e.Referrer, e.Cause)
	}
	return fmt.Sprintf("module graph: %s: %v", e.Specifier, e.Cause)
}

// Unwrap returns the underlying load or parse error.
func (e *GraphError) Unwrap() error {
	return e.Cause
}
