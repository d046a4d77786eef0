package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/modhost/internal/specifier"
)

// CycleWarning describes an import cycle. Cycles are legal; they are
// reported so that users can see where evaluation order is best-effort.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// Cycles finds import cycles over static edges using Tarjan's strongly
// connected components. Nodes are visited in discovery order so the
// report is deterministic.
func Cycles(g *Graph) []CycleWarning {
	var (
		index   = 0
		stack   []specifier.Specifier
		indices = make(map[specifier.Specifier]int)
		lowlink = make(map[specifier.Specifier]int)
		onStack = make(map[specifier.Specifier]bool)
		sccs    [][]specifier.Specifier
	)

	var strongConnect func(specifier.Specifier)
	strongConnect = func(v specifier.Specifier) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Dependencies(v) {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []specifier.Specifier
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, s := range g.order {
		if _, visited := indices[s]; !visited {
			strongConnect(s)
		}
	}

	var warnings []CycleWarning
	for _, scc := range sccs {
		if len(scc) == 1 && !importsSelf(g, scc[0]) {
			continue
		}
		path := cyclePath(g, scc)
		warnings = append(warnings, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("import cycle: %s", strings.Join(path, " -> ")),
			Level:   "warning",
		})
	}
	return warnings
}

func importsSelf(g *Graph, s specifier.Specifier) bool {
	for _, d := range g.Dependencies(s) {
		if d == s {
			return true
		}
	}
	return false
}

// cyclePath walks the cycle starting from the member discovered first,
// following edges that stay inside the component, and closes the loop.
func cyclePath(g *Graph, scc []specifier.Specifier) []string {
	members := make(map[specifier.Specifier]bool, len(scc))
	for _, s := range scc {
		members[s] = true
	}
	var start specifier.Specifier
	for _, s := range g.order {
		if members[s] {
			start = s
			break
		}
	}

	path := []string{start.String()}
	visited := map[specifier.Specifier]bool{start: true}
	cur := start
	for {
		var next specifier.Specifier
		closes := false
		for _, d := range g.Dependencies(cur) {
			if !members[d] {
				continue
			}
			if d == start {
				closes = true
			}
			if !visited[d] && next.IsZero() {
				next = d
			}
		}
		if next.IsZero() {
			if closes || len(scc) == 1 {
				path = append(path, start.String())
			}
			return path
		}
		visited[next] = true
		path = append(path, next.String())
		cur = next
	}
}
