package modscript

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/value"
)

type status int

const (
	statusNew status = iota
	statusEvaluating
	statusEvaluated
	statusFailed
)

// module is the engine-side state behind a Handle.
type module struct {
	handle    script.Handle
	spec      specifier.Specifier
	mediaType loader.MediaType

	// Exactly one of code and data is set.
	code *compiled
	data value.Value

	instantiated bool
	bindings     map[string]script.Binding
	stars        []script.Handle

	status      status
	evaluations int
	vars        map[string]value.Value
	exports     value.Object
}

// Engine implements script.Engine for modscript, JSON, and CUE modules.
//
// Parse may be called from any goroutine. Instantiate, Evaluate, and
// everything a module body schedules run on the host's loop goroutine.
type Engine struct {
	mu      sync.Mutex
	next    script.Handle
	modules map[script.Handle]*module
}

// New creates an engine with no modules.
func New() *Engine {
	return &Engine{modules: make(map[script.Handle]*module)}
}

var _ script.Engine = (*Engine)(nil)

// Parse implements script.Engine.
func (e *Engine) Parse(ctx context.Context, src loader.Source) (*script.ModuleInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &module{spec: src.Specifier, mediaType: src.MediaType}
	var err error
	switch src.MediaType {
	case loader.MediaYAML:
		m.code, err = parseScript(src.Text)
	case loader.MediaJSON:
		m.data, err = parseJSON(src.Text)
	case loader.MediaCUE:
		m.data, err = parseCUE(cuecontext.New(), src.Specifier.String(), src.Text)
	case loader.MediaJavaScript, loader.MediaTypeScript:
		err = fmt.Errorf("no interpreter for %s modules", src.MediaType)
	default:
		err = errors.New("unsupported media type")
	}
	if err != nil {
		return nil, &script.ParseError{Specifier: src.Specifier, MediaType: src.MediaType, Cause: err}
	}

	e.mu.Lock()
	e.next++
	m.handle = e.next
	e.modules[m.handle] = m
	e.mu.Unlock()

	info := &script.ModuleInfo{Handle: m.handle}
	if m.code != nil {
		info.Imports = m.code.imports
		info.StarExports = m.code.reexports
		for _, d := range m.code.exports {
			info.Exports = append(info.Exports, d.name)
		}
	} else {
		info.Exports = dataExportNames(m.data)
	}
	return info, nil
}

// Instantiate implements script.Engine.
func (e *Engine) Instantiate(ctx context.Context, h script.Handle, bindings []script.Binding) error {
	m, err := e.module(h)
	if err != nil {
		return err
	}
	if m.instantiated {
		return fmt.Errorf("%s is already instantiated", m.spec)
	}

	m.bindings = make(map[string]script.Binding, len(bindings))
	for _, b := range bindings {
		if b.Star {
			m.stars = append(m.stars, b.FromHandle)
			continue
		}
		if _, dup := m.bindings[b.Local]; dup {
			return fmt.Errorf("%s: duplicate binding %q", m.spec, b.Local)
		}
		m.bindings[b.Local] = b
	}
	if m.code != nil {
		for _, imp := range m.code.imports {
			if imp.Dynamic {
				continue
			}
			for _, n := range imp.Names {
				if _, ok := m.bindings[n.Local]; !ok {
					return fmt.Errorf("%s: import %q from %q is unbound", m.spec, n.Local, imp.Specifier)
				}
			}
		}
	}
	m.instantiated = true
	return nil
}

// Evaluate implements script.Engine.
func (e *Engine) Evaluate(ctx context.Context, h script.Handle, rt script.Runtime) (*loop.Promise, error) {
	m, err := e.module(h)
	if err != nil {
		return nil, err
	}
	if !m.instantiated {
		return nil, fmt.Errorf("%s is not instantiated", m.spec)
	}
	if m.status != statusNew {
		return nil, fmt.Errorf("%s has already been evaluated", m.spec)
	}
	m.evaluations++
	m.status = statusEvaluating

	if m.code == nil {
		m.exports = dataExports(m.data)
		m.status = statusEvaluated
		return nil, nil
	}

	m.vars = make(map[string]value.Value)
	ev := &evaluation{
		ctx: ctx,
		rt:  rt,
		env: &env{eng: e, mod: m, spec: m.spec},
	}
	return ev.start()
}

// Namespace implements script.Engine.
func (e *Engine) Namespace(h script.Handle) (value.Object, error) {
	return e.namespace(h, make(map[script.Handle]bool))
}

func (e *Engine) namespace(h script.Handle, visited map[script.Handle]bool) (value.Object, error) {
	m, err := e.module(h)
	if err != nil {
		return nil, err
	}
	if m.status != statusEvaluated {
		return nil, &ReferenceError{Specifier: m.spec, Name: script.Namespace, Reason: "module is not evaluated"}
	}
	visited[h] = true

	ns := make(value.Object, len(m.exports))
	for k, v := range m.exports {
		ns[k] = v
	}
	for _, star := range m.stars {
		if visited[star] {
			continue
		}
		sub, err := e.namespace(star, visited)
		if err != nil {
			return nil, err
		}
		for k, v := range sub {
			if k == script.Default {
				continue
			}
			if _, taken := ns[k]; !taken {
				ns[k] = v
			}
		}
	}
	return ns, nil
}

// Evaluations returns how many times the module behind h was evaluated.
func (e *Engine) Evaluations(h script.Handle) int {
	m, err := e.module(h)
	if err != nil {
		return 0
	}
	return m.evaluations
}

// EvaluationsOf returns the evaluation count of the module parsed from s,
// summed over every handle issued for it.
func (e *Engine) EvaluationsOf(s specifier.Specifier) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.modules {
		if m.spec == s {
			n += m.evaluations
		}
	}
	return n
}

func (e *Engine) module(h script.Handle) (*module, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.modules[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return m, nil
}
