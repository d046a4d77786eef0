package modscript

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/value"
)

type moduleDoc struct {
	Imports  []importDoc `yaml:"imports"`
	Exports  yaml.Node   `yaml:"exports"`
	Reexport []string    `yaml:"reexport"`
	Body     []stepDoc   `yaml:"body"`
}

type importDoc struct {
	From      string            `yaml:"from"`
	Names     map[string]string `yaml:"names"`
	Default   string            `yaml:"default"`
	Namespace string            `yaml:"namespace"`
}

type stepDoc struct {
	Log       yaml.Node `yaml:"log"`
	Set       string    `yaml:"set"`
	Value     yaml.Node `yaml:"value"`
	Microtask string    `yaml:"microtask"`
	Timeout   string    `yaml:"timeout"`
	IO        string    `yaml:"io"`
	Delay     string    `yaml:"delay"`
	Then      []stepDoc `yaml:"then"`
	Await     yaml.Node `yaml:"await"`
	As        string    `yaml:"as"`
	Import    string    `yaml:"import"`
	Throw     string    `yaml:"throw"`
	Reject    string    `yaml:"reject"`
}

type awaitDoc struct {
	Timeout string `yaml:"timeout"`
	Import  string `yaml:"import"`
	IO      string `yaml:"io"`
	Delay   string `yaml:"delay"`
}

type opKind int

const (
	opLog opKind = iota + 1
	opSet
	opMicrotask
	opTimeout
	opIO
	opAwait
	opImport
	opThrow
	opReject
)

func (o opKind) String() string {
	switch o {
	case opLog:
		return "log"
	case opSet:
		return "set"
	case opMicrotask:
		return "microtask"
	case opTimeout:
		return "timeout"
	case opIO:
		return "io"
	case opAwait:
		return "await"
	case opImport:
		return "import"
	case opThrow:
		return "throw"
	case opReject:
		return "reject"
	default:
		return "unknown"
	}
}

type awaitKind int

const (
	awaitTimeout awaitKind = iota + 1
	awaitNever
	awaitImport
	awaitIO
)

type step struct {
	op     opKind
	name   string
	expr   expr
	delay  time.Duration
	then   []step
	await  awaitKind
	target string
	as     string
}

type exportDecl struct {
	name string
	expr expr
}

// compiled is the parsed form of a script module.
type compiled struct {
	imports   []script.Import
	exports   []exportDecl
	reexports []string
	body      []step
}

// parseScript compiles a YAML module. Unknown keys are rejected.
func parseScript(text string) (*compiled, error) {
	var doc moduleDoc
	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	c := &compiled{reexports: doc.Reexport}

	for i, imp := range doc.Imports {
		if imp.From == "" {
			return nil, fmt.Errorf("imports[%d]: missing from", i)
		}
		c.imports = append(c.imports, script.Import{
			Specifier: imp.From,
			Names:     importNames(imp),
		})
	}
	for _, r := range doc.Reexport {
		c.imports = append(c.imports, script.Import{Specifier: r})
	}

	if doc.Exports.Kind != 0 {
		if doc.Exports.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: exports must be a mapping", doc.Exports.Line)
		}
		seen := make(map[string]bool)
		for i := 0; i+1 < len(doc.Exports.Content); i += 2 {
			name := doc.Exports.Content[i].Value
			if seen[name] {
				return nil, fmt.Errorf("line %d: duplicate export %q", doc.Exports.Content[i].Line, name)
			}
			seen[name] = true
			e, err := parseExpr(doc.Exports.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("export %q: %w", name, err)
			}
			c.exports = append(c.exports, exportDecl{name: name, expr: e})
		}
	}

	body, err := parseSteps(doc.Body, false)
	if err != nil {
		return nil, err
	}
	c.body = body
	c.imports = append(c.imports, dynamicImports(body)...)
	return c, nil
}

// importNames lists the bindings of one import declaration. Named imports
// are sorted by local name so the order is stable.
func importNames(imp importDoc) []script.ImportName {
	var names []script.ImportName
	if imp.Default != "" {
		names = append(names, script.ImportName{Imported: script.Default, Local: imp.Default})
	}
	if imp.Namespace != "" {
		names = append(names, script.ImportName{Imported: script.Namespace, Local: imp.Namespace})
	}
	locals := make([]string, 0, len(imp.Names))
	for local := range imp.Names {
		locals = append(locals, local)
	}
	sort.Strings(locals)
	for _, local := range locals {
		imported := imp.Names[local]
		if imported == "" {
			imported = local
		}
		names = append(names, script.ImportName{Imported: imported, Local: local})
	}
	return names
}

func dynamicImports(steps []step) []script.Import {
	var out []script.Import
	for _, s := range steps {
		switch {
		case s.op == opImport, s.op == opAwait && s.await == awaitImport:
			out = append(out, script.Import{Specifier: s.target, Dynamic: true})
		}
		out = append(out, dynamicImports(s.then)...)
	}
	return out
}

func parseSteps(docs []stepDoc, nested bool) ([]step, error) {
	steps := make([]step, 0, len(docs))
	for i, d := range docs {
		s, err := parseStep(d, nested)
		if err != nil {
			return nil, fmt.Errorf("body[%d]: %w", i, err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func parseStep(d stepDoc, nested bool) (step, error) {
	var s step
	ops := 0
	mark := func(op opKind, set bool) {
		if set {
			ops++
			s.op = op
		}
	}
	mark(opLog, d.Log.Kind != 0)
	mark(opSet, d.Set != "")
	mark(opMicrotask, d.Microtask != "")
	mark(opTimeout, d.Timeout != "")
	mark(opIO, d.IO != "")
	mark(opAwait, d.Await.Kind != 0)
	mark(opImport, d.Import != "")
	mark(opThrow, d.Throw != "")
	mark(opReject, d.Reject != "")
	if ops != 1 {
		return step{}, fmt.Errorf("each step needs exactly one operation, found %d", ops)
	}

	delay, err := parseDelay(d.Delay)
	if err != nil {
		return step{}, err
	}
	s.delay = delay
	s.as = d.As

	if len(d.Then) > 0 {
		switch s.op {
		case opMicrotask, opTimeout, opIO, opImport:
		default:
			return step{}, fmt.Errorf("%s does not take then", s.op)
		}
		if s.then, err = parseSteps(d.Then, true); err != nil {
			return step{}, err
		}
	}

	switch s.op {
	case opLog:
		s.expr, err = parseExpr(&d.Log)
	case opSet:
		s.name = d.Set
		if d.Value.Kind == 0 {
			s.expr = literalExpr{v: value.Null{}}
		} else {
			s.expr, err = parseExpr(&d.Value)
		}
	case opMicrotask:
		s.name = d.Microtask
	case opTimeout:
		s.name = d.Timeout
	case opIO:
		s.name = d.IO
	case opImport:
		s.target = d.Import
	case opThrow:
		s.name = d.Throw
	case opReject:
		s.name = d.Reject
	case opAwait:
		if nested {
			return step{}, errors.New("await is only allowed at the top level of a body")
		}
		err = parseAwait(&d.Await, &s)
	}
	return s, err
}

func parseAwait(n *yaml.Node, s *step) error {
	if n.Kind == yaml.ScalarNode {
		if n.Value != "never" {
			return fmt.Errorf("line %d: unknown await %q", n.Line, n.Value)
		}
		s.await = awaitNever
		s.name = "never"
		return nil
	}

	var d awaitDoc
	if err := n.Decode(&d); err != nil {
		return err
	}
	switch {
	case d.Timeout != "":
		delay, err := parseDelay(d.Timeout)
		if err != nil {
			return err
		}
		s.await, s.delay, s.name = awaitTimeout, delay, "await:"+d.Timeout
	case d.Import != "":
		s.await, s.target, s.name = awaitImport, d.Import, d.Import
	case d.IO != "":
		delay, err := parseDelay(d.Delay)
		if err != nil {
			return err
		}
		s.await, s.delay, s.name = awaitIO, delay, d.IO
	default:
		return fmt.Errorf("line %d: await needs timeout, import, io, or never", n.Line)
	}
	return nil
}

func parseDelay(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid delay %q: negative", raw)
	}
	return d, nil
}

// env resolves names while a module body or its exports are evaluated.
type env struct {
	eng  *Engine
	mod  *module
	spec specifier.Specifier
}

func (e *env) refError(name, reason string) error {
	return &ReferenceError{Specifier: e.spec, Name: name, Reason: reason}
}

func (e *env) lookup(name string) (value.Value, error) {
	if v, ok := e.mod.vars[name]; ok {
		return v, nil
	}
	b, ok := e.mod.bindings[name]
	if !ok {
		return nil, e.refError(name, "undefined")
	}
	ns, err := e.eng.Namespace(b.FromHandle)
	if err != nil {
		return nil, e.refError(name, fmt.Sprintf("%s is not initialized", b.From))
	}
	if b.Imported == script.Namespace {
		return ns, nil
	}
	v, ok := ns[b.Imported]
	if !ok {
		return nil, e.refError(name, fmt.Sprintf("%s does not export %q", b.From, b.Imported))
	}
	return v, nil
}
