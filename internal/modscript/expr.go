package modscript

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/modhost/internal/value"
)

// expr is an export or log expression.
type expr interface {
	eval(env *env) (value.Value, error)
}

type literalExpr struct{ v value.Value }

type refExpr struct {
	root   string
	fields []string
}

type joinExpr struct{ parts []expr }

type arrayExpr struct{ items []expr }

type objectExpr struct {
	keys  []string
	items []expr
}

func (e literalExpr) eval(*env) (value.Value, error) { return e.v, nil }

func (e refExpr) eval(env *env) (value.Value, error) {
	v, err := env.lookup(e.root)
	if err != nil {
		return nil, err
	}
	path := e.root
	for _, f := range e.fields {
		path += "." + f
		obj, ok := v.(value.Object)
		if !ok {
			return nil, env.refError(path, "not an object")
		}
		v, ok = obj[f]
		if !ok {
			return nil, env.refError(path, "no such field")
		}
	}
	return v, nil
}

func (e joinExpr) eval(env *env) (value.Value, error) {
	var b strings.Builder
	for _, p := range e.parts {
		v, err := p.eval(env)
		if err != nil {
			return nil, err
		}
		b.WriteString(value.Text(v))
	}
	return value.String(b.String()), nil
}

func (e arrayExpr) eval(env *env) (value.Value, error) {
	out := make(value.Array, 0, len(e.items))
	for _, item := range e.items {
		v, err := item.eval(env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e objectExpr) eval(env *env) (value.Value, error) {
	out := make(value.Object, len(e.keys))
	for i, k := range e.keys {
		v, err := e.items[i].eval(env)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// parseExpr compiles a YAML node into an expression.
//
// Scalars are literals. A mapping with the single key "ref" reads a
// binding (dotted paths descend into objects); "join" concatenates the
// text of its parts. Any other mapping or sequence is a structured literal
// whose members are themselves expressions.
func parseExpr(n *yaml.Node) (expr, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return parseExpr(n.Alias)

	case yaml.ScalarNode:
		v, err := parseScalar(n)
		if err != nil {
			return nil, err
		}
		return literalExpr{v: v}, nil

	case yaml.SequenceNode:
		items := make([]expr, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := parseExpr(c)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return arrayExpr{items: items}, nil

	case yaml.MappingNode:
		if len(n.Content) == 2 {
			switch n.Content[0].Value {
			case "ref":
				return parseRef(n.Content[1])
			case "join":
				return parseJoin(n.Content[1])
			}
		}
		obj := objectExpr{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			item, err := parseExpr(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.keys = append(obj.keys, n.Content[i].Value)
			obj.items = append(obj.items, item)
		}
		return obj, nil

	default:
		return nil, fmt.Errorf("line %d: unsupported expression", n.Line)
	}
}

func parseScalar(n *yaml.Node) (value.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return value.Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return value.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return value.Int(i), nil
	case "!!float":
		return nil, fmt.Errorf("line %d: floating-point values are not supported", n.Line)
	default:
		return value.String(n.Value), nil
	}
}

func parseRef(n *yaml.Node) (expr, error) {
	if n.Kind != yaml.ScalarNode || n.Value == "" {
		return nil, fmt.Errorf("line %d: ref must be a non-empty name", n.Line)
	}
	parts := strings.Split(n.Value, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("line %d: malformed ref %q", n.Line, n.Value)
		}
	}
	return refExpr{root: parts[0], fields: parts[1:]}, nil
}

func parseJoin(n *yaml.Node) (expr, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, errors.New("join takes a list")
	}
	j := joinExpr{}
	for _, c := range n.Content {
		p, err := parseExpr(c)
		if err != nil {
			return nil, err
		}
		j.parts = append(j.parts, p)
	}
	return j, nil
}
