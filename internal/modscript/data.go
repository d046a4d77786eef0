package modscript

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/value"
)

func parseJSON(text string) (value.Value, error) {
	return value.Unmarshal([]byte(text))
}

// parseCUE evaluates a CUE source to a concrete value.
func parseCUE(ctx *cue.Context, filename, text string) (value.Value, error) {
	v := ctx.CompileString(text, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return fromCUE(v)
}

func fromCUE(v cue.Value) (value.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return value.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		return value.Bool(b), err
	case cue.IntKind:
		i, err := v.Int64()
		return value.Int(i), err
	case cue.StringKind:
		s, err := v.String()
		return value.String(s), err
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		arr := value.Array{}
		for iter.Next() {
			item, err := fromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, err
		}
		obj := value.Object{}
		for iter.Next() {
			item, err := fromCUE(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Label(), err)
			}
			obj[iter.Label()] = item
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, fmt.Errorf("%s: floating-point values are not supported", v.Path())
	default:
		return nil, fmt.Errorf("%s: unsupported CUE kind %s", v.Path(), v.Kind())
	}
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		return fmt.Errorf("%s: %s", pos[0], first.Error())
	}
	return first
}

// dataExportNames lists a data module's exports: its top-level fields
// (when it is an object) followed by default.
func dataExportNames(v value.Value) []string {
	var names []string
	if obj, ok := v.(value.Object); ok {
		for _, k := range obj.SortedKeys() {
			if k != script.Default {
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return append(names, script.Default)
}

func dataExports(v value.Value) value.Object {
	out := value.Object{script.Default: v}
	if obj, ok := v.(value.Object); ok {
		for k, field := range obj {
			if k != script.Default {
				out[k] = field
			}
		}
	}
	return out
}
