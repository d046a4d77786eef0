package host

import (
	"errors"
	"fmt"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/linker"
	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/specifier"
)

// EvaluationError reports a module body that threw, attributed to the
// module where the failure originated. Dependents that had not finished
// evaluating fail with the same error.
type EvaluationError struct {
	Specifier specifier.Specifier
	Cause     error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Specifier, e.Cause)
}

// Unwrap returns the thrown error.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// Code categorizes run failures for structured output.
type Code string

const (
	CodeInvalidSpecifier Code = "INVALID_SPECIFIER"
	CodeLoadError        Code = "LOAD_ERROR"
	CodeGraphError       Code = "GRAPH_ERROR"
	CodeLinkError        Code = "LINK_ERROR"
	CodeEvaluationError  Code = "EVALUATION_ERROR"
	CodeEventLoopStalled Code = "EVENT_LOOP_STALLED"
	CodeCancelled        Code = "CANCELLED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// CodeOf classifies err. The outermost category wins: a GraphError caused
// by a LoadError is a GRAPH_ERROR.
func CodeOf(err error) Code {
	var (
		ee *EvaluationError
		le *linker.LinkError
		ge *graph.GraphError
		lo *loader.LoadError
		is *specifier.InvalidSpecifierError
	)
	switch {
	case errors.Is(err, loop.ErrCancelled):
		return CodeCancelled
	case errors.Is(err, loop.ErrEventLoopStalled):
		return CodeEventLoopStalled
	case errors.As(err, &ee):
		return CodeEvaluationError
	case errors.As(err, &le):
		return CodeLinkError
	case errors.As(err, &ge):
		return CodeGraphError
	case errors.As(err, &lo):
		return CodeLoadError
	case errors.As(err, &is):
		return CodeInvalidSpecifier
	default:
		return CodeInternal
	}
}

// SpecifierOf returns the module a run failure is attributed to, or "".
func SpecifierOf(err error) string {
	var (
		ee *EvaluationError
		le *linker.LinkError
		ge *graph.GraphError
		lo *loader.LoadError
		se *loop.StalledError
		is *specifier.InvalidSpecifierError
	)
	switch {
	case errors.As(err, &ee):
		return ee.Specifier.String()
	case errors.As(err, &le):
		return le.Specifier.String()
	case errors.As(err, &ge):
		return ge.Specifier.String()
	case errors.As(err, &lo):
		return lo.Specifier.String()
	case errors.As(err, &se):
		return se.Entry.String()
	case errors.As(err, &is):
		return is.Raw
	default:
		return ""
	}
}

// IsEvaluationError reports whether err is (or wraps) an EvaluationError.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

// normalize converts loop-level failures into the host taxonomy.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var (
		ee  *EvaluationError
		te  *loop.TaskError
		ure *loop.UnhandledRejectionError
	)
	switch {
	case errors.As(err, &ee):
		return ee
	case errors.As(err, &te):
		return &EvaluationError{Specifier: te.Owner, Cause: te.Cause}
	case errors.As(err, &ure):
		return &EvaluationError{Specifier: ure.Owner, Cause: ure}
	default:
		return err
	}
}
