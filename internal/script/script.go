// Package script defines the contract between the host and the script
// engine that owns module parsing, instantiation, and evaluation.
//
// The host never inspects module semantics beyond the declarations an
// Engine reports from Parse. Engine-side module state is referenced by an
// opaque Handle and never copied into the host.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/trace"
	"github.com/roach88/modhost/internal/value"
)

// Handle is an engine-owned module identifier.
type Handle uint64

// Namespace is the ImportName.Imported value for a namespace import.
const Namespace = "*"

// Default is the name of a module's default export.
const Default = "default"

// ImportName binds one imported name to a local name.
type ImportName struct {
	Imported string
	Local    string
}

// Import is one import declaration, in source order.
type Import struct {
	Specifier string
	Names     []ImportName
	Dynamic   bool
}

// ModuleInfo is what Parse reports about a module's declarations.
type ModuleInfo struct {
	Handle      Handle
	Imports     []Import
	Exports     []string
	StarExports []string
}

// Binding connects a module's local name to a dependency's export.
//
// Star bindings carry no names: they tell the engine that From's exports
// are re-exported by the importing module.
type Binding struct {
	Local      string
	Imported   string
	From       specifier.Specifier
	FromHandle Handle
	Star       bool
}

// Engine is the script engine collaborator.
type Engine interface {
	// Parse reads import/export declarations without executing anything.
	Parse(ctx context.Context, src loader.Source) (*ModuleInfo, error)

	// Instantiate binds a module's imports. Called once per module, for
	// every module of a graph, before any Evaluate.
	Instantiate(ctx context.Context, h Handle, bindings []Binding) error

	// Evaluate runs a module body once. A synchronous throw is returned as
	// an error. An asynchronous body returns a promise settled when the
	// body finishes; a nil promise means the body completed synchronously.
	Evaluate(ctx context.Context, h Handle, rt Runtime) (*loop.Promise, error)

	// Namespace returns an evaluated module's exports, including names
	// contributed by star re-exports.
	Namespace(h Handle) (value.Object, error)
}

// Runtime is what the host exposes to a running module body. Every
// scheduled task is attributed to the module the Runtime belongs to.
type Runtime interface {
	Specifier() specifier.Specifier
	QueueMicrotask(name string, fn func() error)
	SetTimeout(name string, delay time.Duration, fn func() error) loop.TimerID
	StartIO(ctx context.Context, name string, work func(context.Context) (value.Value, error)) *loop.Promise
	NewPromise(name string) *loop.Promise

	// Import starts a dynamic import of raw relative to referrer. The
	// promise resolves to the imported module's namespace.
	Import(ctx context.Context, referrer specifier.Specifier, raw string) *loop.Promise

	Logger() *slog.Logger
	Recorder() *trace.Recorder
}

// ParseError reports a module the engine could not parse.
type ParseError struct {
	Specifier specifier.Specifier
	MediaType loader.MediaType
	Cause     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (%s): %v", e.Specifier, e.MediaType, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
