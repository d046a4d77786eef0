package host

import (
	"log/slog"
	"time"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/loop"
	"github.com/roach88/modhost/internal/trace"
)

// Options holds run configuration. Build it with Option values.
type Options struct {
	Timeout            time.Duration
	Logger             *slog.Logger
	Recorder           *trace.Recorder
	TimeSource         loop.TimeSource
	MaxConcurrentLoads int
	RunIDs             RunIDGenerator
}

// Option configures a run.
type Option func(*Options)

// WithTimeout bounds the whole run. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithRecorder records the run's trace into rec instead of a fresh
// recorder.
func WithRecorder(rec *trace.Recorder) Option {
	return func(o *Options) {
		o.Recorder = rec
	}
}

// WithTimeSource sets the event loop's time source (default:
// loop.SystemTime).
func WithTimeSource(ts loop.TimeSource) Option {
	return func(o *Options) {
		o.TimeSource = ts
	}
}

// WithMaxConcurrentLoads bounds concurrent loads per graph wave.
func WithMaxConcurrentLoads(n int) Option {
	return func(o *Options) {
		o.MaxConcurrentLoads = n
	}
}

// WithRunIDGenerator sets the run ID source (default: UUIDv7Generator).
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(o *Options) {
		o.RunIDs = g
	}
}

func buildOptions(opts []Option) Options {
	o := Options{
		Logger:             slog.Default(),
		TimeSource:         loop.SystemTime{},
		MaxConcurrentLoads: graph.DefaultMaxConcurrentLoads,
		RunIDs:             UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Recorder == nil {
		o.Recorder = trace.NewRecorder()
	}
	return o
}
