package loader

import (
	"context"
	"fmt"

	"github.com/roach88/modhost/internal/specifier"
)

// Router is a Loader that dispatches loads by URL scheme.
//
// Resolution is shared across origins so relative imports between modules
// of different fetchers canonicalize consistently.
type Router struct {
	resolver specifier.Resolver
	fetchers map[string]Fetcher
}

// NewRouter creates a router with no registered fetchers.
func NewRouter(r specifier.Resolver) *Router {
	return &Router{
		resolver: r,
		fetchers: make(map[string]Fetcher),
	}
}

// Handle registers f for every given scheme, replacing earlier registrations.
func (r *Router) Handle(f Fetcher, schemes ...string) *Router {
	for _, scheme := range schemes {
		r.fetchers[scheme] = f
	}
	return r
}

// Resolve implements Loader.
func (r *Router) Resolve(base *specifier.Specifier, raw string) (specifier.Specifier, error) {
	return r.resolver.Resolve(base, raw)
}

// Load implements Fetcher.
func (r *Router) Load(ctx context.Context, s specifier.Specifier) (Source, error) {
	f, ok := r.fetchers[s.Scheme()]
	if !ok {
		return Source{}, loadError(s, KindUnsupported, fmt.Errorf("no loader registered for %s: modules", s.Scheme()))
	}
	return f.Load(ctx, s)
}

// Resolver returns the shared resolver.
func (r *Router) Resolver() specifier.Resolver {
	return r.resolver
}
