// Package loader retrieves module source text for canonical specifiers.
//
// A Loader pairs a resolver (raw reference → Specifier) with a fetcher
// (Specifier → Source). Fetchers are pluggable per origin: the Router
// dispatches by URL scheme to a filesystem, in-memory, or HTTP fetcher.
//
// Loaders never deduplicate. The module graph guarantees that each canonical
// specifier is loaded at most once per run; loaders only have to be safe for
// concurrent calls on disjoint specifiers.
package loader
