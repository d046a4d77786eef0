package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/modhost/internal/specifier"
)

// MemoryLoader serves mem: modules from an in-memory map.
//
// It is intended for embedders that generate modules at runtime and for
// tests. Every Load is counted so callers can verify the dedup invariant.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryLoader struct {
	resolver specifier.Resolver

	mu      sync.Mutex
	sources map[specifier.Specifier]string
	fetches map[specifier.Specifier]int
	denied  map[specifier.Specifier]bool
}

// NewMemoryLoader creates an empty in-memory loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{
		sources: make(map[specifier.Specifier]string),
		fetches: make(map[specifier.Specifier]int),
		denied:  make(map[specifier.Specifier]bool),
	}
}

// NewMemoryLoaderWith creates an in-memory loader with the given resolver,
// for import maps or root restrictions.
func NewMemoryLoaderWith(r specifier.Resolver) *MemoryLoader {
	l := NewMemoryLoader()
	l.resolver = r
	return l
}

// Add registers a module. Paths ("/app/main.yaml") become mem: specifiers;
// absolute URLs are stored under their canonical form.
func (l *MemoryLoader) Add(ref, text string) (specifier.Specifier, error) {
	s, err := memorySpecifier(ref)
	if err != nil {
		return specifier.Specifier{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[s] = text
	return s, nil
}

// MustAdd is like Add but panics on error. Use only in tests.
func (l *MemoryLoader) MustAdd(ref, text string) specifier.Specifier {
	s, err := l.Add(ref, text)
	if err != nil {
		panic(err)
	}
	return s
}

// Deny makes loads of ref fail with KindPermissionDenied.
func (l *MemoryLoader) Deny(ref string) error {
	s, err := memorySpecifier(ref)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.denied[s] = true
	return nil
}

// Resolve implements Loader.
func (l *MemoryLoader) Resolve(base *specifier.Specifier, raw string) (specifier.Specifier, error) {
	return l.resolver.Resolve(base, raw)
}

// Load implements Fetcher.
func (l *MemoryLoader) Load(ctx context.Context, s specifier.Specifier) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}

	l.mu.Lock()
	l.fetches[s]++
	text, ok := l.sources[s]
	denied := l.denied[s]
	l.mu.Unlock()

	if denied {
		return Source{}, loadError(s, KindPermissionDenied, fmt.Errorf("access to %s denied", s))
	}
	if !ok {
		return Source{}, loadError(s, KindNotFound, fmt.Errorf("no in-memory module %s", s))
	}
	return newSource(s, []byte(text), "")
}

// FetchCount returns how many times s was loaded.
func (l *MemoryLoader) FetchCount(s specifier.Specifier) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetches[s]
}

// TotalFetches returns the number of Load calls across all specifiers.
func (l *MemoryLoader) TotalFetches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.fetches {
		n += c
	}
	return n
}

func memorySpecifier(ref string) (specifier.Specifier, error) {
	if len(ref) > 0 && ref[0] == '/' {
		return specifier.Parse(specifier.SchemeMemory + "://" + ref)
	}
	return specifier.Parse(ref)
}
