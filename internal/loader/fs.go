package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/roach88/modhost/internal/specifier"
)

// FSLoader is the default loader: it resolves relative to a working
// directory and reads file: specifiers from disk.
type FSLoader struct {
	resolver specifier.Resolver
}

// NewFSLoader creates a filesystem loader using the given resolver.
func NewFSLoader(r specifier.Resolver) *FSLoader {
	return &FSLoader{resolver: r}
}

// NewDefaultFSLoader creates a filesystem loader rooted at the process
// working directory.
func NewDefaultFSLoader() (*FSLoader, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return NewFSLoader(specifier.Resolver{WorkDir: wd}), nil
}

// Resolve implements Loader.
func (l *FSLoader) Resolve(base *specifier.Specifier, raw string) (specifier.Specifier, error) {
	return l.resolver.Resolve(base, raw)
}

// Load implements Fetcher.
func (l *FSLoader) Load(ctx context.Context, s specifier.Specifier) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}
	if s.Scheme() != specifier.SchemeFile {
		return Source{}, loadError(s, KindUnsupported, fmt.Errorf("filesystem loader cannot load %s: specifiers", s.Scheme()))
	}

	p := s.Path()
	info, err := os.Stat(p)
	if err != nil {
		return Source{}, classifyFSError(s, err)
	}
	if info.IsDir() {
		return Source{}, loadError(s, KindNotFound, fmt.Errorf("%s is a directory", p))
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return Source{}, classifyFSError(s, err)
	}
	return newSource(s, data, "")
}

func classifyFSError(s specifier.Specifier, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return loadError(s, KindNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return loadError(s, KindPermissionDenied, err)
	default:
		return loadError(s, KindNotFound, err)
	}
}
