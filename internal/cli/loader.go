package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/specifier"
)

// moduleSource is the loader stack assembled for one command.
type moduleSource struct {
	Resolver specifier.Resolver
	Loader   loader.Loader

	// Locked is set when a lockfile is in use.
	Locked   *loader.LockedLoader
	lockPath string
	frozen   bool
}

// newModuleSource builds the loader stack: a router serving file: modules
// from disk, http: and https: modules when remote loading is allowed, and
// lockfile verification on top when a lockfile is configured.
func newModuleSource(s Settings) (*moduleSource, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	r := specifier.Resolver{WorkDir: wd, ImportMap: s.ImportMap}
	if s.Root != "" {
		root, err := filepath.Abs(s.Root)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", s.Root, err)
		}
		r.Root = filepath.ToSlash(root)
	}

	router := loader.NewRouter(r).Handle(loader.NewFSLoader(r), specifier.SchemeFile)
	if s.AllowRemote {
		router.Handle(loader.NewHTTPLoader(), specifier.SchemeHTTP, specifier.SchemeHTTPS)
	}

	src := &moduleSource{Resolver: r, Loader: router}
	if s.Lock != "" {
		lf, err := loader.ReadLockfile(s.Lock)
		if err != nil {
			return nil, err
		}
		src.Locked = loader.NewLockedLoader(router, lf, s.FrozenLock)
		src.Loader = src.Locked
		src.lockPath = s.Lock
		src.frozen = s.FrozenLock
	}
	return src, nil
}

// Entry resolves the command-line entry reference. A plain relative path
// such as "main.yaml" is a file in the working directory.
func (m *moduleSource) Entry(raw string) (specifier.Specifier, error) {
	return m.Resolver.ResolveEntry(raw)
}

// SaveLock writes newly recorded hashes back to the lockfile. Frozen
// lockfiles are never rewritten.
func (m *moduleSource) SaveLock() error {
	if m.Locked == nil || m.frozen {
		return nil
	}
	return m.Locked.Lockfile().Save(m.lockPath)
}
