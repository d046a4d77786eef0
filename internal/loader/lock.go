package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/modhost/internal/specifier"
)

// LockfileVersion is the current lockfile format version.
const LockfileVersion = 1

// Lockfile pins module source hashes by canonical specifier.
type Lockfile struct {
	Version int               `yaml:"version"`
	Modules map[string]string `yaml:"modules"`
}

// ReadLockfile reads a lockfile. A missing file yields an empty lockfile.
func ReadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Lockfile{Version: LockfileVersion, Modules: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lockfile: %w", err)
	}

	var lf Lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse lockfile %s: %w", path, err)
	}
	if lf.Version != LockfileVersion {
		return nil, fmt.Errorf("lockfile %s: unsupported version %d", path, lf.Version)
	}
	if lf.Modules == nil {
		lf.Modules = map[string]string{}
	}
	return &lf, nil
}

// Marshal renders the lockfile as YAML with modules in sorted order.
func (lf *Lockfile) Marshal() ([]byte, error) {
	keys := make([]string, 0, len(lf.Modules))
	for k := range lf.Modules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	modules := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		modules.Content = append(modules.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Value: lf.Modules[k]},
		)
	}
	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "version"},
		{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(LockfileVersion)},
		{Kind: yaml.ScalarNode, Value: "modules"},
		modules,
	}}
	return yaml.Marshal(doc)
}

// Save writes the lockfile to path.
func (lf *Lockfile) Save(path string) error {
	data, err := lf.Marshal()
	if err != nil {
		return fmt.Errorf("marshal lockfile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write lockfile: %w", err)
	}
	return nil
}

// LockedLoader verifies every loaded source against a lockfile.
//
// Unknown specifiers are recorded unless the loader is frozen, in which
// case they fail with KindIntegrity.
type LockedLoader struct {
	inner  Loader
	frozen bool

	mu   sync.Mutex
	lock *Lockfile
}

// NewLockedLoader wraps inner with lockfile verification.
func NewLockedLoader(inner Loader, lf *Lockfile, frozen bool) *LockedLoader {
	if lf.Modules == nil {
		lf.Modules = map[string]string{}
	}
	return &LockedLoader{inner: inner, lock: lf, frozen: frozen}
}

// Resolve implements Loader.
func (l *LockedLoader) Resolve(base *specifier.Specifier, raw string) (specifier.Specifier, error) {
	return l.inner.Resolve(base, raw)
}

// Load implements Fetcher.
func (l *LockedLoader) Load(ctx context.Context, s specifier.Specifier) (Source, error) {
	src, err := l.inner.Load(ctx, s)
	if err != nil {
		return Source{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	want, ok := l.lock.Modules[s.String()]
	switch {
	case !ok && l.frozen:
		return Source{}, loadError(s, KindIntegrity, errors.New("module missing from frozen lockfile"))
	case !ok:
		l.lock.Modules[s.String()] = src.Hash
	case want != src.Hash:
		return Source{}, loadError(s, KindIntegrity, fmt.Errorf("hash mismatch: lockfile has %s, source is %s", want, src.Hash))
	}
	return src, nil
}

// Lockfile returns the (possibly updated) lockfile.
func (l *LockedLoader) Lockfile() *Lockfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lock
}
