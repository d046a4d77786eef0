package specifier

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// Resolver resolves raw module references against a base.
//
// The zero Resolver is usable: relative references then require a base,
// no root restriction applies, and bare specifiers are always rejected.
// A Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	// WorkDir is the absolute directory used as the base for entry paths and
	// for relative references resolved without a base.
	WorkDir string

	// Root, when set, restricts file: specifiers to this directory tree.
	Root string

	// ImportMap maps bare specifiers or prefixes (keys ending in "/") to
	// replacement references. Keys are matched longest-prefix first.
	ImportMap map[string]string
}

// Resolve canonicalizes raw against base using the zero Resolver.
func Resolve(base *Specifier, raw string) (Specifier, error) {
	return Resolver{}.Resolve(base, raw)
}

// Resolve canonicalizes raw against base.
//
// Relative references ("./x", "../x") resolve against base; absolute paths
// ("/x") resolve against base's origin (file: when base is nil or local);
// URLs resolve independently. Bare specifiers resolve only through the
// import map.
func (r Resolver) Resolve(base *Specifier, raw string) (Specifier, error) {
	if raw == "" {
		return Specifier{}, invalidf(raw, base, "empty specifier")
	}
	if strings.TrimSpace(raw) != raw {
		return Specifier{}, invalidf(raw, base, "leading or trailing whitespace")
	}

	target := raw
	if mapped, ok := r.mapImport(raw); ok {
		target = mapped
	}

	s, err := r.resolve(base, raw, target)
	if err != nil {
		return Specifier{}, err
	}
	if err := r.checkPolicy(base, raw, s); err != nil {
		return Specifier{}, err
	}
	return s, nil
}

// ResolveEntry resolves the entry reference given on a command line.
// Unlike Resolve, a plain path such as "main.yaml" is treated as a file path
// relative to WorkDir instead of a bare specifier.
func (r Resolver) ResolveEntry(raw string) (Specifier, error) {
	if raw == "" {
		return Specifier{}, invalidf(raw, nil, "empty specifier")
	}
	if hasScheme(raw) || strings.HasPrefix(raw, "/") || isRelative(raw) {
		return r.Resolve(nil, raw)
	}
	return r.Resolve(nil, "./"+raw)
}

func (r Resolver) resolve(base *Specifier, raw, target string) (Specifier, error) {
	switch {
	case hasScheme(target):
		u, err := url.Parse(target)
		if err != nil {
			return Specifier{}, invalidf(raw, base, "malformed URL: %v", err)
		}
		return canonicalize(raw, base, u)

	case isRelative(target) || strings.HasPrefix(target, "/"):
		b, err := r.baseFor(raw, target, base)
		if err != nil {
			return Specifier{}, err
		}
		ref, err := url.Parse(target)
		if err != nil {
			return Specifier{}, invalidf(raw, base, "malformed path: %v", err)
		}
		ref.Fragment = ""
		resolved := b.URL().ResolveReference(ref)
		if !b.IsRemote() {
			resolved.RawQuery = ""
		}
		return canonicalize(raw, base, resolved)

	default:
		return Specifier{}, invalidf(raw, base,
			`bare specifier is not mapped; relative references must start with "./", "../" or "/"`)
	}
}

func (r Resolver) baseFor(raw, target string, base *Specifier) (Specifier, error) {
	if base != nil && !base.IsZero() {
		return *base, nil
	}
	if strings.HasPrefix(target, "/") {
		return FromPath("/")
	}
	if r.WorkDir == "" {
		return Specifier{}, invalidf(raw, nil, "relative reference without a base")
	}
	dir := r.WorkDir
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return FromPath(dir)
}

func (r Resolver) checkPolicy(base *Specifier, raw string, s Specifier) error {
	if base != nil && base.IsRemote() && !s.IsRemote() {
		return invalidf(raw, base, "remote module cannot import %s: module", s.Scheme())
	}
	if r.Root != "" && s.Scheme() == SchemeFile && !within(r.Root, s.Path()) {
		return invalidf(raw, base, "escapes permitted root %s", r.Root)
	}
	return nil
}

// mapImport applies the import map: exact keys first, then the longest
// matching prefix key ending in "/".
func (r Resolver) mapImport(raw string) (string, bool) {
	if len(r.ImportMap) == 0 {
		return "", false
	}
	if target, ok := r.ImportMap[raw]; ok {
		return target, true
	}

	prefixes := make([]string, 0, len(r.ImportMap))
	for k := range r.ImportMap {
		if strings.HasSuffix(k, "/") && strings.HasPrefix(raw, k) {
			prefixes = append(prefixes, k)
		}
	}
	if len(prefixes) == 0 {
		return "", false
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	k := prefixes[0]
	return r.ImportMap[k] + strings.TrimPrefix(raw, k), true
}

func within(root, p string) bool {
	root = path.Clean(root)
	if root == "/" {
		return true
	}
	return p == root || strings.HasPrefix(p, root+"/")
}

func isRelative(raw string) bool {
	return raw == "." || raw == ".." || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../")
}

// hasScheme reports whether raw starts with a URL scheme ("x:" with x of
// two or more letters, so Windows drive letters are not mistaken for one).
func hasScheme(raw string) bool {
	i := strings.IndexByte(raw, ':')
	if i < 2 {
		return false
	}
	for j, c := range raw[:i] {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
