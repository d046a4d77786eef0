package specifier

import (
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Schemes understood by the resolver.
const (
	SchemeFile   = "file"
	SchemeHTTP   = "http"
	SchemeHTTPS  = "https"
	SchemeMemory = "mem"
)

// Specifier is the canonical, hashable identity of a module.
//
// Equality and ordering are on the canonical string. The zero value is
// invalid and never produced by Resolve.
type Specifier struct {
	canonical string
}

// String returns the canonical form.
func (s Specifier) String() string {
	return s.canonical
}

// IsZero reports whether s is the zero (invalid) specifier.
func (s Specifier) IsZero() bool {
	return s.canonical == ""
}

// Compare orders specifiers by canonical form.
func Compare(a, b Specifier) int {
	return strings.Compare(a.canonical, b.canonical)
}

// Scheme returns the URL scheme of the specifier.
func (s Specifier) Scheme() string {
	scheme, _, _ := strings.Cut(s.canonical, ":")
	return scheme
}

// URL returns the specifier as a parsed URL.
func (s Specifier) URL() *url.URL {
	u, err := url.Parse(s.canonical)
	if err != nil {
		// Canonical strings are always produced by canonicalize.
		panic("specifier: corrupt canonical form " + s.canonical)
	}
	return u
}

// Path returns the decoded path component. For file: specifiers this is the
// absolute filesystem path.
func (s Specifier) Path() string {
	return s.URL().Path
}

// Ext returns the file extension of the path, including the dot.
func (s Specifier) Ext() string {
	return path.Ext(s.Path())
}

// IsRemote reports whether the specifier is fetched over the network.
func (s Specifier) IsRemote() bool {
	scheme := s.Scheme()
	return scheme == SchemeHTTP || scheme == SchemeHTTPS
}

// MarshalText implements encoding.TextMarshaler.
func (s Specifier) MarshalText() ([]byte, error) {
	return []byte(s.canonical), nil
}

// Parse re-canonicalizes an absolute URL string (for example one read back
// from the run store or a lockfile).
func Parse(raw string) (Specifier, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return Specifier{}, invalidf(raw, nil, "not an absolute URL")
	}
	return canonicalize(raw, nil, u)
}

// MustParse is like Parse but panics on error.
// Use only in tests or with known-valid constants.
func MustParse(raw string) Specifier {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// FromPath builds a file: specifier from an absolute filesystem path.
func FromPath(p string) (Specifier, error) {
	if !path.IsAbs(p) {
		return Specifier{}, invalidf(p, nil, "path is not absolute")
	}
	return canonicalize(p, nil, &url.URL{Scheme: SchemeFile, Path: p})
}

// canonicalize builds the canonical string for an absolute URL.
//
// Canonical form:
//   - scheme and host lowercased, default ports dropped
//   - path cleaned (dot segments and duplicate slashes removed)
//   - path NFC normalized and re-escaped
//   - fragment dropped; query kept only for remote URLs
func canonicalize(raw string, base *Specifier, u *url.URL) (Specifier, error) {
	scheme := strings.ToLower(u.Scheme)
	if u.Opaque != "" {
		// "mem:app/main.yaml" style references carry no leading slash.
		if scheme != SchemeMemory && scheme != SchemeFile {
			return Specifier{}, invalidf(raw, base, "opaque URL not supported")
		}
		u = &url.URL{Scheme: scheme, Path: "/" + u.Opaque}
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		return Specifier{}, invalidf(raw, base, "path must be absolute")
	}
	trailing := strings.HasSuffix(p, "/") && p != "/"
	p = norm.NFC.String(path.Clean(p))
	if trailing {
		p += "/"
	}
	if strings.ContainsRune(p, 0) {
		return Specifier{}, invalidf(raw, base, "path contains NUL byte")
	}
	escaped := (&url.URL{Path: p}).EscapedPath()

	switch scheme {
	case SchemeFile, SchemeMemory:
		if u.Host != "" && !strings.EqualFold(u.Host, "localhost") {
			return Specifier{}, invalidf(raw, base, "%s: URLs cannot name a host", scheme)
		}
		return Specifier{canonical: scheme + "://" + escaped}, nil

	case SchemeHTTP, SchemeHTTPS:
		host := strings.ToLower(u.Hostname())
		if host == "" {
			return Specifier{}, invalidf(raw, base, "missing host")
		}
		port := u.Port()
		if (scheme == SchemeHTTP && port == "80") || (scheme == SchemeHTTPS && port == "443") {
			port = ""
		}
		if port != "" {
			host = net.JoinHostPort(host, port)
		} else if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		out := scheme + "://" + host + escaped
		if u.RawQuery != "" {
			out += "?" + u.RawQuery
		}
		return Specifier{canonical: out}, nil

	default:
		return Specifier{}, invalidf(raw, base, "unsupported scheme %q", scheme)
	}
}
