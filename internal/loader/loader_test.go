package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/value"
)

func TestFSLoader_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.yaml"), []byte("exports:\n  a: 1\n"), 0o644))

	l := NewFSLoader(specifier.Resolver{WorkDir: dir})
	s, err := l.Resolve(nil, "./main.yaml")
	require.NoError(t, err)

	src, err := l.Load(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, s, src.Specifier)
	assert.Equal(t, "exports:\n  a: 1\n", src.Text)
	assert.Equal(t, MediaYAML, src.MediaType)
	assert.Equal(t, value.SourceHash(src.Text), src.Hash)
}

func TestFSLoader_NotFound(t *testing.T) {
	dir := t.TempDir()
	l := NewFSLoader(specifier.Resolver{WorkDir: dir})
	s, err := l.Resolve(nil, "./missing.yaml")
	require.NoError(t, err)

	_, err = l.Load(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, s, le.Specifier)
	assert.Equal(t, KindNotFound, le.Kind)
}

func TestFSLoader_DirectoryIsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := specifier.FromPath(dir)
	require.NoError(t, err)

	_, err = NewFSLoader(specifier.Resolver{}).Load(context.Background(), s)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSLoader_RejectsOtherSchemes(t *testing.T) {
	l := NewFSLoader(specifier.Resolver{})
	_, err := l.Load(context.Background(), specifier.MustParse("mem:///a.yaml"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFSLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFSLoader(specifier.Resolver{}).Load(ctx, specifier.MustParse("file:///a.yaml"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLoader_CountsFetches(t *testing.T) {
	l := NewMemoryLoader()
	s := l.MustAdd("/app/main.yaml", "exports: {}")

	for i := 0; i < 3; i++ {
		_, err := l.Load(context.Background(), s)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, l.FetchCount(s))
	assert.Equal(t, 3, l.TotalFetches())
	assert.Equal(t, "mem:///app/main.yaml", s.String())
}

func TestMemoryLoader_MissingAndDenied(t *testing.T) {
	l := NewMemoryLoader()
	require.NoError(t, l.Deny("/secret.yaml"))

	_, err := l.Load(context.Background(), specifier.MustParse("mem:///nope.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Load(context.Background(), specifier.MustParse("mem:///secret.yaml"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestMemoryLoader_ResolvesRelativeToReferrer(t *testing.T) {
	l := NewMemoryLoader()
	main := l.MustAdd("/app/main.yaml", "")

	s, err := l.Resolve(&main, "../lib/util.yaml")
	require.NoError(t, err)
	assert.Equal(t, "mem:///lib/util.yaml", s.String())
}

func TestDecode_UTF16WithBOM(t *testing.T) {
	// "a: 1" in UTF-16LE with BOM.
	data := []byte{0xFF, 0xFE, 'a', 0, ':', 0, ' ', 0, '1', 0}
	src, err := newSource(specifier.MustParse("mem:///a.yaml"), data, "")
	require.NoError(t, err)
	assert.Equal(t, "a: 1", src.Text)
}

func TestDecode_StripsUTF8BOM(t *testing.T) {
	src, err := newSource(specifier.MustParse("mem:///a.json"), []byte("\xEF\xBB\xBF{}"), "")
	require.NoError(t, err)
	assert.Equal(t, "{}", src.Text)
	assert.Equal(t, MediaJSON, src.MediaType)
}

func TestDecode_InvalidUTF8(t *testing.T) {
	_, err := newSource(specifier.MustParse("mem:///a.yaml"), []byte{'a', 0xC3, 0x28}, "")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestMediaType(t *testing.T) {
	tests := []struct {
		ext  string
		want MediaType
	}{
		{".js", MediaJavaScript},
		{".MJS", MediaJavaScript},
		{".ts", MediaTypeScript},
		{".json", MediaJSON},
		{".yml", MediaYAML},
		{".cue", MediaCUE},
		{".txt", MediaUnknown},
		{"", MediaUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MediaTypeFromExt(tt.ext), tt.ext)
	}

	assert.Equal(t, MediaJSON, MediaTypeFromContentType("application/json; charset=utf-8"))
	assert.Equal(t, MediaYAML, MediaTypeFromContentType("application/yaml"))
	assert.Equal(t, MediaUnknown, MediaTypeFromContentType(""))
}

func TestHTTPLoader_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"a":1}`))
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewHTTPLoader(WithHTTPClient(srv.Client()))
	ctx := context.Background()

	src, err := l.Load(ctx, specifier.MustParse(srv.URL+"/ok"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, src.Text)
	assert.Equal(t, MediaJSON, src.MediaType)

	_, err = l.Load(ctx, specifier.MustParse(srv.URL+"/missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Load(ctx, specifier.MustParse(srv.URL+"/forbidden"))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = l.Load(ctx, specifier.MustParse(srv.URL+"/broken"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPLoader_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	l := NewHTTPLoader(WithHTTPClient(srv.Client()), WithMaxModuleBytes(4))
	_, err := l.Load(context.Background(), specifier.MustParse(srv.URL+"/big.yaml"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRouter_DispatchesByScheme(t *testing.T) {
	mem := NewMemoryLoader()
	s := mem.MustAdd("/a.yaml", "x")

	r := NewRouter(specifier.Resolver{}).Handle(mem, specifier.SchemeMemory)

	src, err := r.Load(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "x", src.Text)

	_, err = r.Load(context.Background(), specifier.MustParse("https://example.com/a.yaml"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestLockedLoader_RecordsAndVerifies(t *testing.T) {
	mem := NewMemoryLoader()
	s := mem.MustAdd("/a.yaml", "one")

	lf := &Lockfile{Version: LockfileVersion}
	l := NewLockedLoader(mem, lf, false)

	src, err := l.Load(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, src.Hash, l.Lockfile().Modules[s.String()])

	mem.MustAdd("/a.yaml", "two")
	_, err = l.Load(context.Background(), s)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestLockedLoader_FrozenRejectsUnknown(t *testing.T) {
	mem := NewMemoryLoader()
	s := mem.MustAdd("/a.yaml", "one")

	l := NewLockedLoader(mem, &Lockfile{Version: LockfileVersion}, true)
	_, err := l.Load(context.Background(), s)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestLockfile_SaveAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modhost.lock")

	missing, err := ReadLockfile(path)
	require.NoError(t, err)
	assert.Empty(t, missing.Modules)

	lf := &Lockfile{Version: LockfileVersion, Modules: map[string]string{
		"mem:///b.yaml": "sha256:bb",
		"mem:///a.yaml": "sha256:aa",
	}}
	require.NoError(t, lf.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "version: 1\n"))
	assert.Less(t, strings.Index(text, "a.yaml"), strings.Index(text, "b.yaml"))

	got, err := ReadLockfile(path)
	require.NoError(t, err)
	assert.Equal(t, lf.Modules, got.Modules)
}
