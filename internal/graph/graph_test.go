package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/modscript"
	"github.com/roach88/modhost/internal/script"
	"github.com/roach88/modhost/internal/specifier"
)

func mem(path string) specifier.Specifier {
	return specifier.MustParse("mem://" + path)
}

func newFixture(t *testing.T, modules map[string]string) (*loader.MemoryLoader, *Builder) {
	t.Helper()
	ld := loader.NewMemoryLoader()
	for path, text := range modules {
		ld.MustAdd(path, text)
	}
	return ld, NewBuilder(ld, modscript.New())
}

func TestBuild_MainImportsUtil(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/app/main.yaml": "imports:\n  - from: ./util.yaml\n    names: {value: value}\n",
		"/app/util.yaml": "exports:\n  value: 1\n",
	})

	g, err := b.Build(context.Background(), mem("/app/main.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, mem("/app/main.yaml"), g.Entry())

	main, ok := g.Get(mem("/app/main.yaml"))
	require.True(t, ok)
	assert.Equal(t, Parsed, main.State)
	require.Len(t, main.Imports, 1)
	assert.Equal(t, "./util.yaml", main.Imports[0].Requested)
	assert.Equal(t, mem("/app/util.yaml"), main.Imports[0].Resolved)
	assert.Equal(t, []script.ImportName{{Imported: "value", Local: "value"}}, main.Imports[0].Names)
	assert.NotZero(t, main.Handle)
	assert.Equal(t, loader.MediaYAML, main.MediaType)
	assert.NotEmpty(t, main.Hash)

	util, ok := g.Get(mem("/app/util.yaml"))
	require.True(t, ok)
	assert.Equal(t, []string{"value"}, util.Exports)
	assert.Equal(t, mem("/app/main.yaml"), util.Referrer)

	assert.Equal(t, []specifier.Specifier{mem("/app/util.yaml")}, g.Dependencies(mem("/app/main.yaml")))
	assert.Equal(t, []specifier.Specifier{mem("/app/main.yaml")}, g.Dependents(mem("/app/util.yaml")))
}

func TestBuild_DiamondFetchesEachOnce(t *testing.T) {
	ld, b := newFixture(t, map[string]string{
		"/main.yaml": "imports:\n  - from: ./a.yaml\n  - from: ./b.yaml\n",
		"/a.yaml":    "imports:\n  - from: ./c.yaml\n",
		"/b.yaml":    "imports:\n  - from: ././c.yaml\n  - from: /c.yaml\n",
		"/c.yaml":    "",
	})

	g, err := b.Build(context.Background(), mem("/main.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	for _, p := range []string{"/main.yaml", "/a.yaml", "/b.yaml", "/c.yaml"} {
		assert.Equal(t, 1, ld.FetchCount(mem(p)), p)
	}
	assert.Equal(t, 4, ld.TotalFetches())

	b2, _ := g.Get(mem("/b.yaml"))
	assert.Len(t, b2.Imports, 2, "both spellings are recorded as edges")
	assert.Equal(t, []specifier.Specifier{mem("/c.yaml")}, g.Dependencies(mem("/b.yaml")))
}

func TestBuild_BreadthFirstDiscoveryOrder(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/main.yaml": "imports:\n  - from: ./a.yaml\n  - from: ./b.yaml\n",
		"/a.yaml":    "imports:\n  - from: ./c.yaml\n",
		"/b.yaml":    "",
		"/c.yaml":    "",
	})

	g, err := b.Build(context.Background(), mem("/main.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []specifier.Specifier{
		mem("/main.yaml"), mem("/a.yaml"), mem("/b.yaml"), mem("/c.yaml"),
	}, g.Specifiers())
}

func TestBuild_CycleTerminates(t *testing.T) {
	ld, b := newFixture(t, map[string]string{
		"/a.yaml": "imports:\n  - from: ./b.yaml\n",
		"/b.yaml": "imports:\n  - from: ./a.yaml\n",
	})

	g, err := b.Build(context.Background(), mem("/a.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 1, ld.FetchCount(mem("/a.yaml")))
	assert.Equal(t, 1, ld.FetchCount(mem("/b.yaml")))

	warnings := Cycles(g)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"mem:///a.yaml", "mem:///b.yaml", "mem:///a.yaml"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
}

func TestBuild_SelfImport(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/self.yaml": "imports:\n  - from: ./self.yaml\n",
	})

	g, err := b.Build(context.Background(), mem("/self.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())

	warnings := Cycles(g)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"mem:///self.yaml", "mem:///self.yaml"}, warnings[0].Path)
}

func TestCycles_AcyclicGraph(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/main.yaml": "imports:\n  - from: ./a.yaml\n",
		"/a.yaml":    "",
	})
	g, err := b.Build(context.Background(), mem("/main.yaml"))
	require.NoError(t, err)
	assert.Empty(t, Cycles(g))
}

func TestBuild_MissingDependency(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/main.yaml": "imports:\n  - from: ./missing.yaml\n",
	})

	g, err := b.Build(context.Background(), mem("/main.yaml"))
	require.Error(t, err)

	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, mem("/missing.yaml"), ge.Specifier)
	assert.Equal(t, mem("/main.yaml"), ge.Referrer)
	assert.ErrorIs(t, err, loader.ErrNotFound)
	assert.Contains(t, err.Error(), "mem:///missing.yaml")

	missing, ok := g.Get(mem("/missing.yaml"))
	require.True(t, ok)
	assert.Equal(t, Errored, missing.State)
}

func TestBuild_MissingEntry(t *testing.T) {
	_, b := newFixture(t, map[string]string{})

	_, err := b.Build(context.Background(), mem("/nope.yaml"))
	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, mem("/nope.yaml"), ge.Specifier)
	assert.True(t, ge.Referrer.IsZero())
}

func TestBuild_ParseFailure(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/main.yaml":   "imports:\n  - from: ./broken.yaml\n",
		"/broken.yaml": "body:\n  - nonsense: 1\n",
	})

	_, err := b.Build(context.Background(), mem("/main.yaml"))
	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, mem("/broken.yaml"), ge.Specifier)

	var pe *script.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestBuild_InvalidImportSpecifier(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/main.yaml": "imports:\n  - from: lodash\n",
	})

	_, err := b.Build(context.Background(), mem("/main.yaml"))
	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, mem("/main.yaml"), ge.Specifier)
	assert.ErrorIs(t, err, specifier.ErrInvalidSpecifier)
}

func TestBuild_StarExports(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/main.yaml": "reexport: [./more.yaml]\n",
		"/more.yaml": "exports:\n  x: 1\n",
	})

	g, err := b.Build(context.Background(), mem("/main.yaml"))
	require.NoError(t, err)
	main, _ := g.Get(mem("/main.yaml"))
	assert.Equal(t, []specifier.Specifier{mem("/more.yaml")}, main.StarExports)
	assert.Equal(t, []specifier.Specifier{mem("/more.yaml")}, g.Dependencies(mem("/main.yaml")))
}

func TestBuild_DynamicImportsAreDeferred(t *testing.T) {
	ld, b := newFixture(t, map[string]string{
		"/main.yaml": "body:\n  - import: ./lazy.yaml\n",
		"/lazy.yaml": "imports:\n  - from: ./dep.yaml\n",
		"/dep.yaml":  "",
	})
	ctx := context.Background()

	g, err := b.Build(ctx, mem("/main.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, 0, ld.FetchCount(mem("/lazy.yaml")))

	main, _ := g.Get(mem("/main.yaml"))
	require.Len(t, main.Imports, 1)
	assert.True(t, main.Imports[0].Dynamic)
	assert.True(t, main.Imports[0].Resolved.IsZero())

	s, wave, err := b.Begin(g, mem("/main.yaml"), "./lazy.yaml")
	require.NoError(t, err)
	assert.Equal(t, mem("/lazy.yaml"), s)
	assert.Equal(t, []specifier.Specifier{s}, wave)
	assert.Equal(t, mem("/lazy.yaml"), main.Imports[0].Resolved)

	for len(wave) > 0 {
		wave, err = b.Integrate(ctx, g, b.Fetch(ctx, wave))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, g.Len())

	dep, _ := g.Get(mem("/dep.yaml"))
	assert.True(t, dep.Dynamic)

	_, wave, err = b.Begin(g, mem("/main.yaml"), "./lazy.yaml")
	require.NoError(t, err)
	assert.Empty(t, wave, "already loaded modules are not fetched again")
	assert.Equal(t, 1, ld.FetchCount(mem("/lazy.yaml")))
}

func TestBuild_StateObserver(t *testing.T) {
	ld := loader.NewMemoryLoader()
	ld.MustAdd("/main.yaml", "imports:\n  - from: ./a.yaml\n")
	ld.MustAdd("/a.yaml", "")

	var seen []string
	b := NewBuilder(ld, modscript.New(),
		WithMaxConcurrentLoads(1),
		WithStateObserver(func(s specifier.Specifier, st State) {
			seen = append(seen, s.Path()+":"+st.String())
		}),
	)

	_, err := b.Build(context.Background(), mem("/main.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/main.yaml:fetching",
		"/main.yaml:fetched",
		"/main.yaml:parsed",
		"/a.yaml:fetching",
		"/a.yaml:fetched",
		"/a.yaml:parsed",
	}, seen)
}

func TestFetch_ResultsInWaveOrder(t *testing.T) {
	_, b := newFixture(t, map[string]string{
		"/a.yaml": "exports:\n  a: 1\n",
	})
	ctx := context.Background()

	wave := []specifier.Specifier{mem("/missing.yaml"), mem("/a.yaml")}
	results := b.Fetch(ctx, wave)
	require.Len(t, results, 2)
	assert.Equal(t, mem("/missing.yaml"), results[0].Specifier)
	assert.ErrorIs(t, results[0].Err, loader.ErrNotFound)
	assert.Equal(t, FetchResult{Specifier: mem("/a.yaml"), Source: results[1].Source}, results[1])
	assert.Equal(t, "exports:\n  a: 1\n", results[1].Source.Text)

	g, err := b.Build(ctx, mem("/a.yaml"))
	require.NoError(t, err)
	g.add(mem("/missing.yaml"), mem("/a.yaml"), true)

	_, err = b.Integrate(ctx, g, results[:1])
	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, mem("/missing.yaml"), ge.Specifier)
	r, ok := g.Get(mem("/missing.yaml"))
	require.True(t, ok)
	assert.Equal(t, Errored, r.State)
}
