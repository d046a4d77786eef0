package linker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/graph"
	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/modscript"
	"github.com/roach88/modhost/internal/specifier"
)

func mem(path string) specifier.Specifier {
	return specifier.MustParse("mem://" + path)
}

func build(t *testing.T, entry string, modules map[string]string) (*graph.Graph, *modscript.Engine) {
	t.Helper()
	ld := loader.NewMemoryLoader()
	for p, text := range modules {
		ld.MustAdd(p, text)
	}
	eng := modscript.New()
	g, err := graph.NewBuilder(ld, eng).Build(context.Background(), mem(entry))
	require.NoError(t, err)
	return g, eng
}

func TestOrder_PostOrderDiamond(t *testing.T) {
	g, _ := build(t, "/main.yaml", map[string]string{
		"/main.yaml": "imports:\n  - from: ./a.yaml\n  - from: ./b.yaml\n",
		"/a.yaml":    "imports:\n  - from: ./c.yaml\n",
		"/b.yaml":    "imports:\n  - from: ./c.yaml\n",
		"/c.yaml":    "",
	})

	assert.Equal(t, []specifier.Specifier{
		mem("/c.yaml"), mem("/a.yaml"), mem("/b.yaml"), mem("/main.yaml"),
	}, Order(g, mem("/main.yaml")))
}

func TestOrder_CycleFirstVisitWins(t *testing.T) {
	g, _ := build(t, "/a.yaml", map[string]string{
		"/a.yaml": "imports:\n  - from: ./b.yaml\n",
		"/b.yaml": "imports:\n  - from: ./a.yaml\n",
	})

	assert.Equal(t, []specifier.Specifier{mem("/b.yaml"), mem("/a.yaml")}, Order(g, mem("/a.yaml")))
	// Deterministic across calls.
	assert.Equal(t, Order(g, mem("/a.yaml")), Order(g, mem("/a.yaml")))
}

func TestLink_BindsAndMarksLinked(t *testing.T) {
	g, eng := build(t, "/main.yaml", map[string]string{
		"/main.yaml": "imports:\n  - from: ./util.yaml\n    names: {value: value}\n    namespace: util\n",
		"/util.yaml": "exports:\n  value: 1\n",
	})
	order, err := New(eng, nil).Link(context.Background(), g, mem("/main.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []specifier.Specifier{mem("/util.yaml"), mem("/main.yaml")}, order)

	for _, s := range order {
		r, _ := g.Get(s)
		assert.Equal(t, graph.Linked, r.State, s.String())
	}
}

func TestLink_MissingExport(t *testing.T) {
	g, eng := build(t, "/main.yaml", map[string]string{
		"/main.yaml": "imports:\n  - from: ./util.yaml\n    names: {nope: nope}\n",
		"/util.yaml": "exports:\n  value: 1\n",
	})

	_, err := New(eng, nil).Link(context.Background(), g, mem("/main.yaml"))
	require.Error(t, err)

	var le *LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, mem("/main.yaml"), le.Specifier)
	assert.Equal(t, mem("/util.yaml"), le.Dependency)
	assert.Equal(t, "nope", le.MissingExport)
	assert.Contains(t, le.Error(), `does not export "nope"`)

	r, _ := g.Get(mem("/main.yaml"))
	assert.Equal(t, graph.Errored, r.State)
}

func TestLink_CycleLinksWithoutRecursion(t *testing.T) {
	g, eng := build(t, "/a.yaml", map[string]string{
		"/a.yaml": "imports:\n  - from: ./b.yaml\n    names: {fromB: b}\nexports:\n  a: 1\n",
		"/b.yaml": "imports:\n  - from: ./a.yaml\n    names: {fromA: a}\nexports:\n  b: 2\n",
	})

	order, err := New(eng, nil).Link(context.Background(), g, mem("/a.yaml"))
	require.NoError(t, err)
	assert.Len(t, order, 2)
}

func TestExportNames_StarExports(t *testing.T) {
	g, eng := build(t, "/main.yaml", map[string]string{
		"/main.yaml":   "imports:\n  - from: ./barrel.yaml\n    names: {deep: deep, own: own}\n",
		"/barrel.yaml": "exports:\n  own: 1\n  default: 0\nreexport: [./deep.yaml, ./barrel.yaml]\n",
		"/deep.yaml":   "exports:\n  deep: 2\n  default: 3\n",
	})

	assert.Equal(t, []string{"deep", "default", "own"}, ExportNames(g, mem("/barrel.yaml")))
	assert.Equal(t, []string{"deep", "default"}, ExportNames(g, mem("/deep.yaml")))

	_, err := New(eng, nil).Link(context.Background(), g, mem("/main.yaml"))
	assert.NoError(t, err)
}
