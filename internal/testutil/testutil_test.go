package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/specifier"
)

func TestFixedRunIDGenerator(t *testing.T) {
	g := NewFixedRunIDGenerator("run-x")
	assert.Equal(t, "run-x", g.Generate())
	assert.Equal(t, "run-x", g.Generate())

	assert.Equal(t, DefaultRunID, NewFixedRunIDGenerator("").Generate())
}

func TestVirtualTime_StartsAtEpoch(t *testing.T) {
	vt := VirtualTime()
	assert.True(t, vt.Now().Equal(Epoch))
	vt.Advance(time.Second)
	assert.True(t, vt.Now().Equal(Epoch.Add(time.Second)))
}

func TestModules(t *testing.T) {
	ld := Modules(t, map[string]string{"/a.yaml": "exports: {a: 1}"})

	src, err := ld.Load(context.Background(), specifier.MustParse("mem:///a.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "exports: {a: 1}", src.Text)
}

func TestDiscardLogger(t *testing.T) {
	assert.NotPanics(t, func() { DiscardLogger().Info("dropped") })
}
