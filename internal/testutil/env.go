package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/loop"
)

// Epoch is the start of virtual time in tests.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// VirtualTime returns a virtual time source starting at Epoch.
func VirtualTime() *loop.VirtualTime {
	return loop.NewVirtualTime(Epoch)
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Modules returns an in-memory loader holding modules, keyed by path
// ("/main.yaml") or full mem: URL.
func Modules(t testing.TB, modules map[string]string) *loader.MemoryLoader {
	t.Helper()
	ld := loader.NewMemoryLoader()
	for ref, text := range modules {
		if _, err := ld.Add(ref, text); err != nil {
			t.Fatalf("add module %s: %v", ref, err)
		}
	}
	return ld
}
