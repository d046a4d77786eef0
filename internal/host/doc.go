// Package host drives one run of a module graph: it resolves the entry
// reference, builds and links the static graph, evaluates it in
// dependency order on a fresh event loop, and reports the entry's value.
//
// All per-run state lives in a RunContext. The package holds no mutable
// globals, so independent runs may proceed concurrently.
//
// Thread-safety model:
//   - Run: safe for concurrent use
//   - RunContext, Driver: loop goroutine only (graph extension for dynamic
//     imports fetches on worker goroutines and integrates on the loop)
package host
