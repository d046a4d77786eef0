// Package loop implements the single-threaded cooperative event loop that
// drives module evaluation to completion.
//
// Scheduling model:
//
//   - Microtasks (promise reactions, queued callbacks) run in FIFO order and
//     are drained completely before any macrotask runs. Microtasks queued
//     during a drain run in the same drain.
//   - Macrotasks (timers, I/O completions, dynamic-import completions) run
//     one at a time, each followed by a full microtask drain.
//   - The loop terminates when the run's Completion has settled and no work
//     remains. If nothing is pending and the Completion is still unsettled,
//     the run fails with ErrEventLoopStalled instead of blocking forever.
//
// All loop state is owned by the goroutine calling Run. Other goroutines
// interact with the loop only through PendingOp.Complete, which posts a
// macrotask into a thread-safe ingress queue.
package loop
