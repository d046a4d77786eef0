package loop

import (
	"errors"
	"fmt"

	"github.com/roach88/modhost/internal/specifier"
)

var (
	// ErrEventLoopStalled is matched by errors.Is when the loop ran out of
	// work while the run's Completion was still unsettled.
	ErrEventLoopStalled = errors.New("event loop stalled")

	// ErrCancelled is matched by errors.Is when the whole run was aborted.
	ErrCancelled = errors.New("run cancelled")

	// ErrTerminated is returned when Run is called on a finished loop.
	ErrTerminated = errors.New("event loop already terminated")
)

// StalledError reports a scheduling deadlock: no microtasks, no pending
// macrotasks, and an unsettled Completion.
type StalledError struct {
	// Entry is the owner of the unsettled Completion.
	Entry specifier.Specifier

	// Unsettled counts promises that were still pending.
	Unsettled int
}

// Error implements the error interface.
func (e *StalledError) Error() string {
	return fmt.Sprintf("event loop stalled: %s never settled (%d pending promises, nothing scheduled)", e.Entry, e.Unsettled)
}

// Is matches ErrEventLoopStalled.
func (e *StalledError) Is(target error) bool {
	return target == ErrEventLoopStalled
}

// CancelledError reports whole-run cancellation. Every promise that was
// unsettled at the time of cancellation is rejected with it.
type CancelledError struct {
	// Cause is the context error (context.Canceled or DeadlineExceeded).
	Cause error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("run cancelled: %v", e.Cause)
	}
	return "run cancelled"
}

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Is matches ErrCancelled.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// TaskError reports a task that returned an error or panicked. It
// terminates the run.
type TaskError struct {
	Owner specifier.Specifier
	Kind  TaskKind
	Name  string
	Cause error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %q of %s failed: %v", e.Kind, e.Name, e.Owner, e.Cause)
}

// Unwrap returns the task's error.
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// UnhandledRejectionError reports a promise that was rejected and never
// observed by the time the run finished.
type UnhandledRejectionError struct {
	Owner  specifier.Specifier
	Reason error
}

// Error implements the error interface.
func (e *UnhandledRejectionError) Error() string {
	return fmt.Sprintf("unhandled rejection in %s: %v", e.Owner, e.Reason)
}

// Unwrap returns the rejection reason.
func (e *UnhandledRejectionError) Unwrap() error {
	return e.Reason
}

// IsStalled reports whether err is (or wraps) a stall.
func IsStalled(err error) bool {
	return errors.Is(err, ErrEventLoopStalled)
}

// IsCancelled reports whether err is (or wraps) a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
