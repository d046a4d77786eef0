package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Run settled, graph linked, or all scenarios passed
	ExitFailure      = 1 // Run failure (graph, link, evaluation, stall, cancel) or failed scenarios
	ExitCommandError = 2 // Command error (bad flags, unreadable config, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set when the command already rendered the failure
	// through its OutputFormatter, so main must not print it again.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Commands report run
// failures as *ExitError, so anything else (unknown flags, wrong argument
// counts from cobra) is a command error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// IsReported reports whether err was already rendered to the user.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Diagnostics and text-mode errors (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`           // "ok" or "error"
	RunID  string    `json:"run_id,omitempty"` // run correlation
	Data   any       `json:"data,omitempty"`   // success payload
	Error  *CLIError `json:"error,omitempty"`  // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code      string `json:"code"`                // host error code, e.g. "GRAPH_ERROR"
	Specifier string `json:"specifier,omitempty"` // module the failure is attributed to
	Message   string `json:"message"`             // human-readable message
	Details   any    `json:"details,omitempty"`   // additional context
}

// Success outputs a successful result in the configured format. In text
// mode data is printed with fmt.Fprintln, so callers pass a string or a
// fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format. JSON goes to Writer so
// the response stays machine-readable; text goes to ErrWriter.
func (f *OutputFormatter) Error(e CLIError) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "error", Error: &e})
	}

	w := f.GetErrWriter()
	if e.Specifier != "" {
		fmt.Fprintf(w, "Error [%s] %s: %s\n", e.Code, e.Specifier, e.Message)
	} else {
		fmt.Fprintf(w, "Error [%s]: %s\n", e.Code, e.Message)
	}
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(w, "Details: %v\n", e.Details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
