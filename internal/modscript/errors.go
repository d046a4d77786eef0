package modscript

import (
	"errors"
	"fmt"

	"github.com/roach88/modhost/internal/specifier"
)

// ErrUnknownHandle is returned for handles the engine never issued.
var ErrUnknownHandle = errors.New("unknown module handle")

// ThrowError is raised by a throw step.
type ThrowError struct {
	Specifier specifier.Specifier
	Message   string
}

// Error implements the error interface.
func (e *ThrowError) Error() string {
	return fmt.Sprintf("%s threw: %s", e.Specifier, e.Message)
}

// ReferenceError reports a name that is undefined or not yet initialized.
type ReferenceError struct {
	Specifier specifier.Specifier
	Name      string
	Reason    string
}

// Error implements the error interface.
func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: reference %q: %s", e.Specifier, e.Name, e.Reason)
}
