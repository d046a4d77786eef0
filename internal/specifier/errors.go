package specifier

import (
	"errors"
	"fmt"
)

// ErrInvalidSpecifier is the sentinel matched by every InvalidSpecifierError.
var ErrInvalidSpecifier = errors.New("invalid specifier")

// InvalidSpecifierError reports a raw reference that cannot be resolved.
type InvalidSpecifierError struct {
	// Raw is the reference as written in the importing module.
	Raw string

	// Base is the canonical specifier of the importing module, if any.
	Base string

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *InvalidSpecifierError) Error() string {
	if e.Base != "" {
		return fmt.Sprintf("invalid specifier %q from %s: %s", e.Raw, e.Base, e.Reason)
	}
	return fmt.Sprintf("invalid specifier %q: %s", e.Raw, e.Reason)
}

// Is reports whether target is ErrInvalidSpecifier.
func (e *InvalidSpecifierError) Is(target error) bool {
	return target == ErrInvalidSpecifier
}

func invalidf(raw string, base *Specifier, format string, args ...any) *InvalidSpecifierError {
	e := &InvalidSpecifierError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
	if base != nil {
		e.Base = base.String()
	}
	return e
}
