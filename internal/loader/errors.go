package loader

import (
	"errors"
	"fmt"

	"github.com/roach88/modhost/internal/specifier"
)

// Kind categorizes load failures.
type Kind string

const (
	// KindNotFound indicates no module exists at the specifier.
	KindNotFound Kind = "not_found"

	// KindPermissionDenied indicates the module exists but cannot be read.
	KindPermissionDenied Kind = "permission_denied"

	// KindDecode indicates the source could not be decoded as text.
	KindDecode Kind = "decode_error"

	// KindIntegrity indicates the source does not match its lockfile hash.
	KindIntegrity Kind = "integrity_error"

	// KindUnsupported indicates no fetcher serves the specifier's scheme.
	KindUnsupported Kind = "unsupported"
)

// Sentinels matched by LoadError.Is for errors.Is classification.
var (
	ErrNotFound         = errors.New("module not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDecode           = errors.New("decode error")
	ErrIntegrity        = errors.New("integrity check failed")
	ErrUnsupported      = errors.New("unsupported module origin")
)

// LoadError reports a failure to load one specifier.
type LoadError struct {
	Specifier specifier.Specifier
	Kind      Kind
	Cause     error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Specifier, e.Kind, e.Cause)
	}
	return fmt.Sprintf("load %s: %s", e.Specifier, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's kind.
func (e *LoadError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrPermissionDenied:
		return e.Kind == KindPermissionDenied
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrIntegrity:
		return e.Kind == KindIntegrity
	case ErrUnsupported:
		return e.Kind == KindUnsupported
	}
	return false
}

func loadError(s specifier.Specifier, kind Kind, cause error) *LoadError {
	return &LoadError{Specifier: s, Kind: kind, Cause: cause}
}
