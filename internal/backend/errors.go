package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the id is absent in the backend.
	ErrNotFound = errors.New("not found")
	// ErrBackendUnavailable is a transport or storage failure reaching the backend.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrWriteRejected is a schema or validation failure reported by the backend.
	ErrWriteRejected = errors.New("write rejected")
	// ErrSchemaConflict means the index exists with an incompatible mapping.
	ErrSchemaConflict = errors.New("schema conflict")
	// ErrConfiguration is a missing or unknown backend selection.
	ErrConfiguration = errors.New("configuration error")
)

// Error is a failure of one backend operation.
type Error struct {
	Backend string
	Op      string
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Backend, e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the native cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns an *Error of the given kind. A nil err with kind set still yields an error.
func Wrap(backendName, op string, kind error, err error) error {
	return &Error{Backend: backendName, Op: op, Kind: kind, Err: err}
}

// KindOf returns the taxonomy sentinel err wraps, or nil if it wraps none.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrBackendUnavailable, ErrWriteRejected, ErrSchemaConflict, ErrConfiguration} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
