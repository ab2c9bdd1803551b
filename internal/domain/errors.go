package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested process does not exist
var ErrNotFound = errors.New("not found")

// ValidationError explains why a candidate annotation was rejected
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// StorageError wraps a failure of the underlying document store
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorage reports whether err came from the document store
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
