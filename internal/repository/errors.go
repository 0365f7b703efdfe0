package repository

import (
	"errors"
	"fmt"
)

// StorageError wraps a failed storage operation. It is always retryable:
// callers must treat the affected item as not yet confirmed new.
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

// Temporary reports that the operation may succeed on retry
func (e *StorageError) Temporary() bool {
	return true
}

// IsStorageError reports whether err carries a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
