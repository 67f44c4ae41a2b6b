package service

import (
	"errors"
	"fmt"
)

var (
	// ErrStudentNotFound indicates the student does not exist.
	ErrStudentNotFound = errors.New("student not found")
	// ErrPlanNotFound indicates the plan does not exist.
	ErrPlanNotFound = errors.New("plan not found")
)

// StorageError reports a transient persistence failure. The engine never
// retries; callers decide whether to try again.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err wraps a StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsStorageError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
