package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced invoice, order or rule is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates the request cannot proceed as submitted.
	ErrValidation = errors.New("validation failed")
	// ErrSchema indicates an expected column is missing in the store.
	ErrSchema = errors.New("store schema mismatch")
	// ErrLockTimeout indicates the advisory lock was not acquired in time.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// SchemaError wraps ErrSchema with the missing column name so the operator
// sees exactly which part of the store drifted.
func SchemaError(column string) error {
	return fmt.Errorf("%w: column %q", ErrSchema, column)
}
