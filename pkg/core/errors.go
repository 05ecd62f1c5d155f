package core

import (
	"errors"
	"fmt"

	"github.com/vecolite/vecolite/pkg/index"
)

// Sentinel errors returned by catalog and collection operations.
var (
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the collection's fixed dimensionality.
	ErrDimensionMismatch = index.ErrDimensionMismatch

	// ErrDuplicateID is returned by Add when an id already exists.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound is returned when a collection or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a collection name is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrProviderMismatch is returned when a collection is used with an
	// embedding provider other than the one it was created with.
	ErrProviderMismatch = errors.New("embedding provider mismatch")

	// ErrStoreClosed is returned when operating on a closed catalog.
	ErrStoreClosed = errors.New("catalog is closed")

	// ErrPersistence is returned when an I/O failure prevents a
	// mutation from committing or the catalog from loading. The failed
	// operation left prior state unchanged and may be retried whole.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidVector is returned when vector data is malformed.
	ErrInvalidVector = errors.New("invalid vector data")
)

// StoreError wraps errors with operation context.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("vecolite: %v", e.Err)
	}
	return fmt.Sprintf("vecolite: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
