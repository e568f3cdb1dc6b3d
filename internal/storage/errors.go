package storage

import "errors"

// Common storage errors, shared by every implementation
var (
	// ErrNotFound is returned when an application or profile does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an application ID, or a branch of a root
	// application, is already taken
	ErrConflict = errors.New("already exists")
)

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}
