package janitor

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when max attempts is not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

	// ErrCleanerRequired is returned when no cleaner is provided.
	ErrCleanerRequired = errors.New("cleaner is required")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("janitor already started")
)
