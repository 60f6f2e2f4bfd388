package community

import "errors"

var (
	// ErrPostNotFound is returned when a post ID is not in the index.
	ErrPostNotFound = errors.New("post not found")

	// ErrIndexClosed is returned when the index has been closed.
	ErrIndexClosed = errors.New("index closed")

	// ErrInvalidItem is returned when an item cannot be indexed.
	ErrInvalidItem = errors.New("invalid community item")
)
