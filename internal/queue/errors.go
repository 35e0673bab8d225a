package queue

import "errors"

var (
	// ErrEmpty signals that no batch became available within the blocking
	// window; callers poll again.
	ErrEmpty = errors.New("queue: no batch available")

	// ErrClosed signals that the queue was closed and will deliver nothing
	// further.
	ErrClosed = errors.New("queue: closed")
)
