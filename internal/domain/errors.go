package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	// ErrStaleTransition is returned by compare-and-swap status writes when
	// the expected status no longer matches. It preserves monotonicity under
	// concurrent writers (submitter vs. poller).
	ErrStaleTransition = errors.New("stale status transition")
)
