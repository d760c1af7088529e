package domain

import "github.com/pkg/errors"

var (
	// ErrConnectionNotFound is returned when an operation references a
	// connection id that does not exist or is owned by another user.
	ErrConnectionNotFound = errors.New("calendar connection not found")

	// ErrRecordNotFound is the generic repo-level not-found.
	ErrRecordNotFound = errors.New("record not found")
)
