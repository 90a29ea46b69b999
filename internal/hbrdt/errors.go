package hbrdt

import "errors"

var (
	// ErrInvalidLayout is returned when a matrix does not hold band storage
	// of the requested order.
	ErrInvalidLayout = errors.New("invalid band layout")
	// ErrGridMismatch is returned when the matrix is not distributed 1D
	// cyclic over every rank of the runtime.
	ErrGridMismatch = errors.New("band matrix grid mismatch")
	// ErrLifecycle is returned for graph operations out of order.
	ErrLifecycle = errors.New("band graph lifecycle violation")
)
