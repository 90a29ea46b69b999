// Package kernel holds the reference numeric kernels graphs run inside
// their tasks. All matrices are column-major with an explicit leading
// dimension.
package kernel

import (
	"errors"
	"sync/atomic"
)

// ErrClosed is returned by Check after Close.
var ErrClosed = errors.New("numeric library closed")

// Library is the numeric capability handed to graphs. It is created once
// per process and closed when no graph uses it any more.
type Library struct {
	cores  int
	closed atomic.Bool
}

// Init creates a library sized for cores worker threads.
func Init(cores int) *Library {
	if cores < 1 {
		cores = 1
	}
	return &Library{cores: cores}
}

// Cores returns the configured worker count.
func (l *Library) Cores() int { return l.cores }

// Check reports whether the library can still be used.
func (l *Library) Check() error {
	if l == nil || l.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close finalizes the library.
func (l *Library) Close() {
	l.closed.Store(true)
}

// Eps returns the relative machine precision of float64, 2^-53.
func Eps() float64 {
	return 0x1p-53
}
