package tiled

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAllocationFailed is returned when an allocation cannot be served.
	ErrAllocationFailed = errors.New("matrix allocation failed")
	// ErrOutOfOrder is returned when teardown steps run out of order.
	ErrOutOfOrder = errors.New("matrix teardown out of order")
	// ErrAlreadyDone is returned when a teardown step runs twice.
	ErrAlreadyDone = errors.New("matrix teardown step already done")
	// ErrForeignMatrix is returned when a matrix is released through an
	// allocator that did not create it.
	ErrForeignMatrix = errors.New("matrix not owned by allocator")
)

// Counts holds the number of live matrix resources.
type Counts struct {
	Buffers     int `json:"buffers"`
	Descriptors int `json:"descriptors"`
	Objects     int `json:"objects"`
}

// Total returns the sum of all live resources.
func (c Counts) Total() int {
	return c.Buffers + c.Descriptors + c.Objects
}

// Event records one allocator operation.
type Event struct {
	Op   string
	Name string
}

func (e Event) String() string { return e.Op + ":" + e.Name }

// Allocator creates matrices and tracks their resources. It is safe for
// concurrent use.
type Allocator struct {
	mu      sync.Mutex
	live    Counts
	calls   int
	failAt  int
	events  []Event
	tracing bool
}

// NewAllocator creates an allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// FailOnAlloc makes the k-th following Alloc call fail (1-based). Zero
// disables injection.
func (a *Allocator) FailOnAlloc(k int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = 0
	a.failAt = k
}

// Trace enables recording of allocator events.
func (a *Allocator) Trace() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracing = true
}

// Live returns the current live resource counts.
func (a *Allocator) Live() Counts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Events returns a copy of the recorded events.
func (a *Allocator) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

func (a *Allocator) record(op, name string, delta func(*Counts)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delta(&a.live)
	if a.tracing {
		a.events = append(a.events, Event{Op: op, Name: name})
	}
}

func (a *Allocator) admit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.failAt > 0 && a.calls == a.failAt {
		a.failAt = 0
		return ErrAllocationFailed
	}
	return nil
}

// Alloc creates a matrix described by desc with zeroed local tiles.
func Alloc[T Scalar](a *Allocator, name string, desc Descriptor) (*Matrix[T], error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Type != TypeOf[T]() {
		return nil, fmt.Errorf("%w: descriptor type %s, matrix type %s",
			ErrInvalidDescriptor, desc.Type, TypeOf[T]())
	}
	if err := a.admit(); err != nil {
		return nil, fmt.Errorf("alloc %s: %w", name, err)
	}

	local := desc.LocalTiles()
	m := &Matrix[T]{
		desc:    desc,
		name:    name,
		alloc:   a,
		offsets: make(map[TileIndex]int, len(local)),
		data:    make([]T, len(local)*desc.TileElems()),
	}
	for i, idx := range local {
		m.offsets[idx] = i * desc.TileElems()
	}

	a.record("alloc", name, func(c *Counts) {
		c.Buffers++
		c.Descriptors++
		c.Objects++
	})
	return m, nil
}

// Release frees the matrix object. FreeData and Destroy must have run.
func (a *Allocator) Release(m Distributed) error {
	if m == nil {
		return nil
	}
	if m.allocator() != a {
		return fmt.Errorf("release %s: %w", m.Name(), ErrForeignMatrix)
	}
	if err := m.markReleased(); err != nil {
		return err
	}
	a.record("release", m.Name(), func(c *Counts) { c.Objects-- })
	return nil
}
