package dataflow

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of a graph object.
type State int

const (
	StateCreated State = iota
	StateEnqueued
	StateRunning
	StateQuiescent
	StateDestroyed
	// StateFailed is entered instead of QUIESCENT when local execution
	// stopped on an error; peers may still be running the object.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateEnqueued:
		return "ENQUEUED"
	case StateRunning:
		return "RUNNING"
	case StateQuiescent:
		return "QUIESCENT"
	case StateDestroyed:
		return "DESTROYED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Lifecycle tracks an object's state. States only move forward, one step
// at a time.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Advance moves from the current state to to, which must be its successor.
func (l *Lifecycle) Advance(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if to != l.state+1 || to > StateDestroyed {
		return fmt.Errorf("%w: %s -> %s", ErrLifecycle, l.state, to)
	}
	l.state = to
	return nil
}

// Fail moves an enqueued or running object to FAILED.
func (l *Lifecycle) Fail() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateEnqueued && l.state != StateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrLifecycle, l.state, StateFailed)
	}
	l.state = StateFailed
	return nil
}

// discard moves a failed object to DESTROYED.
func (l *Lifecycle) discard() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateFailed {
		return fmt.Errorf("%w: discard in %s", ErrLifecycle, l.state)
	}
	l.state = StateDestroyed
	return nil
}

// Require returns an error unless the current state is s.
func (l *Lifecycle) Require(s State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != s {
		return fmt.Errorf("%w: in %s, want %s", ErrLifecycle, l.state, s)
	}
	return nil
}
