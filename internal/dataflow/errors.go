package dataflow

import "errors"

var (
	// ErrLifecycle is returned when a lifecycle transition is out of order.
	ErrLifecycle = errors.New("lifecycle violation")

	// ErrUnknownDependency is returned when a task waits on a task that
	// does not exist.
	ErrUnknownDependency = errors.New("unknown task dependency")

	// ErrDuplicateTask is returned when two tasks share a name.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrCycle is returned when task dependencies form a cycle.
	ErrCycle = errors.New("task dependencies form a cycle")

	// ErrRuntimeClosed is returned when the runtime has been closed.
	ErrRuntimeClosed = errors.New("runtime is closed")

	// ErrNotEnqueued is returned when an object is released or run by a
	// runtime that never enqueued it.
	ErrNotEnqueued = errors.New("object not enqueued on this runtime")
)
