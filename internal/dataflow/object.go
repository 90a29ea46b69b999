package dataflow

import (
	"context"

	"go.uber.org/zap"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/comm"
)

// Object is a graph instance a Runtime can schedule. Implementations embed
// Base.
type Object interface {
	// Arenas returns the wire formats payloads of this object use.
	Arenas() *arena.Registry
	// Tasks returns the tasks this rank executes.
	Tasks() ([]*Task, error)

	base() *Base
}

// Base carries the identity and lifecycle shared by every Object.
type Base struct {
	name string
	id   uint32
	lc   Lifecycle
}

// NewBase creates a Base in the CREATED state.
func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) base() *Base { return b }

// Name returns the object name.
func (b *Base) Name() string { return b.name }

// ID returns the identifier assigned at Enqueue. It scopes message tags
// and is the same on every rank when ranks enqueue in the same order.
func (b *Base) ID() uint32 { return b.id }

// State returns the lifecycle state.
func (b *Base) State() State { return b.lc.State() }

// Lifecycle returns the object's lifecycle.
func (b *Base) Lifecycle() *Lifecycle { return &b.lc }

// Input is a message a task consumes before it runs. Deliver receives the
// payload once it has been checked against Role.
type Input struct {
	From    int
	Tag     comm.Tag
	Role    arena.Role
	Deliver func(payload []byte) error
}

// Task is one unit of work of an object on the local rank.
type Task struct {
	Name  string
	Kind  string
	After []string
	// Inputs lists the messages the task waits for. It is evaluated once,
	// after every task in After has completed.
	Inputs func() []Input
	Run    func(ctx context.Context, tc *TaskContext) error
}

// TaskContext is handed to a running task.
type TaskContext struct {
	rt   *Runtime
	obj  Object
	task *Task
	log  *zap.Logger
}

// Rank returns the local rank.
func (tc *TaskContext) Rank() int { return tc.rt.Rank() }

// Logger returns a logger scoped to the task.
func (tc *TaskContext) Logger() *zap.Logger { return tc.log }

// Send ships payload to rank to under role. The payload must match the
// role's extent.
func (tc *TaskContext) Send(to int, role arena.Role, tag comm.Tag, payload []byte) error {
	if err := tc.obj.Arenas().CheckPayload(role, payload); err != nil {
		return err
	}
	tag.Object = tc.obj.base().ID()
	return tc.rt.comm.Send(to, tag, payload)
}

// MakeTag builds a tag for kind at step k and tile (i, j). The object
// scope is filled in by the runtime.
func MakeTag(kind uint8, k, i, j int) comm.Tag {
	return comm.Tag{Kind: kind, K: int32(k), I: int32(i), J: int32(j)}
}
