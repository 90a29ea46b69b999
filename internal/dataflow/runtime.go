// Package dataflow schedules graph objects on one rank.
//
// Every rank runs its own Runtime over its share of a logical graph. A task
// becomes ready when its local predecessors have completed and every input
// message has arrived; ready tasks run on a bounded worker pool. Run
// returns once all local tasks finished and every rank reached the same
// point, which is global quiescence.
package dataflow

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/comm"
)

// Runtime schedules graph objects on one rank.
type Runtime struct {
	comm  comm.Communicator
	types *arena.TypeTable
	pool  *ants.Pool
	stats *Stats
	log   *zap.Logger
	cores int

	mu      sync.Mutex
	nextID  uint32
	queue   []Object
	live    map[uint32]Object
	closed  bool
	running bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCores sets the number of worker goroutines.
func WithCores(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.cores = n
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.log = l
		}
	}
}

// WithTypeTable shares a type table with other runtimes.
func WithTypeTable(t *arena.TypeTable) Option {
	return func(rt *Runtime) {
		if t != nil {
			rt.types = t
		}
	}
}

// New creates a runtime for the rank c connects.
func New(c comm.Communicator, opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		comm:  c,
		types: arena.NewTypeTable(),
		stats: NewStats(),
		log:   zap.NewNop(),
		cores: 1,
		live:  make(map[uint32]Object),
	}
	for _, opt := range opts {
		opt(rt)
	}
	pool, err := ants.NewPool(rt.cores)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	rt.pool = pool
	return rt, nil
}

// Rank returns the local rank.
func (rt *Runtime) Rank() int { return rt.comm.Rank() }

// Size returns the number of ranks.
func (rt *Runtime) Size() int { return rt.comm.Size() }

// Comm returns the communicator.
func (rt *Runtime) Comm() comm.Communicator { return rt.comm }

// Types returns the runtime's type table.
func (rt *Runtime) Types() *arena.TypeTable { return rt.types }

// Stats returns the task duration statistics.
func (rt *Runtime) Stats() *Stats { return rt.stats }

// Cores returns the worker pool size.
func (rt *Runtime) Cores() int { return rt.cores }

// Live returns the number of enqueued objects not yet released.
func (rt *Runtime) Live() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.live)
}

// Enqueue schedules obj for the next Run. A nil object is ignored.
func (rt *Runtime) Enqueue(obj Object) error {
	if isNil(obj) {
		return nil
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return ErrRuntimeClosed
	}
	b := obj.base()
	if err := b.lc.Advance(StateEnqueued); err != nil {
		return fmt.Errorf("enqueue %s: %w", b.name, err)
	}
	rt.nextID++
	b.id = rt.nextID
	rt.queue = append(rt.queue, obj)
	rt.live[b.id] = obj
	return nil
}

// Run executes every enqueued object in enqueue order and blocks until each
// reached global quiescence. If one fails, the objects behind it are marked
// FAILED so they can still be discarded.
func (rt *Runtime) Run(ctx context.Context) error {
	queue, err := rt.take(nil)
	if err != nil {
		return err
	}
	defer rt.idle()

	for i, obj := range queue {
		if err := rt.runObject(ctx, obj); err != nil {
			for _, rest := range queue[i+1:] {
				_ = rest.base().lc.Fail()
			}
			return err
		}
	}
	return nil
}

// RunObject executes obj alone and blocks until it reached global
// quiescence. Other enqueued objects stay queued.
func (rt *Runtime) RunObject(ctx context.Context, obj Object) error {
	if isNil(obj) {
		return nil
	}
	if _, err := rt.take(obj); err != nil {
		return err
	}
	defer rt.idle()
	return rt.runObject(ctx, obj)
}

// take marks the runtime running and removes obj, or every object when obj
// is nil, from the queue.
func (rt *Runtime) take(obj Object) ([]Object, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, ErrRuntimeClosed
	}
	if rt.running {
		return nil, fmt.Errorf("%w: runtime already running", ErrLifecycle)
	}
	var taken []Object
	if obj == nil {
		taken, rt.queue = rt.queue, nil
	} else {
		for i, q := range rt.queue {
			if q == obj {
				taken = []Object{q}
				rt.queue = append(rt.queue[:i:i], rt.queue[i+1:]...)
				break
			}
		}
		if taken == nil {
			return nil, fmt.Errorf("run %s: %w", obj.base().name, ErrNotEnqueued)
		}
	}
	rt.running = true
	return taken, nil
}

func (rt *Runtime) idle() {
	rt.mu.Lock()
	rt.running = false
	rt.mu.Unlock()
}

func (rt *Runtime) runObject(ctx context.Context, obj Object) error {
	b := obj.base()
	log := rt.log.With(zap.String("object", b.name), zap.Uint32("id", b.id))
	if err := b.lc.Advance(StateRunning); err != nil {
		return fmt.Errorf("run %s: %w", b.name, err)
	}

	start := time.Now()
	tasks, err := obj.Tasks()
	if err == nil {
		err = rt.execute(ctx, obj, tasks, log)
	}
	if err != nil {
		_ = b.lc.Fail()
		log.Error("graph failed", zap.Error(err))
		return fmt.Errorf("run %s: %w", b.name, err)
	}

	if err := rt.comm.Barrier(ctx); err != nil {
		_ = b.lc.Fail()
		return fmt.Errorf("quiescence barrier for %s: %w", b.name, err)
	}
	if err := b.lc.Advance(StateQuiescent); err != nil {
		return err
	}
	log.Debug("graph quiescent",
		zap.Int("tasks", len(tasks)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Release drops a quiescent object and marks it DESTROYED. Releasing a nil
// object is a no-op.
func (rt *Runtime) Release(obj Object) error {
	if isNil(obj) {
		return nil
	}
	b := obj.base()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.live[b.id]; !ok || b.id == 0 {
		if b.lc.State() == StateDestroyed {
			return fmt.Errorf("release %s: %w: already destroyed", b.name, ErrLifecycle)
		}
		return fmt.Errorf("release %s: %w", b.name, ErrNotEnqueued)
	}
	if err := b.lc.Advance(StateDestroyed); err != nil {
		return fmt.Errorf("release %s: %w", b.name, err)
	}
	delete(rt.live, b.id)
	return nil
}

// Discard drops a FAILED object and marks it DESTROYED. It is the abort
// path: peers may still hold messages for the object, which are never
// delivered.
func (rt *Runtime) Discard(obj Object) error {
	if isNil(obj) {
		return nil
	}
	b := obj.base()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.live[b.id]; !ok || b.id == 0 {
		return fmt.Errorf("discard %s: %w", b.name, ErrNotEnqueued)
	}
	if err := b.lc.discard(); err != nil {
		return fmt.Errorf("discard %s: %w", b.name, err)
	}
	delete(rt.live, b.id)
	return nil
}

// Close stops the worker pool. Objects still live are reported.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	live := len(rt.live)
	rt.mu.Unlock()

	rt.pool.Release()
	if live > 0 {
		return fmt.Errorf("runtime closed with %d live objects", live)
	}
	return nil
}

func isNil(obj Object) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
