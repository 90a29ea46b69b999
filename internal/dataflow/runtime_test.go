package dataflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/tiled"
)

type testObject struct {
	Base
	reg   *arena.Registry
	build func() []*Task
}

func newTestObject(t *testing.T, rt *Runtime, build func() []*Task) *testObject {
	t.Helper()
	reg := arena.NewRegistry(rt.Types())
	require.NoError(t, reg.Define(arena.Rectangle(arena.Default, tiled.Float64, 2, 1)))
	return &testObject{Base: NewBase("test"), reg: reg, build: build}
}

func (o *testObject) Arenas() *arena.Registry { return o.reg }
func (o *testObject) Tasks() ([]*Task, error) { return o.build(), nil }

func newRuntime(t *testing.T, c comm.Communicator) *Runtime {
	t.Helper()
	rt, err := New(c, WithCores(3))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestRuntime_DependencyOrder(t *testing.T) {
	rt := newRuntime(t, comm.NewSelf())

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context, *TaskContext) error {
		return func(context.Context, *TaskContext) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	obj := newTestObject(t, rt, func() []*Task {
		return []*Task{
			{Name: "d", Kind: "join", After: []string{"b", "c"}, Run: record("d")},
			{Name: "b", Kind: "work", After: []string{"a"}, Run: record("b")},
			{Name: "c", Kind: "work", After: []string{"a"}, Run: record("c")},
			{Name: "a", Kind: "start", Run: record("a")},
		}
	})

	require.NoError(t, rt.Enqueue(obj))
	assert.Equal(t, StateEnqueued, obj.State())
	assert.Equal(t, uint32(1), obj.ID())
	require.NoError(t, rt.Run(context.Background()))
	assert.Equal(t, StateQuiescent, obj.State())

	require.Len(t, order, 4)
	assert.Equal(t, "a", order[0])
	assert.Equal(t, "d", order[3])
	assert.Equal(t, int64(4), rt.Stats().Total())

	require.NoError(t, obj.reg.UndefineAll())
	require.NoError(t, rt.Release(obj))
	assert.Equal(t, StateDestroyed, obj.State())
	assert.Zero(t, rt.Live())
}

func TestRuntime_CrossRankInputs(t *testing.T) {
	ranks := comm.NewLocalGroup(2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got [2]float64
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range ranks {
		c := c
		g.Go(func() error {
			rt, err := New(c, WithCores(2))
			if err != nil {
				return err
			}
			defer rt.Close()

			me, peer := c.Rank(), 1-c.Rank()
			tag := MakeTag(1, 0, me, 0)
			obj := newTestObject(t, rt, func() []*Task {
				return []*Task{
					{
						Name: "send",
						Kind: "send",
						Run: func(_ context.Context, tc *TaskContext) error {
							return tc.Send(peer, arena.Default, MakeTag(1, 0, peer, 0),
								tiled.Encode([]float64{float64(me + 1), 0}))
						},
					},
					{
						Name: "recv",
						Kind: "recv",
						Inputs: func() []Input {
							return []Input{{
								From: peer,
								Tag:  tag,
								Role: arena.Default,
								Deliver: func(p []byte) error {
									v := make([]float64, 2)
									if err := tiled.Decode(p, v); err != nil {
										return err
									}
									got[me] = v[0]
									return nil
								},
							}}
						},
					},
				}
			})
			if err := rt.Enqueue(obj); err != nil {
				return err
			}
			if err := rt.Run(gctx); err != nil {
				return err
			}
			if err := obj.reg.UndefineAll(); err != nil {
				return err
			}
			return rt.Release(obj)
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, [2]float64{2, 1}, got)
}

func TestRuntime_LazyInputsSeeCompletedPredecessors(t *testing.T) {
	rt := newRuntime(t, comm.NewSelf())
	var count atomic.Int32

	obj := newTestObject(t, rt, func() []*Task {
		return []*Task{
			{
				Name: "decide",
				Run: func(_ context.Context, tc *TaskContext) error {
					count.Store(2)
					for i := 0; i < 2; i++ {
						if err := tc.Send(0, arena.Default, MakeTag(2, 0, i, 0), make([]byte, 16)); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				Name:  "consume",
				After: []string{"decide"},
				Inputs: func() []Input {
					ins := make([]Input, count.Load())
					for i := range ins {
						ins[i] = Input{From: 0, Tag: MakeTag(2, 0, i, 0), Role: arena.Default}
					}
					return ins
				},
			},
		}
	})
	require.NoError(t, rt.Enqueue(obj))
	require.NoError(t, rt.Run(context.Background()))
}

func TestRuntime_TaskErrorStopsGraph(t *testing.T) {
	rt := newRuntime(t, comm.NewSelf())
	var ran atomic.Bool

	obj := newTestObject(t, rt, func() []*Task {
		return []*Task{
			{Name: "bad", Run: func(context.Context, *TaskContext) error { return assert.AnError }},
			{Name: "never", After: []string{"bad"}, Run: func(context.Context, *TaskContext) error {
				ran.Store(true)
				return nil
			}},
		}
	})
	require.NoError(t, rt.Enqueue(obj))
	err := rt.Run(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, ran.Load())
	assert.Equal(t, StateFailed, obj.State())

	// a failed object is not quiescent: Release refuses it, Discard drops it
	assert.ErrorIs(t, rt.Release(obj), ErrLifecycle)
	require.NoError(t, rt.Discard(obj))
	assert.Equal(t, StateDestroyed, obj.State())
	assert.Zero(t, rt.Live())
	assert.ErrorIs(t, rt.Discard(obj), ErrNotEnqueued)
}

func TestRuntime_FailureMarksQueuedObjectsFailed(t *testing.T) {
	rt := newRuntime(t, comm.NewSelf())
	bad := newTestObject(t, rt, func() []*Task {
		return []*Task{{Name: "bad", Run: func(context.Context, *TaskContext) error { return assert.AnError }}}
	})
	behind := newTestObject(t, rt, func() []*Task { return nil })
	require.NoError(t, rt.Enqueue(bad))
	require.NoError(t, rt.Enqueue(behind))

	assert.ErrorIs(t, rt.Run(context.Background()), assert.AnError)
	assert.Equal(t, StateFailed, behind.State())
	require.NoError(t, rt.Discard(bad))
	require.NoError(t, rt.Discard(behind))
	assert.Zero(t, rt.Live())
}

func TestRuntime_RunObjectLeavesOthersQueued(t *testing.T) {
	rt := newRuntime(t, comm.NewSelf())
	var firstRan, secondRan atomic.Bool
	first := newTestObject(t, rt, func() []*Task {
		return []*Task{{Name: "a", Run: func(context.Context, *TaskContext) error { firstRan.Store(true); return nil }}}
	})
	second := newTestObject(t, rt, func() []*Task {
		return []*Task{{Name: "a", Run: func(context.Context, *TaskContext) error { secondRan.Store(true); return nil }}}
	})
	require.NoError(t, rt.Enqueue(first))
	require.NoError(t, rt.Enqueue(second))

	require.NoError(t, rt.RunObject(context.Background(), second))
	assert.True(t, secondRan.Load())
	assert.False(t, firstRan.Load())
	assert.Equal(t, StateEnqueued, first.State())
	assert.Equal(t, StateQuiescent, second.State())
	assert.ErrorIs(t, rt.RunObject(context.Background(), second), ErrNotEnqueued)

	require.NoError(t, rt.RunObject(context.Background(), first))
	assert.True(t, firstRan.Load())
	require.NoError(t, rt.Release(first))
	require.NoError(t, rt.Release(second))
}

func TestRuntime_PayloadValidatedOnSend(t *testing.T) {
	rt := newRuntime(t, comm.NewSelf())
	obj := newTestObject(t, rt, func() []*Task {
		return []*Task{{Name: "short", Run: func(_ context.Context, tc *TaskContext) error {
			return tc.Send(0, arena.Default, MakeTag(1, 0, 0, 0), make([]byte, 3))
		}}}
	})
	require.NoError(t, rt.Enqueue(obj))
	assert.ErrorIs(t, rt.Run(context.Background()), arena.ErrExtentMismatch)
}

func TestRuntime_PlanErrors(t *testing.T) {
	_, err := plan([]*Task{{Name: "a", After: []string{"b"}}, {Name: "b", After: []string{"a"}}})
	assert.ErrorIs(t, err, ErrCycle)

	_, err = plan([]*Task{{Name: "a", After: []string{"zzz"}}})
	assert.ErrorIs(t, err, ErrUnknownDependency)

	_, err = plan([]*Task{{Name: "a"}, {Name: "a"}})
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestRuntime_LifecycleViolations(t *testing.T) {
	rt := newRuntime(t, comm.NewSelf())
	obj := newTestObject(t, rt, func() []*Task { return nil })

	assert.ErrorIs(t, rt.Release(obj), ErrNotEnqueued)
	require.NoError(t, rt.Enqueue(obj))
	assert.ErrorIs(t, rt.Enqueue(obj), ErrLifecycle)
	assert.ErrorIs(t, rt.Release(obj), ErrLifecycle)

	require.NoError(t, rt.Run(context.Background()))
	require.NoError(t, rt.Release(obj))
	assert.ErrorIs(t, rt.Release(obj), ErrLifecycle)
	assert.ErrorIs(t, rt.Enqueue(obj), ErrLifecycle)
}

func TestRuntime_NilObjectIsNoop(t *testing.T) {
	rt := newRuntime(t, comm.NewSelf())
	var obj *testObject
	require.NoError(t, rt.Enqueue(obj))
	require.NoError(t, rt.Enqueue(nil))
	require.NoError(t, rt.Release(obj))
	require.NoError(t, rt.Run(context.Background()))
	assert.Zero(t, rt.Live())
}

func TestRuntime_CloseReportsLiveObjects(t *testing.T) {
	rt, err := New(comm.NewSelf())
	require.NoError(t, err)
	obj := newTestObject(t, rt, func() []*Task { return nil })
	require.NoError(t, rt.Enqueue(obj))
	assert.Error(t, rt.Close())
	assert.ErrorIs(t, rt.Enqueue(newTestObject(t, rt, nil)), ErrRuntimeClosed)
}

func TestLifecycle_StrictlyForward(t *testing.T) {
	var lc Lifecycle
	assert.ErrorIs(t, lc.Advance(StateRunning), ErrLifecycle)
	for _, s := range []State{StateEnqueued, StateRunning, StateQuiescent, StateDestroyed} {
		require.NoError(t, lc.Advance(s))
		require.NoError(t, lc.Require(s))
	}
	assert.ErrorIs(t, lc.Advance(StateFailed), ErrLifecycle)
	assert.ErrorIs(t, lc.Fail(), ErrLifecycle)
	assert.Equal(t, "DESTROYED", lc.State().String())
}

func TestLifecycle_Fail(t *testing.T) {
	var lc Lifecycle
	assert.ErrorIs(t, lc.Fail(), ErrLifecycle)
	require.NoError(t, lc.Advance(StateEnqueued))
	require.NoError(t, lc.Advance(StateRunning))
	require.NoError(t, lc.Fail())
	assert.Equal(t, "FAILED", lc.State().String())
	assert.ErrorIs(t, lc.Advance(StateQuiescent), ErrLifecycle)
	assert.ErrorIs(t, lc.Require(StateQuiescent), ErrLifecycle)
	require.NoError(t, lc.discard())
	assert.Equal(t, StateDestroyed, lc.State())
}
