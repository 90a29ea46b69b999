package getrf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/kernel"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

func TestGraph_Lifecycle(t *testing.T) {
	s := setupSelf(t, 8, 8, 4)
	defer func() { require.NoError(t, s.close()) }()
	baseline := s.env.Alloc.Live()

	g, status, err := Build(s.env, s.a, s.ipiv, 1, 1)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	assert.Equal(t, dataflow.StateCreated, g.State())
	assert.Equal(t, "zgetrf_fusion[8x8]", g.Name())
	assert.Equal(t, int(arena.NumRoles), g.Arenas().Defined())

	err = g.Destruct()
	assert.True(t, IsLifecycleViolation(err))
	err = g.Run(context.Background())
	assert.True(t, IsLifecycleViolation(err))

	require.NoError(t, g.Enqueue())
	assert.True(t, IsLifecycleViolation(g.Destruct()))

	require.NoError(t, g.Run(context.Background()))
	assert.Equal(t, dataflow.StateQuiescent, g.State())
	assert.Zero(t, g.Info())
	assert.True(t, IsLifecycleViolation(g.Abort()))

	require.NoError(t, g.Destruct())
	assert.Equal(t, dataflow.StateDestroyed, g.State())
	assert.Equal(t, baseline, s.env.Alloc.Live())
	assert.Zero(t, s.env.Runtime.Types().Live())
	assert.Zero(t, s.env.Runtime.Live())

	assert.NotPanics(t, func() {
		assert.True(t, IsLifecycleViolation(g.Destruct()))
		assert.True(t, IsLifecycleViolation(g.Enqueue()))
		assert.True(t, IsLifecycleViolation(g.Run(context.Background())))
		_, err := g.Tasks()
		assert.Error(t, err)
		assert.Zero(t, g.Info())
	})
}

func TestGraph_NilIsNoOp(t *testing.T) {
	var g *Graph
	assert.NoError(t, g.Enqueue())
	assert.NoError(t, g.Run(context.Background()))
	assert.NoError(t, g.Destruct())
	assert.NoError(t, g.Abort())
	assert.Zero(t, g.Info())
}

func TestGraph_FailedRunIsNotQuiescent(t *testing.T) {
	// rank 1 never runs its share
	ranks := comm.NewLocalGroup(2)
	s, err := setupRank(ranks[0], tiled.Grid{P: 2, Q: 1}, 8, 8, 2, randomFill(5))
	require.NoError(t, err)
	defer func() { require.NoError(t, s.close()) }()
	baseline := s.env.Alloc.Live()

	g, _, err := Build(s.env, s.a, s.ipiv, 2, 1)
	require.NoError(t, err)
	require.NoError(t, g.Enqueue())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.Run(ctx), context.DeadlineExceeded)
	assert.Equal(t, dataflow.StateFailed, g.State())

	assert.True(t, IsLifecycleViolation(g.Destruct()))
	assert.Equal(t, int(arena.NumRoles), s.env.Runtime.Types().Live(), "arenas must survive a refused destruct")
	assert.NotEqual(t, baseline, s.env.Alloc.Live())

	require.NoError(t, g.Abort())
	assert.Equal(t, dataflow.StateDestroyed, g.State())
	assert.Equal(t, baseline, s.env.Alloc.Live())
	assert.Zero(t, s.env.Runtime.Types().Live())
	assert.Zero(t, s.env.Runtime.Live())
	assert.True(t, IsLifecycleViolation(g.Abort()))
	assert.True(t, IsLifecycleViolation(g.Destruct()))
}

func TestGraph_DestructContinuesPastFailure(t *testing.T) {
	s := setupSelf(t, 8, 8, 4)
	defer func() { require.NoError(t, s.close()) }()
	baseline := s.env.Alloc.Live()

	g, _, err := Build(s.env, s.a, s.ipiv, 1, 1)
	require.NoError(t, err)
	require.NoError(t, g.Enqueue())
	require.NoError(t, g.Run(context.Background()))

	// V is already gone, so its teardown fails
	require.NoError(t, tiled.Teardown(g.ws.V))

	err = g.Destruct()
	require.Error(t, err)
	assert.ErrorIs(t, err, tiled.ErrAlreadyDone)
	assert.Equal(t, dataflow.StateDestroyed, g.State())
	assert.Nil(t, g.ws.Buffer)
	assert.Nil(t, g.ws.ACopy)
	assert.Equal(t, baseline, s.env.Alloc.Live())
	assert.Zero(t, s.env.Runtime.Types().Live())
	assert.Zero(t, s.env.Runtime.Live())
}

func TestBuild_GridMismatch(t *testing.T) {
	s := setupSelf(t, 8, 8, 4)
	defer func() { require.NoError(t, s.close()) }()

	tests := []struct {
		name string
		p, q int
	}{
		{"more ranks than runtime", 2, 1},
		{"columns differ", 1, 2},
		{"empty", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, status, err := Build(s.env, s.a, s.ipiv, tt.p, tt.q)
			assert.Nil(t, g)
			assert.Equal(t, StatusBuildFailed, status)
			assert.True(t, IsGridMismatch(err), "%v", err)
		})
	}
	assert.Equal(t, tiled.Counts{Buffers: 3, Descriptors: 3, Objects: 3}, s.env.Alloc.Live())
}

func TestBuild_RuntimeSizeMismatch(t *testing.T) {
	// a 2x1 matrix handed to a single-rank runtime
	rt, err := dataflow.New(comm.NewSelf())
	require.NoError(t, err)
	defer rt.Close()
	env := node.Env{Runtime: rt, Alloc: tiled.NewAllocator(), Lib: kernel.Init(1)}

	grid := tiled.Grid{P: 2, Q: 1}
	ad, err := tiled.NewDescriptor(tiled.Complex128, grid, 0, 2, 2, 4, 4)
	require.NoError(t, err)
	pd, err := tiled.NewDescriptor(tiled.Int32, grid, 0, 2, 1, 4, 1)
	require.NoError(t, err)
	a, err := tiled.Alloc[complex128](env.Alloc, "A", ad)
	require.NoError(t, err)
	ipiv, err := tiled.Alloc[int32](env.Alloc, "IPIV", pd)
	require.NoError(t, err)

	_, status, err := Build(env, a, ipiv, 2, 1)
	assert.Equal(t, StatusBuildFailed, status)
	assert.True(t, IsGridMismatch(err))
	assert.Equal(t, 2, env.Alloc.Live().Objects)
}

func TestBuild_InvalidArguments(t *testing.T) {
	s := setupSelf(t, 8, 8, 4)
	defer func() { require.NoError(t, s.close()) }()

	_, _, err := Build(node.Env{Lib: s.env.Lib}, s.a, s.ipiv, 1, 1)
	assert.Equal(t, ErrCodeInvalidArgument, mustCode(t, err))

	_, _, err = Build(s.env, nil, s.ipiv, 1, 1)
	assert.Equal(t, ErrCodeInvalidArgument, mustCode(t, err))

	closed := kernel.Init(1)
	closed.Close()
	env := s.env
	env.Lib = closed
	_, _, err = Build(env, s.a, s.ipiv, 1, 1)
	assert.ErrorIs(t, err, kernel.ErrClosed)

	rect, err := tiled.NewDescriptor(tiled.Complex128, tiled.Grid{P: 1, Q: 1}, 0, 4, 2, 8, 8)
	require.NoError(t, err)
	b, err := tiled.Alloc[complex128](s.env.Alloc, "B", rect)
	require.NoError(t, err)
	defer func() { require.NoError(t, tiled.Teardown(b)) }()
	_, _, err = Build(s.env, b, s.ipiv, 1, 1)
	assert.Equal(t, ErrCodeInvalidArgument, mustCode(t, err))
	assert.ErrorContains(t, err, "tiles must be square")
}

func mustCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	code, ok := CodeOf(err)
	require.True(t, ok, "%v", err)
	return code
}

func TestGraphError_Format(t *testing.T) {
	err := NewGraphError(ErrCodeAllocation, "allocate workspace V", tiled.ErrAllocationFailed)
	assert.Equal(t, "[ALLOCATION_FAILURE] allocate workspace V: matrix allocation failed", err.Error())
	assert.ErrorIs(t, err, tiled.ErrAllocationFailed)
	assert.Equal(t, "[GRID_MISMATCH] grid 2x1", newGridMismatchError("grid %dx%d", 2, 1).Error())
}
