package collect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/tiled"
)

func TestDense_SingleRank(t *testing.T) {
	rt, err := dataflow.New(comm.NewSelf())
	require.NoError(t, err)
	defer rt.Close()

	alloc := tiled.NewAllocator()
	desc, err := tiled.NewDescriptor(tiled.Float64, tiled.Grid{P: 1, Q: 1}, 0, 2, 2, 3, 5)
	require.NoError(t, err)
	m, err := tiled.Alloc[float64](alloc, "A", desc)
	require.NoError(t, err)
	m.Each(func(i, j int, v *float64) { *v = float64(10*i + j) })

	dense, err := Dense(context.Background(), rt, m, 0)
	require.NoError(t, err)
	require.Len(t, dense, 15)
	for j := 0; j < 5; j++ {
		for i := 0; i < 3; i++ {
			assert.Equal(t, float64(10*i+j), dense[i+j*3], "element (%d,%d)", i, j)
		}
	}
	assert.Zero(t, rt.Live())
	assert.Zero(t, rt.Types().Live())
	require.NoError(t, tiled.Teardown(m))
}

func TestDense_Grid(t *testing.T) {
	const p, q = 2, 2
	ranks := comm.NewLocalGroup(p * q)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := make([][]int32, len(ranks))
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range ranks {
		g.Go(func() error {
			rt, err := dataflow.New(c, dataflow.WithCores(2))
			if err != nil {
				return err
			}
			defer rt.Close()

			desc, err := tiled.NewDescriptor(tiled.Int32, tiled.Grid{P: p, Q: q}, c.Rank(), 3, 2, 7, 5)
			if err != nil {
				return err
			}
			m, err := tiled.Alloc[int32](tiled.NewAllocator(), "B", desc)
			if err != nil {
				return err
			}
			m.Each(func(i, j int, v *int32) { *v = int32(100*i + j) })

			dense, err := Dense(gctx, rt, m, 1)
			if err != nil {
				return err
			}
			results[c.Rank()] = dense
			return tiled.Teardown(m)
		})
	}
	require.NoError(t, g.Wait())

	for r, dense := range results {
		if r != 1 {
			assert.Nil(t, dense, "rank %d", r)
			continue
		}
		require.Len(t, dense, 35)
		for j := 0; j < 5; j++ {
			for i := 0; i < 7; i++ {
				assert.Equal(t, int32(100*i+j), dense[i+j*7])
			}
		}
	}
}

func TestNewGather_BadRoot(t *testing.T) {
	rt, err := dataflow.New(comm.NewSelf())
	require.NoError(t, err)
	defer rt.Close()

	desc, err := tiled.NewDescriptor(tiled.Float64, tiled.Grid{P: 1, Q: 1}, 0, 2, 2, 2, 2)
	require.NoError(t, err)
	m, err := tiled.Alloc[float64](tiled.NewAllocator(), "A", desc)
	require.NoError(t, err)

	_, err = NewGather(rt, m, 3)
	assert.Error(t, err)
	_, err = NewGather[float64](rt, nil, 0)
	assert.Error(t, err)
}

func TestDense_FailureReleasesObject(t *testing.T) {
	// the root waits for tiles rank 1 never sends
	ranks := comm.NewLocalGroup(2)
	rt, err := dataflow.New(ranks[0])
	require.NoError(t, err)
	defer rt.Close()

	desc, err := tiled.NewDescriptor(tiled.Float64, tiled.Grid{P: 2, Q: 1}, 0, 2, 2, 4, 2)
	require.NoError(t, err)
	m, err := tiled.Alloc[float64](tiled.NewAllocator(), "A", desc)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = Dense(ctx, rt, m, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, rt.Live())
	assert.Zero(t, rt.Types().Live())
	require.NoError(t, tiled.Teardown(m))
}
