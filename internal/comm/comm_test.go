package comm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestParseOp(t *testing.T) {
	tests := []struct {
		in   string
		want Op
	}{
		{"sum", OpSum},
		{"", OpSum},
		{"MAX", OpMax},
		{"lor", OpLOr},
		{"or", OpLOr},
	}
	for _, tt := range tests {
		got, err := ParseOp(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseOp("avg")
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestOpReduce(t *testing.T) {
	assert.Equal(t, 6, OpSum.Reduce(1, 2, 3))
	assert.Equal(t, 0, OpSum.Reduce(3, -3))
	assert.Equal(t, 3, OpMax.Reduce(1, 3, 2))
	assert.Equal(t, -2, OpMax.Reduce(-2))
	assert.Equal(t, 1, OpLOr.Reduce(0, 0, 5))
	assert.Equal(t, 1, OpLOr.Reduce(7))
	assert.Equal(t, 0, OpLOr.Reduce(0, 0))
	assert.Equal(t, 0, OpSum.Reduce())
	assert.Equal(t, "lor", OpLOr.String())
}

func TestSelf(t *testing.T) {
	ctx := context.Background()
	s := NewSelf()
	tag := Tag{Object: 1, Kind: 2, K: 3}

	require.NoError(t, s.Send(0, tag, []byte("a")))
	require.NoError(t, s.Send(0, tag, []byte("b")))
	got, err := s.Recv(ctx, 0, tag)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
	got, err = s.Recv(ctx, 0, tag)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)

	v, err := s.AllReduce(ctx, 42, OpSum)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	require.NoError(t, s.Barrier(ctx))

	assert.ErrorIs(t, s.Send(1, tag, nil), ErrInvalidRank)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(0, tag, nil), ErrClosed)
	_, err = s.Recv(ctx, 0, tag)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecvHonorsContext(t *testing.T) {
	s := NewSelf()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Recv(ctx, 0, Tag{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalGroup_PointToPoint(t *testing.T) {
	ctx := context.Background()
	ranks := NewLocalGroup(3)
	tag := Tag{Object: 9, Kind: 1}

	var g errgroup.Group
	g.Go(func() error {
		got, err := ranks[2].Recv(ctx, 0, tag)
		if err != nil {
			return err
		}
		assert.Equal(t, []byte{1, 2, 3}, got)
		return nil
	})
	require.NoError(t, ranks[0].Send(2, tag, []byte{1, 2, 3}))
	require.NoError(t, g.Wait())

	require.NoError(t, ranks[1].Send(2, tag, []byte{4}))
	assert.Equal(t, 1, ranks[2].Pending())
	_, err := ranks[0].Recv(ctx, 5, tag)
	assert.ErrorIs(t, err, ErrInvalidRank)
}

func TestLocalGroup_AllReduceRepeated(t *testing.T) {
	ctx := context.Background()
	ranks := NewLocalGroup(4)

	results := make([][]int, len(ranks))
	var wg sync.WaitGroup
	for _, r := range ranks {
		wg.Add(1)
		go func(c *Local) {
			defer wg.Done()
			for round := 0; round < 20; round++ {
				v, err := c.AllReduce(ctx, c.Rank()+round, OpSum)
				require.NoError(t, err)
				results[c.Rank()] = append(results[c.Rank()], v)
				require.NoError(t, c.Barrier(ctx))
			}
		}(r)
	}
	wg.Wait()

	for _, rs := range results {
		for round, v := range rs {
			assert.Equal(t, 6+4*round, v)
		}
	}
}

func TestLocalGroup_AbandonedReduceKeepsOrder(t *testing.T) {
	ctx := context.Background()
	ranks := NewLocalGroup(2)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := ranks[0].AllReduce(short, 5, OpSum)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	second := make(chan int, 1)
	go func() {
		v, err := ranks[0].AllReduce(ctx, 7, OpSum)
		assert.NoError(t, err)
		second <- v
	}()
	select {
	case v := <-second:
		t.Fatalf("second reduce finished alone with %d", v)
	case <-time.After(50 * time.Millisecond):
	}

	v, err := ranks[1].AllReduce(ctx, 1, OpSum)
	require.NoError(t, err)
	assert.Equal(t, 6, v, "first round keeps the abandoned contribution")

	v, err = ranks[1].AllReduce(ctx, 2, OpSum)
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	assert.Equal(t, 9, <-second)
}

func TestLocalGroup_BarrierAfterAbandonedReduce(t *testing.T) {
	ctx := context.Background()
	ranks := NewLocalGroup(2)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, ranks[1].Barrier(short), context.DeadlineExceeded)

	var g errgroup.Group
	var got int
	g.Go(func() error {
		if err := ranks[0].Barrier(ctx); err != nil {
			return err
		}
		v, err := ranks[0].AllReduce(ctx, 4, OpMax)
		got = v
		return err
	})
	g.Go(func() error {
		_, err := ranks[1].AllReduce(ctx, 3, OpMax)
		return err
	})
	require.NoError(t, g.Wait())
	assert.Equal(t, 4, got)
}
