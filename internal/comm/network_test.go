package comm

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func startHub(t *testing.T, size int) (*Hub, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hub := NewHub(size, nil)
	go func() { _ = hub.Serve(ln) }()
	t.Cleanup(func() { _ = hub.Shutdown() })
	return hub, ln.Addr().String()
}

func dialAll(t *testing.T, addr string, size int) []*Peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	peers := make([]*Peer, size)
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < size; r++ {
		r := r
		g.Go(func() error {
			p, err := Dial(gctx, addr, r, size, nil)
			peers[r] = p
			return err
		})
	}
	require.NoError(t, g.Wait())
	t.Cleanup(func() {
		for _, p := range peers {
			_ = p.Close()
		}
	})
	return peers
}

func TestNetwork_SendRecvAndReduce(t *testing.T) {
	hub, addr := startHub(t, 3)
	peers := dialAll(t, addr, 3)
	assert.Equal(t, 3, hub.Connected())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tag := Tag{Object: 1, Kind: 4, K: 2, I: 1, J: 0}
	require.NoError(t, peers[0].Send(2, tag, []byte("tile")))
	require.NoError(t, peers[1].Send(1, tag, []byte("self")))

	got, err := peers[2].Recv(ctx, 0, tag)
	require.NoError(t, err)
	assert.Equal(t, []byte("tile"), got)
	got, err = peers[1].Recv(ctx, 1, tag)
	require.NoError(t, err)
	assert.Equal(t, []byte("self"), got)

	var g errgroup.Group
	results := make([]int, 3)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			if err := p.Barrier(ctx); err != nil {
				return err
			}
			v, err := p.AllReduce(ctx, p.Rank()*2, OpMax)
			results[p.Rank()] = v
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, []int{4, 4, 4}, results)
}

func TestNetwork_RejectsDuplicateRank(t *testing.T) {
	hub, addr := startHub(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := make(chan error, 1)
	go func() {
		p, err := Dial(ctx, addr, 0, 2, nil)
		if err == nil {
			defer p.Close()
		}
		first <- err
	}()

	// wait until rank 0 is registered so the second dial is the duplicate
	require.Eventually(t, func() bool {
		return hub.Connected() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err := Dial(ctx, addr, 0, 2, nil)
	assert.Error(t, err)

	p1, err := Dial(ctx, addr, 1, 2, nil)
	require.NoError(t, err)
	defer p1.Close()
	require.NoError(t, <-first)
}

func TestDial_InvalidRank(t *testing.T) {
	_, err := Dial(context.Background(), "127.0.0.1:1", 3, 2, nil)
	assert.ErrorIs(t, err, ErrInvalidRank)
}
