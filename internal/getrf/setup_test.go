package getrf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/kernel"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

// rankSetup is one rank's share of a factorization problem.
type rankSetup struct {
	env  node.Env
	a    *tiled.Matrix[complex128]
	orig *tiled.Matrix[complex128]
	ipiv *tiled.Matrix[int32]
}

// setupRank does not take a *testing.T so it can run on rank goroutines.
func setupRank(c comm.Communicator, grid tiled.Grid, m, n, mb int, fill func(*tiled.Matrix[complex128])) (*rankSetup, error) {
	rt, err := dataflow.New(c, dataflow.WithCores(2))
	if err != nil {
		return nil, err
	}
	s := &rankSetup{env: node.Env{Runtime: rt, Alloc: tiled.NewAllocator(), Lib: kernel.Init(2)}}

	ad, err := tiled.NewDescriptor(tiled.Complex128, grid, c.Rank(), mb, mb, m, n)
	if err != nil {
		return nil, err
	}
	pd, err := tiled.NewDescriptor(tiled.Int32, grid, c.Rank(), mb, 1, m, 1)
	if err != nil {
		return nil, err
	}
	if s.a, err = tiled.Alloc[complex128](s.env.Alloc, "A", ad); err != nil {
		return nil, err
	}
	if s.orig, err = tiled.Alloc[complex128](s.env.Alloc, "A0", ad); err != nil {
		return nil, err
	}
	if s.ipiv, err = tiled.Alloc[int32](s.env.Alloc, "IPIV", pd); err != nil {
		return nil, err
	}
	if fill != nil {
		fill(s.a)
		fill(s.orig)
	}
	return s, nil
}

func (s *rankSetup) close() error {
	return errors.Join(
		tiled.Teardown(s.a),
		tiled.Teardown(s.orig),
		tiled.Teardown(s.ipiv),
		s.env.Runtime.Close(),
	)
}

func setupSelf(t *testing.T, m, n, mb int) *rankSetup {
	t.Helper()
	s, err := setupRank(comm.NewSelf(), tiled.Grid{P: 1, Q: 1}, m, n, mb, func(a *tiled.Matrix[complex128]) {
		tiled.FillRandom(a, 3872)
	})
	require.NoError(t, err)
	return s
}

func randomFill(seed int64) func(*tiled.Matrix[complex128]) {
	return func(a *tiled.Matrix[complex128]) { tiled.FillRandom(a, seed) }
}
