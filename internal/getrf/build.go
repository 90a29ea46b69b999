package getrf

import (
	"fmt"

	"go.uber.org/zap"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

// Build creates the factorization graph of a with pivot vector ipiv on a
// p x q grid. It returns the graph and StatusOK, or a nil graph, a nonzero
// status and the cause; nothing acquired by a failed Build stays live.
func Build(env node.Env, a *tiled.Matrix[complex128], ipiv *tiled.Matrix[int32], p, q int) (*Graph, int, error) {
	if err := validate(env, a, ipiv, p, q); err != nil {
		return nil, StatusBuildFailed, err
	}
	log := env.Logger()
	desc := a.Descriptor()

	var stack releaseStack

	ws, err := NewWorkspaces(env.Alloc, desc, p, q)
	if err != nil {
		return nil, StatusBuildFailed, err
	}
	stack.push(ws.Teardown)

	g := &Graph{
		Base:   dataflow.NewBase(fmt.Sprintf("zgetrf_fusion[%dx%d]", desc.M, desc.N)),
		rt:     env.Runtime,
		lib:    env.Lib,
		a:      a,
		ipiv:   ipiv,
		ws:     ws,
		arenas: arena.NewRegistry(env.Runtime.Types()),
		p:      p,
		q:      q,
		log:    log.With(zap.String("graph", "getrf")),
		pivots: make([][]int32, min(desc.MT(), desc.NT())),
	}
	stack.push(g.arenas.UndefineAll)

	if err := defineArenas(g.arenas, Definitions(desc.Type, desc.MB, desc.NB, LDV)); err != nil {
		if uerr := stack.unwind(); uerr != nil {
			err = fmt.Errorf("%w (unwind: %v)", err, uerr)
		}
		return nil, StatusBuildFailed, err
	}

	stack.disarm()
	g.log.Debug("graph built",
		zap.Int("mt", desc.MT()), zap.Int("nt", desc.NT()),
		zap.Int("mb", desc.MB), zap.Int("nb", desc.NB))
	return g, StatusOK, nil
}

func validate(env node.Env, a *tiled.Matrix[complex128], ipiv *tiled.Matrix[int32], p, q int) error {
	if env.Runtime == nil || env.Alloc == nil {
		return newInvalidArgumentError("runtime and allocator are required")
	}
	if err := env.Lib.Check(); err != nil {
		return NewGraphError(ErrCodeInvalidArgument, "numeric library unavailable", err)
	}
	if a == nil || ipiv == nil {
		return newInvalidArgumentError("matrix and pivot vector are required")
	}
	d, pd := a.Descriptor(), ipiv.Descriptor()

	if p <= 0 || q <= 0 {
		return newGridMismatchError("grid %dx%d is empty", p, q)
	}
	if d.Grid != (tiled.Grid{P: p, Q: q}) {
		return newGridMismatchError("grid %dx%d does not match matrix grid %s", p, q, d.Grid)
	}
	if p*q != env.Runtime.Size() {
		return newGridMismatchError("grid %dx%d has %d ranks, runtime has %d", p, q, p*q, env.Runtime.Size())
	}
	if d.Rank != env.Runtime.Rank() {
		return newGridMismatchError("matrix rank %d, runtime rank %d", d.Rank, env.Runtime.Rank())
	}
	if !d.SameDistribution(pd) {
		return newGridMismatchError("pivot vector distributed over %s from rank %d, matrix over %s from rank %d",
			pd.Grid, pd.Rank, d.Grid, d.Rank)
	}
	if d.MB != d.NB {
		return newInvalidArgumentError("tiles must be square, got %dx%d", d.MB, d.NB)
	}
	if d.KP != 1 || d.KQ != 1 {
		return newInvalidArgumentError("cyclic factors must be 1, got %d,%d", d.KP, d.KQ)
	}
	if pd.M != d.M || pd.MB != d.MB || pd.N != 1 || pd.NB != 1 {
		return newInvalidArgumentError("pivot vector %dx%d tiles %dx%d inconsistent with matrix %dx%d tiles %dx%d",
			pd.M, pd.N, pd.MB, pd.NB, d.M, d.N, d.MB, d.NB)
	}
	if d.Type != tiled.Complex128 {
		return newInvalidArgumentError("matrix element type %s, want complex128", d.Type)
	}
	return nil
}
