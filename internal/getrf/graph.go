// Package getrf builds, runs and tears down the distributed tiled LU
// factorization with pivot fusion.
//
// Each rank builds its own Graph over the same matrix. Pivot rows that move
// between ranks travel LDV at a time through the V workspace; U tiles land
// in BUFFER and the factored diagonal tile in ACOPY. Every rank ends with
// the same global status.
package getrf

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/kernel"
	"yqhp/tilegraph/internal/tiled"
)

// Graph is one factorization instance on the local rank. A and IPIV are
// borrowed; the workspaces and arenas belong to the graph.
type Graph struct {
	dataflow.Base

	mu     sync.Mutex
	rt     *dataflow.Runtime
	lib    *kernel.Library
	a      *tiled.Matrix[complex128]
	ipiv   *tiled.Matrix[int32]
	ws     *Workspaces
	arenas *arena.Registry
	p, q   int
	log    *zap.Logger

	infoMu sync.Mutex
	info   int
	pivots [][]int32
}

// Arenas returns the graph's wire formats.
func (g *Graph) Arenas() *arena.Registry { return g.arenas }

// Info returns the local status: 0, or the 1-based global column of the
// first exactly zero pivot this rank found.
func (g *Graph) Info() int {
	if g == nil {
		return 0
	}
	g.infoMu.Lock()
	defer g.infoMu.Unlock()
	return g.info
}

func (g *Graph) setInfo(v int) {
	g.infoMu.Lock()
	defer g.infoMu.Unlock()
	if g.info == 0 {
		g.info = v
	}
}

// Enqueue hands the graph to its runtime. Enqueueing a nil graph is a
// no-op.
func (g *Graph) Enqueue() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rt.Enqueue(g); err != nil {
		return newLifecycleError("enqueue "+g.Name(), err)
	}
	return nil
}

// Run blocks until the graph reached global quiescence.
func (g *Graph) Run(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.Lifecycle().Require(dataflow.StateEnqueued); err != nil {
		return newLifecycleError("run "+g.Name(), err)
	}
	return g.rt.RunObject(ctx, g)
}
