// Package hbrdt reduces a distributed symmetric band matrix to tridiagonal
// form and computes its eigenvalues.
//
// The band is stored 1D cyclic over a 1 x nodes grid with padded tiles.
// Every rank ships its tiles to rank 0, which assembles the band, reduces
// it and runs bisection on the tridiagonal result.
package hbrdt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/kernel"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

// Root is the rank that assembles the band and holds the eigenvalues.
const Root = 0

const tagBand uint8 = 1

// Graph is one band reduction on the local rank. The band matrix is
// borrowed.
type Graph struct {
	dataflow.Base

	mu     sync.Mutex
	rt     *dataflow.Runtime
	lib    *kernel.Library
	a      *tiled.Matrix[float64]
	layout Layout
	arenas *arena.Registry
	log    *zap.Logger

	band  []float64
	d, e  []float64
	eigen []float64
}

// Build creates the reduction of the order-n band stored in a.
func Build(env node.Env, a *tiled.Matrix[float64], n int) (*Graph, error) {
	if env.Runtime == nil {
		return nil, fmt.Errorf("%w: runtime is required", ErrLifecycle)
	}
	if err := env.Lib.Check(); err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: band matrix is required", ErrInvalidLayout)
	}
	d := a.Descriptor()
	layout, err := LayoutOf(d, n)
	if err != nil {
		return nil, err
	}
	if d.Type != tiled.Float64 {
		return nil, fmt.Errorf("%w: element type %s", ErrInvalidLayout, d.Type)
	}
	if d.Grid.P != 1 || d.Grid.Q != env.Runtime.Size() || d.Rank != env.Runtime.Rank() {
		return nil, fmt.Errorf("%w: grid %s rank %d on %d ranks", ErrGridMismatch, d.Grid, d.Rank, env.Runtime.Size())
	}

	g := &Graph{
		Base:   dataflow.NewBase(fmt.Sprintf("dhbrdt[%d,kd=%d]", n, layout.MB)),
		rt:     env.Runtime,
		lib:    env.Lib,
		a:      a,
		layout: layout,
		arenas: arena.NewRegistry(env.Runtime.Types()),
		log:    env.Logger().With(zap.String("graph", "hbrdt")),
	}
	if err := g.arenas.Define(arena.Rectangle(arena.Default, tiled.Float64, layout.TileRows(), layout.TileCols())); err != nil {
		return nil, err
	}
	return g, nil
}

// Arenas returns the band tile wire format.
func (g *Graph) Arenas() *arena.Registry { return g.arenas }

// Eigenvalues returns the eigenvalues in ascending order on Root after Run,
// and nil elsewhere.
func (g *Graph) Eigenvalues() []float64 {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eigen
}

// Tridiagonal returns the diagonal and subdiagonal computed on Root.
func (g *Graph) Tridiagonal() (d, e []float64) {
	if g == nil {
		return nil, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d, g.e
}

// Enqueue hands the graph to its runtime. A nil graph is ignored.
func (g *Graph) Enqueue() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rt.Enqueue(g); err != nil {
		return fmt.Errorf("%w: %w", ErrLifecycle, err)
	}
	return nil
}

// Run blocks until the reduction reached global quiescence. Other objects
// queued on the runtime are left alone.
func (g *Graph) Run(ctx context.Context) error {
	if g == nil {
		return nil
	}
	if err := g.Lifecycle().Require(dataflow.StateEnqueued); err != nil {
		return fmt.Errorf("%w: %w", ErrLifecycle, err)
	}
	return g.rt.RunObject(ctx, g)
}

// Destruct undefines the arena and releases the quiescent graph.
func (g *Graph) Destruct() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.Lifecycle().Require(dataflow.StateQuiescent); err != nil {
		return fmt.Errorf("%w: %w", ErrLifecycle, err)
	}
	return g.release(g.rt.Release)
}

// Abort undefines the arena and drops a graph whose run failed.
func (g *Graph) Abort() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.Lifecycle().Require(dataflow.StateFailed); err != nil {
		return fmt.Errorf("%w: %w", ErrLifecycle, err)
	}
	g.log.Warn("aborting reduction before global quiescence")
	return g.release(g.rt.Discard)
}

func (g *Graph) release(drop func(dataflow.Object) error) error {
	err := g.arenas.UndefineAll()
	if dropErr := drop(g); dropErr != nil {
		err = errors.Join(err, fmt.Errorf("%w: %w", ErrLifecycle, dropErr))
	}
	g.a, g.band = nil, nil
	return err
}

// Tasks ships the local band tiles to Root and, there, assembles, reduces
// and solves.
func (g *Graph) Tasks() ([]*dataflow.Task, error) {
	if g.a == nil {
		return nil, fmt.Errorf("%w: graph already destroyed", ErrLifecycle)
	}
	d := g.a.Descriptor()
	tasks := []*dataflow.Task{{
		Name: "ship",
		Kind: "ship",
		Run: func(_ context.Context, tc *dataflow.TaskContext) error {
			for _, ix := range d.LocalTiles() {
				payload, err := arena.Pack(g.arenas, arena.Default, g.a.Tile(ix.M, ix.N))
				if err != nil {
					return err
				}
				if err := tc.Send(Root, arena.Default, dataflow.MakeTag(tagBand, 0, 0, ix.N), payload); err != nil {
					return err
				}
			}
			return nil
		},
	}}
	if d.Rank != Root {
		return tasks, nil
	}

	l := g.layout
	return append(tasks,
		&dataflow.Task{
			Name:   "assemble",
			Kind:   "assemble",
			Inputs: g.bandInputs,
		},
		&dataflow.Task{
			Name:  "tridiagonalize",
			Kind:  "reduce",
			After: []string{"assemble"},
			Run: func(context.Context, *dataflow.TaskContext) error {
				dd, e := g.lib.Tridiagonalize(l.ToDense(g.band), l.N)
				g.mu.Lock()
				g.d, g.e = dd, e
				g.mu.Unlock()
				return nil
			},
		},
		&dataflow.Task{
			Name:  "eigenvalues",
			Kind:  "solve",
			After: []string{"tridiagonalize"},
			Run: func(_ context.Context, tc *dataflow.TaskContext) error {
				w := g.lib.TridiagEigenvalues(g.d, g.e)
				g.mu.Lock()
				g.eigen = w
				g.mu.Unlock()
				tc.Logger().Debug("eigenvalues computed", zap.Int("count", len(w)))
				return nil
			},
		},
	), nil
}

func (g *Graph) bandInputs() []dataflow.Input {
	l, d := g.layout, g.a.Descriptor()
	g.band = make([]float64, l.TileRows()*l.TileCols()*l.Tiles())
	ins := make([]dataflow.Input, l.Tiles())
	for t := range ins {
		dst := g.band[t*d.TileElems() : (t+1)*d.TileElems()]
		ins[t] = dataflow.Input{
			From: d.Owner(0, t),
			Tag:  dataflow.MakeTag(tagBand, 0, 0, t),
			Role: arena.Default,
			Deliver: func(payload []byte) error {
				return arena.Unpack(g.arenas, arena.Default, payload, dst)
			},
		}
	}
	return ins
}
