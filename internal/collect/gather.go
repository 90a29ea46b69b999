// Package collect assembles distributed matrices on a single rank, the way
// verification and reporting need them.
package collect

import (
	"context"
	"errors"
	"fmt"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/tiled"
)

const tagTile uint8 = 1

// Gather is a graph object that ships every tile of a matrix to root, which
// writes them into one dense column-major array with leading dimension M.
type Gather[T tiled.Scalar] struct {
	dataflow.Base

	rt     *dataflow.Runtime
	m      *tiled.Matrix[T]
	root   int
	arenas *arena.Registry
	dense  []T
}

// NewGather creates a gather of m to root on rt.
func NewGather[T tiled.Scalar](rt *dataflow.Runtime, m *tiled.Matrix[T], root int) (*Gather[T], error) {
	if rt == nil || m == nil {
		return nil, errors.New("collect: runtime and matrix are required")
	}
	d := m.Descriptor()
	if root < 0 || root >= d.Grid.Size() {
		return nil, fmt.Errorf("collect: root %d outside grid %s", root, d.Grid)
	}
	reg := arena.NewRegistry(rt.Types())
	if err := reg.Define(arena.Rectangle(arena.Default, d.Type, d.MB, d.NB)); err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	g := &Gather[T]{
		Base:   dataflow.NewBase("gather:" + m.Name()),
		rt:     rt,
		m:      m,
		root:   root,
		arenas: reg,
	}
	if d.Rank == root {
		g.dense = make([]T, d.M*d.N)
	}
	return g, nil
}

// Arenas returns the tile wire format.
func (g *Gather[T]) Arenas() *arena.Registry { return g.arenas }

// Tasks returns the send task and, on root, the assemble task.
func (g *Gather[T]) Tasks() ([]*dataflow.Task, error) {
	d := g.m.Descriptor()
	tasks := []*dataflow.Task{{
		Name: "send",
		Kind: "gather",
		Run: func(_ context.Context, tc *dataflow.TaskContext) error {
			for _, ix := range d.LocalTiles() {
				payload, err := arena.Pack(g.arenas, arena.Default, g.m.Tile(ix.M, ix.N))
				if err != nil {
					return err
				}
				if err := tc.Send(g.root, arena.Default, dataflow.MakeTag(tagTile, 0, ix.M, ix.N), payload); err != nil {
					return err
				}
			}
			return nil
		},
	}}
	if d.Rank != g.root {
		return tasks, nil
	}

	tasks = append(tasks, &dataflow.Task{
		Name: "assemble",
		Kind: "gather",
		Inputs: func() []dataflow.Input {
			var ins []dataflow.Input
			for i := 0; i < d.MT(); i++ {
				for j := 0; j < d.NT(); j++ {
					ins = append(ins, dataflow.Input{
						From: d.Owner(i, j),
						Tag:  dataflow.MakeTag(tagTile, 0, i, j),
						Role: arena.Default,
						Deliver: func(payload []byte) error {
							tile := make([]T, d.TileElems())
							if err := arena.Unpack(g.arenas, arena.Default, payload, tile); err != nil {
								return err
							}
							g.place(d, i, j, tile)
							return nil
						},
					})
				}
			}
			return ins
		},
	})
	return tasks, nil
}

func (g *Gather[T]) place(d tiled.Descriptor, i, j int, tile []T) {
	r0, c0 := i*d.MB, j*d.NB
	rows := d.TileRows(i)
	for c := 0; c < d.TileCols(j); c++ {
		copy(g.dense[r0+(c0+c)*d.M:r0+(c0+c)*d.M+rows], tile[c*d.MB:])
	}
}

// Result returns the assembled matrix on root and nil elsewhere.
func (g *Gather[T]) Result() []T { return g.dense }

// Close undefines the arena and releases the object from its runtime.
func (g *Gather[T]) Close() error {
	return errors.Join(g.arenas.UndefineAll(), g.rt.Release(g))
}

// Dense gathers m to root and returns it there as a column-major M x N
// array. Every rank must call it; non-root ranks get nil.
func Dense[T tiled.Scalar](ctx context.Context, rt *dataflow.Runtime, m *tiled.Matrix[T], root int) ([]T, error) {
	g, err := NewGather(rt, m, root)
	if err != nil {
		return nil, err
	}
	if err := rt.Enqueue(g); err != nil {
		return nil, errors.Join(err, g.arenas.UndefineAll())
	}
	if err := rt.RunObject(ctx, g); err != nil {
		return nil, errors.Join(err, g.arenas.UndefineAll(), rt.Discard(g))
	}
	out := g.Result()
	if err := g.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
