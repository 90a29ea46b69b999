package getrf

import (
	"errors"

	"yqhp/tilegraph/internal/tiled"
)

// LDV is the number of pivot-swap rows staged per message.
const LDV = 5

// Extents is the tile and global shape of one workspace.
type Extents struct {
	TileRows, TileCols int
	Rows, Cols         int
}

// WorkspaceExtents returns the shapes of V, BUFFER and ACOPY for a P x Q
// grid, mb x nb tiles and nt tile columns.
func WorkspaceExtents(p, q, mb, nb, nt int) (v, buffer, acopy Extents) {
	v = Extents{TileRows: LDV, TileCols: nb, Rows: LDV * p, Cols: nb * q}
	buffer = Extents{TileRows: mb, TileCols: nb, Rows: mb * p, Cols: nb * nt}
	acopy = buffer
	return v, buffer, acopy
}

// Workspaces are the auxiliary matrices of one factorization.
//
// V(p, q) stages pivot-swap rows shipped under the SWAP arena. BUFFER(p, n)
// receives the U tile of column n for process row p. ACOPY(p, n) receives
// the factored diagonal tile used to solve column n.
type Workspaces struct {
	V      *tiled.Matrix[complex128]
	Buffer *tiled.Matrix[complex128]
	ACopy  *tiled.Matrix[complex128]
}

// NewWorkspaces allocates the workspaces for a on a p x q grid. If any
// allocation fails, those already allocated are released before the error
// is returned.
func NewWorkspaces(alloc *tiled.Allocator, a tiled.Descriptor, p, q int) (*Workspaces, error) {
	vx, bx, cx := WorkspaceExtents(p, q, a.MB, a.NB, a.NT())
	grid := tiled.Grid{P: p, Q: q}

	var stack releaseStack
	ws := &Workspaces{}
	for _, slot := range []struct {
		name string
		ext  Extents
		dst  **tiled.Matrix[complex128]
	}{
		{"V", vx, &ws.V},
		{"BUFFER", bx, &ws.Buffer},
		{"ACOPY", cx, &ws.ACopy},
	} {
		desc, err := tiled.NewDescriptor(a.Type, grid, a.Rank,
			slot.ext.TileRows, slot.ext.TileCols, slot.ext.Rows, slot.ext.Cols)
		if err == nil {
			*slot.dst, err = tiled.Alloc[complex128](alloc, slot.name, desc)
		}
		if err != nil {
			uerr := stack.unwind()
			return nil, NewGraphError(ErrCodeAllocation, "allocate workspace "+slot.name, errors.Join(err, uerr))
		}
		m := *slot.dst
		stack.push(func() error { return tiled.Teardown(m) })
	}
	stack.disarm()
	return ws, nil
}

// Teardown frees each workspace in allocation order: buffer, descriptor,
// then descriptor object. A failing workspace does not keep the others
// alive; the errors are joined.
func (w *Workspaces) Teardown() error {
	var errs []error
	for _, m := range []**tiled.Matrix[complex128]{&w.V, &w.Buffer, &w.ACopy} {
		if *m == nil {
			continue
		}
		if err := tiled.Teardown(*m); err != nil {
			errs = append(errs, err)
		}
		*m = nil
	}
	return errors.Join(errs...)
}
