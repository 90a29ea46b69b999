package hbrdt

import (
	"fmt"

	"yqhp/tilegraph/internal/tiled"
)

// Layout is the band storage of a symmetric matrix of order N with
// semi-bandwidth MB. Tile column t holds matrix columns t*NB .. t*NB+NB-1
// in its first NB columns, row i of the band being the i-th subdiagonal.
// Tiles are (MB+1) x (NB+2); the two trailing columns are padding.
type Layout struct {
	N, MB, NB int
}

// Tiles returns the number of tile columns.
func (l Layout) Tiles() int { return (l.N + l.NB - 1) / l.NB }

// TileRows returns the rows of one band tile.
func (l Layout) TileRows() int { return l.MB + 1 }

// TileCols returns the columns of one band tile.
func (l Layout) TileCols() int { return l.NB + 2 }

// Validate checks the layout parameters.
func (l Layout) Validate() error {
	if l.N <= 0 || l.MB < 0 || l.NB <= 0 {
		return fmt.Errorf("%w: order %d, bandwidth %d, tile width %d", ErrInvalidLayout, l.N, l.MB, l.NB)
	}
	return nil
}

// Descriptor returns the distribution of the band over a 1 x nodes grid.
func (l Layout) Descriptor(nodes, rank int) (tiled.Descriptor, error) {
	if err := l.Validate(); err != nil {
		return tiled.Descriptor{}, err
	}
	return tiled.NewDescriptor(tiled.Float64, tiled.Grid{P: 1, Q: nodes}, rank,
		l.TileRows(), l.TileCols(), l.TileRows(), l.TileCols()*l.Tiles())
}

// LayoutOf recovers the layout of order n from a band descriptor.
func LayoutOf(d tiled.Descriptor, n int) (Layout, error) {
	l := Layout{N: n, MB: d.MB - 1, NB: d.NB - 2}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	if d.M != l.TileRows() || d.N != l.TileCols()*l.Tiles() {
		return Layout{}, fmt.Errorf("%w: %dx%d band cannot hold order %d with %dx%d tiles",
			ErrInvalidLayout, d.M, d.N, n, d.MB, d.NB)
	}
	return l, nil
}

// ToDense expands band, column-major with leading dimension MB+1, into
// the full symmetric n x n matrix.
func (l Layout) ToDense(band []float64) []float64 {
	n, ld := l.N, l.TileRows()
	dense := make([]float64, n*n)
	for j := 0; j < n; j++ {
		bc := (j/l.NB)*l.TileCols() + j%l.NB
		for i := 0; i <= l.MB && j+i < n; i++ {
			v := band[i+bc*ld]
			dense[j+i+j*n] = v
			dense[j+(j+i)*n] = v
		}
	}
	return dense
}
