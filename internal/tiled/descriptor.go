package tiled

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDescriptor is returned for descriptors with non-positive
	// shapes or a rank outside the grid.
	ErrInvalidDescriptor = errors.New("invalid matrix descriptor")
)

// Descriptor describes the tiling and block-cyclic distribution of a matrix.
// Tiles are stored column-major with a leading dimension of MB.
type Descriptor struct {
	Type ElementType
	Grid Grid
	Rank int

	MB, NB int // tile shape
	M, N   int // global shape
	KP, KQ int // cyclic factors
}

// NewDescriptor builds and validates a descriptor with cyclic factor 1 on
// both axes.
func NewDescriptor(typ ElementType, grid Grid, rank, mb, nb, m, n int) (Descriptor, error) {
	d := Descriptor{
		Type: typ,
		Grid: grid,
		Rank: rank,
		MB:   mb,
		NB:   nb,
		M:    m,
		N:    n,
		KP:   1,
		KQ:   1,
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Validate checks the descriptor's shapes.
func (d Descriptor) Validate() error {
	switch {
	case d.Grid.P <= 0 || d.Grid.Q <= 0:
		return fmt.Errorf("%w: grid %s", ErrInvalidDescriptor, d.Grid)
	case d.Rank < 0 || d.Rank >= d.Grid.Size():
		return fmt.Errorf("%w: rank %d outside grid %s", ErrInvalidDescriptor, d.Rank, d.Grid)
	case d.MB <= 0 || d.NB <= 0:
		return fmt.Errorf("%w: tile %dx%d", ErrInvalidDescriptor, d.MB, d.NB)
	case d.M < 0 || d.N < 0:
		return fmt.Errorf("%w: global %dx%d", ErrInvalidDescriptor, d.M, d.N)
	case d.KP <= 0 || d.KQ <= 0:
		return fmt.Errorf("%w: cyclic factors %d,%d", ErrInvalidDescriptor, d.KP, d.KQ)
	case d.Type.Size() == 0:
		return fmt.Errorf("%w: element type %s", ErrInvalidDescriptor, d.Type)
	}
	return nil
}

// MT returns the number of tile rows.
func (d Descriptor) MT() int { return ceilDiv(d.M, d.MB) }

// NT returns the number of tile columns.
func (d Descriptor) NT() int { return ceilDiv(d.N, d.NB) }

// Owner returns the rank owning tile (m, n).
func (d Descriptor) Owner(m, n int) int {
	return ((m/d.KP)%d.Grid.P)*d.Grid.Q + (n/d.KQ)%d.Grid.Q
}

// IsLocal reports whether tile (m, n) is owned by this descriptor's rank.
func (d Descriptor) IsLocal(m, n int) bool {
	return d.Owner(m, n) == d.Rank
}

// TileRows returns the number of valid rows in tile row m.
func (d Descriptor) TileRows(m int) int {
	return min(d.MB, d.M-m*d.MB)
}

// TileCols returns the number of valid columns in tile column n.
func (d Descriptor) TileCols(n int) int {
	return min(d.NB, d.N-n*d.NB)
}

// TileElems returns the number of elements in one stored tile.
func (d Descriptor) TileElems() int { return d.MB * d.NB }

// TileBytes returns the stored size of one tile in bytes.
func (d Descriptor) TileBytes() int { return d.TileElems() * d.Type.Size() }

// LocalTiles lists the tiles owned by this rank, row by row.
func (d Descriptor) LocalTiles() []TileIndex {
	var tiles []TileIndex
	for m := 0; m < d.MT(); m++ {
		for n := 0; n < d.NT(); n++ {
			if d.IsLocal(m, n) {
				tiles = append(tiles, TileIndex{M: m, N: n})
			}
		}
	}
	return tiles
}

// SameDistribution reports whether o distributes tiles over the same grid
// from the same rank as d.
func (d Descriptor) SameDistribution(o Descriptor) bool {
	return d.Grid == o.Grid && d.Rank == o.Rank && d.KP == o.KP && d.KQ == o.KQ
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %dx%d tiles %dx%d grid %s rank %d",
		d.Type, d.M, d.N, d.MB, d.NB, d.Grid, d.Rank)
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
