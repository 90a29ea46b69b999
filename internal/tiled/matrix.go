package tiled

import "fmt"

type stage int

const (
	stageLive stage = iota
	stageFreed
	stageDestroyed
	stageReleased
)

// Distributed is the element-type independent view of a Matrix used by
// code that manages matrices without touching their tiles.
type Distributed interface {
	Name() string
	Descriptor() Descriptor
	FreeData() error
	Destroy() error

	allocator() *Allocator
	markReleased() error
}

// Matrix is a distributed tiled matrix holding the tiles owned by one rank.
// Every local tile is stored as a full MB x NB column-major block; rows and
// columns past the global edge stay zero.
type Matrix[T Scalar] struct {
	desc    Descriptor
	name    string
	alloc   *Allocator
	offsets map[TileIndex]int
	data    []T
	stage   stage
}

// Name returns the matrix name given at allocation.
func (m *Matrix[T]) Name() string { return m.name }

// Descriptor returns the matrix descriptor.
func (m *Matrix[T]) Descriptor() Descriptor { return m.desc }

func (m *Matrix[T]) allocator() *Allocator { return m.alloc }

// Tile returns the storage of local tile (i, j), or nil when the tile is not
// local or the buffer has been freed.
func (m *Matrix[T]) Tile(i, j int) []T {
	if m.stage != stageLive {
		return nil
	}
	off, ok := m.offsets[TileIndex{M: i, N: j}]
	if !ok {
		return nil
	}
	return m.data[off : off+m.desc.TileElems() : off+m.desc.TileElems()]
}

// At returns the element at global position (i, j) if it is stored locally.
func (m *Matrix[T]) At(i, j int) (T, bool) {
	var zero T
	tile := m.Tile(i/m.desc.MB, j/m.desc.NB)
	if tile == nil || i >= m.desc.M || j >= m.desc.N {
		return zero, false
	}
	return tile[(j%m.desc.NB)*m.desc.MB+i%m.desc.MB], true
}

// Set stores v at global position (i, j). It reports false when the
// element is not stored locally.
func (m *Matrix[T]) Set(i, j int, v T) bool {
	tile := m.Tile(i/m.desc.MB, j/m.desc.NB)
	if tile == nil || i >= m.desc.M || j >= m.desc.N {
		return false
	}
	tile[(j%m.desc.NB)*m.desc.MB+i%m.desc.MB] = v
	return true
}

// Each calls fn for every valid element of every local tile.
func (m *Matrix[T]) Each(fn func(i, j int, v *T)) {
	d := m.desc
	for _, idx := range d.LocalTiles() {
		tile := m.Tile(idx.M, idx.N)
		if tile == nil {
			return
		}
		rows, cols := d.TileRows(idx.M), d.TileCols(idx.N)
		for c := 0; c < cols; c++ {
			for r := 0; r < rows; r++ {
				fn(idx.M*d.MB+r, idx.N*d.NB+c, &tile[c*d.MB+r])
			}
		}
	}
}

// FreeData releases the local buffer.
func (m *Matrix[T]) FreeData() error {
	if m.stage != stageLive {
		return fmt.Errorf("free %s: %w", m.name, ErrAlreadyDone)
	}
	m.data = nil
	m.stage = stageFreed
	m.alloc.record("free", m.name, func(c *Counts) { c.Buffers-- })
	return nil
}

// Destroy tears down the distribution metadata. The buffer must already
// be freed.
func (m *Matrix[T]) Destroy() error {
	switch m.stage {
	case stageLive:
		return fmt.Errorf("destroy %s: %w: buffer still allocated", m.name, ErrOutOfOrder)
	case stageFreed:
	default:
		return fmt.Errorf("destroy %s: %w", m.name, ErrAlreadyDone)
	}
	m.offsets = nil
	m.stage = stageDestroyed
	m.alloc.record("destroy", m.name, func(c *Counts) { c.Descriptors-- })
	return nil
}

func (m *Matrix[T]) markReleased() error {
	switch m.stage {
	case stageDestroyed:
	case stageReleased:
		return fmt.Errorf("release %s: %w", m.name, ErrAlreadyDone)
	default:
		return fmt.Errorf("release %s: %w: descriptor still live", m.name, ErrOutOfOrder)
	}
	m.stage = stageReleased
	return nil
}

// Teardown runs FreeData, Destroy and Release in order and stops at the
// first error.
func Teardown(m Distributed) error {
	if err := m.FreeData(); err != nil {
		return err
	}
	if err := m.Destroy(); err != nil {
		return err
	}
	return m.allocator().Release(m)
}
