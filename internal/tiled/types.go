// Package tiled describes block-cyclic distributed tiled matrices and owns
// their local storage.
//
// A Descriptor maps every tile (m, n) of a global M x N matrix onto a P x Q
// rank grid. A Matrix couples a descriptor with the tiles the local rank
// owns. Matrices are created by an Allocator, which counts every live
// buffer, descriptor and matrix object so leaks are observable.
package tiled

import "fmt"

// ElementType is the wire element type of a matrix.
type ElementType int

const (
	Float64 ElementType = iota
	Complex128
	Int32
)

// Size returns the size of one element in bytes.
func (e ElementType) Size() int {
	switch e {
	case Float64:
		return 8
	case Complex128:
		return 16
	case Int32:
		return 4
	default:
		return 0
	}
}

func (e ElementType) String() string {
	switch e {
	case Float64:
		return "float64"
	case Complex128:
		return "complex128"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("ElementType(%d)", int(e))
	}
}

// Scalar is the set of element types a Matrix can hold.
type Scalar interface {
	float64 | complex128 | int32
}

// TypeOf returns the ElementType of T.
func TypeOf[T Scalar]() ElementType {
	var zero T
	switch any(zero).(type) {
	case complex128:
		return Complex128
	case int32:
		return Int32
	default:
		return Float64
	}
}

// Grid is a P x Q process grid with row-major rank numbering.
type Grid struct {
	P, Q int
}

// Size returns the number of ranks in the grid.
func (g Grid) Size() int { return g.P * g.Q }

// Coords returns the grid row and column of rank.
func (g Grid) Coords(rank int) (p, q int) {
	return rank / g.Q, rank % g.Q
}

// Rank returns the rank at grid position (p, q).
func (g Grid) Rank(p, q int) int {
	return p*g.Q + q
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d", g.P, g.Q)
}

// TileIndex addresses one tile of a matrix.
type TileIndex struct {
	M, N int
}
