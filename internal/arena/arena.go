// Package arena registers the wire formats of payloads that flow over task
// graph edges. Each graph owns a Registry with one slot per Role; slots bind
// handles in a TypeTable shared by every graph of a runtime.
package arena

import (
	"errors"
	"fmt"

	"yqhp/tilegraph/internal/tiled"
)

// Alignment is the byte alignment every arena is defined with.
const Alignment = 16

var (
	ErrDuplicateRole  = errors.New("arena role already defined")
	ErrUnknownRole    = errors.New("unknown arena role")
	ErrUndefined      = errors.New("arena role not defined")
	ErrUnknownHandle  = errors.New("unknown type handle")
	ErrExtentMismatch = errors.New("payload does not match arena extent")
	ErrTypeMismatch   = errors.New("element type does not match arena")
	ErrBadDefinition  = errors.New("invalid arena definition")
)

// Role names one payload class of a graph.
type Role int

const (
	// Default carries one full tile of the primary matrix.
	Default Role = iota
	// Swap carries a narrow block of pivot-swap rows.
	Swap
	// Pivot carries one tile row of integer pivot indices.
	Pivot

	NumRoles
)

// Roles lists every role in definition order.
var Roles = [NumRoles]Role{Default, Swap, Pivot}

func (r Role) String() string {
	switch r {
	case Default:
		return "DEFAULT"
	case Swap:
		return "SWAP"
	case Pivot:
		return "PIVOT"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r >= Default && r < NumRoles
}

// Definition is the wire format of one role: Rows x Cols elements of Type.
type Definition struct {
	Role      Role
	Type      tiled.ElementType
	Rows      int
	Cols      int
	Alignment int
}

// Rectangle returns a definition of rows x cols elements.
func Rectangle(role Role, typ tiled.ElementType, rows, cols int) Definition {
	return Definition{
		Role:      role,
		Type:      typ,
		Rows:      rows,
		Cols:      cols,
		Alignment: Alignment,
	}
}

// Count returns the number of elements in one payload.
func (d Definition) Count() int { return d.Rows * d.Cols }

// Extent returns the size of one payload in bytes.
func (d Definition) Extent() int { return d.Count() * d.Type.Size() }

// Validate checks the definition's shape and alignment.
func (d Definition) Validate() error {
	switch {
	case !d.Role.Valid():
		return fmt.Errorf("%w: %s", ErrUnknownRole, d.Role)
	case d.Rows <= 0 || d.Cols <= 0:
		return fmt.Errorf("%w: %s shape %dx%d", ErrBadDefinition, d.Role, d.Rows, d.Cols)
	case d.Type.Size() == 0:
		return fmt.Errorf("%w: %s element type %s", ErrBadDefinition, d.Role, d.Type)
	case d.Alignment <= 0 || d.Alignment&(d.Alignment-1) != 0:
		return fmt.Errorf("%w: %s alignment %d", ErrBadDefinition, d.Role, d.Alignment)
	}
	return nil
}

func (d Definition) String() string {
	return fmt.Sprintf("%s[%dx%d %s, %d bytes]", d.Role, d.Rows, d.Cols, d.Type, d.Extent())
}
