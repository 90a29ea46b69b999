package getrf

import (
	"errors"

	"yqhp/tilegraph/internal/arena"
	"yqhp/tilegraph/internal/tiled"
)

// Definitions returns the wire formats of the three arenas for element type
// typ, mb x nb tiles and ldv swap rows: a full tile, an ldv x nb swap block
// and mb pivot indices.
func Definitions(typ tiled.ElementType, mb, nb, ldv int) [arena.NumRoles]arena.Definition {
	return [arena.NumRoles]arena.Definition{
		arena.Default: arena.Rectangle(arena.Default, typ, mb, nb),
		arena.Swap:    arena.Rectangle(arena.Swap, typ, ldv, nb),
		arena.Pivot:   arena.Rectangle(arena.Pivot, tiled.Int32, mb, 1),
	}
}

// defineArenas registers every definition on reg.
func defineArenas(reg *arena.Registry, defs [arena.NumRoles]arena.Definition) error {
	for _, def := range defs {
		if err := reg.Define(def); err != nil {
			if errors.Is(err, arena.ErrDuplicateRole) {
				return NewGraphError(ErrCodeDuplicateRegistration, "define "+def.Role.String()+" arena", err)
			}
			return NewGraphError(ErrCodeInvalidArgument, "define "+def.Role.String()+" arena", err)
		}
	}
	return nil
}
