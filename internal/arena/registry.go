package arena

import (
	"errors"
	"fmt"
	"sync"

	"yqhp/tilegraph/internal/tiled"
)

type slot struct {
	handle Handle
	def    Definition
}

// Registry holds the arenas of one graph, one slot per Role.
type Registry struct {
	mu    sync.RWMutex
	table *TypeTable
	slots [NumRoles]*slot
}

// NewRegistry creates an empty registry whose definitions live in table.
func NewRegistry(table *TypeTable) *Registry {
	return &Registry{table: table}
}

// Define registers def under its role. A role can be defined once.
func (r *Registry) Define(def Definition) error {
	if !def.Role.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownRole, def.Role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[def.Role] != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRole, def.Role)
	}
	h, err := r.table.Define(def)
	if err != nil {
		return fmt.Errorf("define %s: %w", def.Role, err)
	}
	r.slots[def.Role] = &slot{handle: h, def: def}
	return nil
}

// Definition returns the definition registered for role.
func (r *Registry) Definition(role Role) (Definition, error) {
	if !role.Valid() {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.slots[role]
	if s == nil {
		return Definition{}, fmt.Errorf("%w: %s", ErrUndefined, role)
	}
	return s.def, nil
}

// Handle returns the type handle bound to role.
func (r *Registry) Handle(role Role) (Handle, bool) {
	if !role.Valid() {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.slots[role]; s != nil {
		return s.handle, true
	}
	return 0, false
}

// Defined returns the number of defined roles.
func (r *Registry) Defined() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Undefine releases role from the type table.
func (r *Registry) Undefine(role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[role]
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUndefined, role)
	}
	if err := r.table.Undefine(s.handle); err != nil {
		return err
	}
	r.slots[role] = nil
	return nil
}

// UndefineAll releases every defined role in role order. Undefined roles
// are skipped; errors are joined.
func (r *Registry) UndefineAll() error {
	var errs []error
	for _, role := range Roles {
		if _, ok := r.Handle(role); !ok {
			continue
		}
		if err := r.Undefine(role); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckPayload verifies that payload has exactly the extent of role.
func (r *Registry) CheckPayload(role Role, payload []byte) error {
	def, err := r.Definition(role)
	if err != nil {
		return err
	}
	if len(payload) != def.Extent() {
		return fmt.Errorf("%w: %s payload %d bytes, extent %d",
			ErrExtentMismatch, role, len(payload), def.Extent())
	}
	return nil
}

// Pack encodes elems as a payload of role. elems must hold exactly the
// role's element count.
func Pack[T tiled.Scalar](r *Registry, role Role, elems []T) ([]byte, error) {
	def, err := r.Definition(role)
	if err != nil {
		return nil, err
	}
	if def.Type != tiled.TypeOf[T]() {
		return nil, fmt.Errorf("%w: %s holds %s, got %s", ErrTypeMismatch, role, def.Type, tiled.TypeOf[T]())
	}
	if len(elems) != def.Count() {
		return nil, fmt.Errorf("%w: %s wants %d elements, got %d", ErrExtentMismatch, role, def.Count(), len(elems))
	}
	return tiled.Encode(elems), nil
}

// Unpack validates payload against role and decodes it into dst.
func Unpack[T tiled.Scalar](r *Registry, role Role, payload []byte, dst []T) error {
	def, err := r.Definition(role)
	if err != nil {
		return err
	}
	if def.Type != tiled.TypeOf[T]() {
		return fmt.Errorf("%w: %s holds %s, got %s", ErrTypeMismatch, role, def.Type, tiled.TypeOf[T]())
	}
	if err := r.CheckPayload(role, payload); err != nil {
		return err
	}
	if len(dst) != def.Count() {
		return fmt.Errorf("%w: %s wants %d elements, destination holds %d", ErrExtentMismatch, role, def.Count(), len(dst))
	}
	return tiled.Decode(payload, dst)
}
