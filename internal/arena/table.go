package arena

import (
	"fmt"
	"sync"
)

// Handle identifies a defined type in a TypeTable. The zero Handle is never
// issued.
type Handle uint32

// TypeTable is the runtime-wide namespace of defined wire types. Handles
// that are never undefined stay live, so leaked definitions show up in
// Live.
type TypeTable struct {
	mu   sync.Mutex
	next Handle
	defs map[Handle]Definition
}

// NewTypeTable creates an empty type table.
func NewTypeTable() *TypeTable {
	return &TypeTable{defs: make(map[Handle]Definition)}
}

// Define binds def to a fresh handle.
func (t *TypeTable) Define(def Definition) (Handle, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.defs[t.next] = def
	return t.next, nil
}

// Undefine releases h.
func (t *TypeTable) Undefine(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.defs[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(t.defs, h)
	return nil
}

// Lookup returns the definition bound to h.
func (t *TypeTable) Lookup(h Handle) (Definition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	def, ok := t.defs[h]
	return def, ok
}

// Live returns the number of defined handles.
func (t *TypeTable) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.defs)
}
