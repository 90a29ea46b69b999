package rest

import (
	"sync"

	"yqhp/tilegraph/pkg/types"
)

// Board keeps the reports of the runs this process started, newest last.
type Board struct {
	mu    sync.RWMutex
	runs  map[string]*types.RunReport
	order []string
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{runs: make(map[string]*types.RunReport)}
}

// Put stores a copy of r, replacing an earlier report of the same run.
func (b *Board) Put(r *types.RunReport) {
	cp := *r
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.runs[r.RunID]; !ok {
		b.order = append(b.order, r.RunID)
	}
	b.runs[r.RunID] = &cp
}

// Get returns the report of run id.
func (b *Board) Get(id string) (*types.RunReport, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.runs[id]
	return r, ok
}

// Latest returns the most recently started run.
func (b *Board) Latest() (*types.RunReport, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.order) == 0 {
		return nil, false
	}
	return b.runs[b.order[len(b.order)-1]], true
}

// List returns every report in start order.
func (b *Board) List() []*types.RunReport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.RunReport, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.runs[id])
	}
	return out
}
