// Package node holds what one rank of a run hands to the graphs it builds.
package node

import (
	"go.uber.org/zap"

	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/kernel"
	"yqhp/tilegraph/internal/tiled"
)

// Env is one rank's execution environment: the runtime that schedules its
// graphs, the allocator their matrices come from and the numeric library.
type Env struct {
	Runtime *dataflow.Runtime
	Alloc   *tiled.Allocator
	Lib     *kernel.Library
	Log     *zap.Logger
	// RunID is shared by every rank of one run.
	RunID string
}

// Rank returns the local rank.
func (e Env) Rank() int { return e.Runtime.Rank() }

// Size returns the number of ranks.
func (e Env) Size() int { return e.Runtime.Size() }

// Logger returns Log, or a no-op logger when none is set.
func (e Env) Logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}
