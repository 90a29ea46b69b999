package getrf

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

// Factor runs one factorization of a on the ranks of env.Runtime: build,
// enqueue, run, destruct, then a collective reduction of the local status
// with op. Every rank returns the same value: with comm.OpSum it is the sum
// of the per-rank zero-pivot columns, 0 when the factorization succeeded.
//
// Build failures are returned without reaching the reduction; the caller
// is expected to cancel the other ranks. A failed run aborts the graph
// instead of destructing it, which leaves the run unusable on every rank.
func Factor(ctx context.Context, env node.Env, a *tiled.Matrix[complex128], ipiv *tiled.Matrix[int32], op comm.Op) (int, error) {
	log := env.Logger()
	if a == nil {
		return StatusBuildFailed, newInvalidArgumentError("matrix is required")
	}
	grid := a.Descriptor().Grid

	start := time.Now()
	g, status, err := Build(env, a, ipiv, grid.P, grid.Q)
	if err != nil {
		log.Error("build failed", zap.Int("status", status), zap.Error(err))
		return status, err
	}
	if err := g.Enqueue(); err != nil {
		return StatusBuildFailed, err
	}

	if err := g.Run(ctx); err != nil {
		if aerr := g.Abort(); aerr != nil {
			log.Warn("abort after failed run", zap.Error(aerr))
		}
		return 0, fmt.Errorf("factor %s: %w", g.Name(), err)
	}
	info := g.Info()
	if err := g.Destruct(); err != nil {
		return info, err
	}

	global, err := env.Runtime.Comm().AllReduce(ctx, info, op)
	if err != nil {
		return info, fmt.Errorf("reduce status: %w", err)
	}
	log.Info("factorization finished",
		zap.Int("local_info", info),
		zap.Int("info", global),
		zap.String("reduction", op.String()),
		zap.Duration("elapsed", time.Since(start)))
	return global, nil
}
