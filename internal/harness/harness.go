// Package harness drives the band reduction end to end: it builds a band
// matrix with padded tiles, runs the reduction graph and, when asked,
// checks the eigenvalues against a dense reference on rank 0.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/tilegraph/internal/collect"
	"yqhp/tilegraph/internal/hbrdt"
	"yqhp/tilegraph/internal/kernel"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

// Seed fills the band matrix.
const Seed = 100

// Params selects the problem.
type Params struct {
	N, MB, NB int
	Check     bool
}

// Result is what one rank observed.
type Result struct {
	// Eigenvalues are set on the root rank only.
	Eigenvalues []float64
	Check       Check
	Elapsed     time.Duration
}

// Run builds, fills and reduces the band on every rank of env. With
// p.Check the root compares the eigenvalues with a Jacobi solve of the
// dense matrix; other ranks report no check performed.
func Run(ctx context.Context, env node.Env, p Params) (res Result, err error) {
	log := env.Logger()
	layout := hbrdt.Layout{N: p.N, MB: p.MB, NB: p.NB}
	desc, err := layout.Descriptor(env.Size(), env.Rank())
	if err != nil {
		return res, err
	}
	a, err := tiled.Alloc[float64](env.Alloc, "A", desc)
	if err != nil {
		return res, fmt.Errorf("allocate band: %w", err)
	}
	defer func() {
		err = errors.Join(err, tiled.Teardown(a))
	}()
	tiled.FillRandom(a, Seed)

	var reference []float64
	if p.Check {
		band, err := collect.Dense(ctx, env.Runtime, a, hbrdt.Root)
		if err != nil {
			return res, fmt.Errorf("gather reference: %w", err)
		}
		if band != nil {
			reference = env.Lib.JacobiEigenvalues(layout.ToDense(band), p.N)
		}
	}

	start := time.Now()
	g, err := hbrdt.Build(env, a, p.N)
	if err != nil {
		return res, err
	}
	if err := g.Enqueue(); err != nil {
		return res, err
	}
	if err := g.Run(ctx); err != nil {
		return res, errors.Join(err, g.Abort())
	}
	res.Eigenvalues = g.Eigenvalues()
	if err := g.Destruct(); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)

	if reference != nil {
		res.Check = CheckSolution(res.Eigenvalues, reference, kernel.Eps())
		log.Info("eigenvalue check",
			zap.Stringer("verdict", res.Check.Verdict),
			zap.Float64("ratio", res.Check.Ratio))
	}
	return res, nil
}
