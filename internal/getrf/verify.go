package getrf

import (
	"context"
	"math"

	"go.uber.org/zap"

	"yqhp/tilegraph/internal/collect"
	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

// ResidualThreshold is the largest normalized residual a factorization
// passes with.
const ResidualThreshold = 60.0

// Verdict is the outcome of Verify.
type Verdict struct {
	// Checked is false for non-square matrices, which are not verified.
	Checked bool
	Passed  bool
	// Residual is only known on root.
	Residual float64
}

// Verify gathers the original matrix, its factors and the pivots to rank 0
// and computes max|P*A - L*U| / (max|A| * n * eps) there. Every rank must
// call it and every rank gets the same Passed value.
func Verify(ctx context.Context, env node.Env, orig, lu *tiled.Matrix[complex128], ipiv *tiled.Matrix[int32]) (Verdict, error) {
	const root = 0
	d := lu.Descriptor()
	if d.M != d.N {
		return Verdict{Passed: true}, nil
	}

	a0, err := collect.Dense(ctx, env.Runtime, orig, root)
	if err != nil {
		return Verdict{}, err
	}
	f, err := collect.Dense(ctx, env.Runtime, lu, root)
	if err != nil {
		return Verdict{}, err
	}
	piv, err := collect.Dense(ctx, env.Runtime, ipiv, root)
	if err != nil {
		return Verdict{}, err
	}

	v := Verdict{Checked: true}
	failed := 0
	if env.Runtime.Rank() == root {
		rows := make([]int, len(piv))
		for i, p := range piv {
			rows[i] = int(p)
		}
		v.Residual = env.Lib.LUResidual(a0, f, d.N, rows)
		if math.IsNaN(v.Residual) || v.Residual >= ResidualThreshold {
			failed = 1
		}
		env.Logger().Info("residual", zap.Float64("value", v.Residual), zap.Float64("threshold", ResidualThreshold))
	}

	failed, err = env.Runtime.Comm().AllReduce(ctx, failed, comm.OpMax)
	if err != nil {
		return Verdict{}, err
	}
	v.Passed = failed == 0
	return v, nil
}
