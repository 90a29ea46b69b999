package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/tilegraph/internal/harness"
	"yqhp/tilegraph/internal/launcher"
	"yqhp/tilegraph/internal/node"
)

var hbrdtCmd = &cobra.Command{
	Use:   "hbrdt",
	Short: "Band to tridiagonal reduction of a random symmetric band matrix",
	Long: `Reduce an N x N symmetric band matrix of bandwidth MB, stored in padded
lower band tiles over a 1 x nodes grid, to tridiagonal form and compute its
eigenvalues. With --check rank 0 compares them with a dense reference solve.`,
	Example: `  tilegraph hbrdt -N 400 --mb 8 --nb 16 --nodes 3 --check`,
	Args:    cobra.NoArgs,
	RunE:    runHbrdt,
}

func init() {
	rootCmd.AddCommand(hbrdtCmd)
	addProblemFlags(hbrdtCmd)
}

func runHbrdt(cmd *cobra.Command, _ []string) error {
	// the band is distributed over a single process row
	overrides := changed(cmd, problemFlags)
	overrides["grid.p"] = "1"
	overrides["grid.q"] = "0"
	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}

	s := newSession("hbrdt", cfg)
	s.report.Problem.Seed = harness.Seed
	if err := s.run(reduceJob(s)); err != nil {
		return err
	}
	if s.report.Verdict == harness.Suspicious.String() {
		return ErrCheckFailed
	}
	return nil
}

// reduceJob runs the band reduction harness. Rank 0 records the verdict.
func reduceJob(s *session) launcher.Job {
	p := s.cfg.Problem
	params := harness.Params{N: p.N, MB: p.MB, NB: p.NB, Check: p.Check}
	return func(ctx context.Context, env node.Env) error {
		res, err := harness.Run(ctx, env, params)
		if err != nil {
			return err
		}
		if env.Rank() != 0 {
			return nil
		}
		s.collectStats(env.Runtime)
		if p.Check {
			s.report.Verdict = res.Check.Verdict.String()
			s.report.Residual = res.Check.Ratio
		}
		fields := []zap.Field{zap.Int("eigenvalues", len(res.Eigenvalues)), zap.Duration("elapsed", res.Elapsed)}
		if n := len(res.Eigenvalues); n > 0 {
			fields = append(fields,
				zap.Float64("min", res.Eigenvalues[0]),
				zap.Float64("max", res.Eigenvalues[n-1]))
		}
		env.Logger().Info("band reduced", fields...)
		if !quiet && p.Check {
			fmt.Printf("  check: %s (ratio %.3g)\n", res.Check.Verdict, res.Check.Ratio)
		}
		return nil
	}
}
