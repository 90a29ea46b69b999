package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/getrf"
	"yqhp/tilegraph/internal/launcher"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

// ErrNumericFailure is returned when the factorization met a zero pivot.
var ErrNumericFailure = errors.New("factorization hit a zero pivot")

// ErrCheckFailed is returned when a result did not pass its check.
var ErrCheckFailed = errors.New("result check failed")

var (
	jsonOutput   string
	statusLinger time.Duration
)

// problemFlags maps the shared flag names to config paths.
var problemFlags = map[string]string{
	"N":       "problem.n",
	"mb":      "problem.mb",
	"nb":      "problem.nb",
	"seed":    "problem.seed",
	"check":   "problem.check",
	"P":       "grid.p",
	"Q":       "grid.q",
	"nodes":   "grid.nodes",
	"cores":   "runtime.cores",
	"network": "network.enabled",
	"rank":    "network.rank",
	"hub":     "network.hub_address",
	"status":  "status.enabled",
	"listen":  "status.address",
}

var getrfFlags = map[string]string{
	"M":         "problem.m",
	"reduction": "runtime.status_reduction",
}

var getrfCmd = &cobra.Command{
	Use:   "getrf",
	Short: "LU factorization with partial pivoting of a random complex matrix",
	Long: `Factor a random M x N complex matrix distributed block-cyclically over a
P x Q grid of ranks. The run succeeds when every column had a nonzero pivot
and, with --check, the residual of P*A - L*U stays under the threshold.`,
	Example: `  # 4 in-process ranks on a 2x2 grid
  tilegraph getrf -N 2000 --mb 200 -P 2 --nodes 4 --check

  # rank 1 of a networked run whose hub listens on rank 0
  tilegraph getrf -N 2000 --mb 200 --nodes 2 --network --rank 1 --hub 10.0.0.1:7946`,
	Args: cobra.NoArgs,
	RunE: runGetrf,
}

func init() {
	rootCmd.AddCommand(getrfCmd)
	addProblemFlags(getrfCmd)

	f := getrfCmd.Flags()
	f.IntP("M", "M", 0, "matrix rows (defaults to N)")
	f.String("reduction", "sum", "status reduction across ranks (sum, max, lor)")
}

// addProblemFlags registers the flags shared by every kernel command.
func addProblemFlags(c *cobra.Command) {
	f := c.Flags()
	f.IntP("N", "N", 0, "matrix order")
	f.Int("mb", 0, "tile rows")
	f.Int("nb", 0, "tile columns")
	f.Int64("seed", 0, "random fill seed")
	f.BoolP("check", "x", false, "verify the result")
	f.IntP("P", "P", 0, "process grid rows")
	f.IntP("Q", "Q", 0, "process grid columns (defaults to nodes/P)")
	f.Int("nodes", 0, "number of ranks")
	f.Int("cores", 0, "worker goroutines per rank")
	f.Bool("network", false, "host a single rank and join the others over the hub")
	f.Int("rank", 0, "rank hosted by this process in network mode")
	f.String("hub", "", "hub address; rank 0 listens on it")
	f.Bool("status", false, "serve the run status over HTTP")
	f.String("listen", "", "status API address")
	f.StringVar(&jsonOutput, "out-json", "", "write the run report as JSON")
	f.DurationVar(&statusLinger, "status-linger", 0, "keep the status API up after the run")
}

func runGetrf(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(changed(cmd, problemFlags, getrfFlags))
	if err != nil {
		return err
	}
	if cfg.Problem.MB != cfg.Problem.NB {
		return fmt.Errorf("getrf needs square tiles, got %dx%d", cfg.Problem.MB, cfg.Problem.NB)
	}
	op, err := comm.ParseOp(cfg.Runtime.StatusReduction)
	if err != nil {
		return err
	}

	s := newSession("getrf", cfg)
	if err := s.run(factorJob(s, op)); err != nil {
		return err
	}
	if s.report.Info != 0 {
		return fmt.Errorf("%w: info %d", ErrNumericFailure, s.report.Info)
	}
	if s.report.Verdict == verdictFailed {
		return ErrCheckFailed
	}
	return nil
}

const (
	verdictPassed = "PASSED"
	verdictFailed = "FAILED"
)

// factorJob allocates A, a copy for the check and the pivots, fills A
// with the seeded random values and factors it. Rank 0 records the outcome
// on the session report.
func factorJob(s *session, op comm.Op) launcher.Job {
	cfg := s.cfg
	return func(ctx context.Context, env node.Env) (err error) {
		p := cfg.Problem
		grid := tiled.Grid{P: cfg.Grid.P, Q: cfg.Grid.Q}
		ad, err := tiled.NewDescriptor(tiled.Complex128, grid, env.Rank(), p.MB, p.NB, p.M, p.N)
		if err != nil {
			return err
		}
		pd, err := tiled.NewDescriptor(tiled.Int32, grid, env.Rank(), p.MB, 1, p.M, 1)
		if err != nil {
			return err
		}

		var owned []tiled.Distributed
		defer func() {
			for _, m := range owned {
				err = errors.Join(err, tiled.Teardown(m))
			}
		}()
		a, err := tiled.Alloc[complex128](env.Alloc, "A", ad)
		if err != nil {
			return err
		}
		owned = append(owned, a)
		ipiv, err := tiled.Alloc[int32](env.Alloc, "IPIV", pd)
		if err != nil {
			return err
		}
		owned = append(owned, ipiv)
		tiled.FillRandom(a, p.Seed)

		var orig *tiled.Matrix[complex128]
		if p.Check {
			if orig, err = tiled.Alloc[complex128](env.Alloc, "A0", ad); err != nil {
				return err
			}
			owned = append(owned, orig)
			tiled.FillRandom(orig, p.Seed)
		}

		info, err := getrf.Factor(ctx, env, a, ipiv, op)
		if err != nil {
			return err
		}
		root := env.Rank() == 0
		if root {
			s.report.Info = info
			s.collectStats(env.Runtime)
		}
		if !p.Check || info != 0 {
			return nil
		}

		v, err := getrf.Verify(ctx, env, orig, a, ipiv)
		if err != nil {
			return err
		}
		if root && v.Checked {
			s.report.Residual = v.Residual
			s.report.Verdict = verdictPassed
			if !v.Passed {
				s.report.Verdict = verdictFailed
			}
			env.Logger().Info("residual checked",
				zap.Float64("residual", v.Residual),
				zap.Float64("threshold", getrf.ResidualThreshold),
				zap.Bool("passed", v.Passed))
		}
		return nil
	}
}
