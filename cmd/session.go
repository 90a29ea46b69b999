package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"yqhp/tilegraph/api/rest"
	"yqhp/tilegraph/internal/config"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/launcher"
	"yqhp/tilegraph/internal/logger"
	"yqhp/tilegraph/pkg/types"
)

// session is one CLI run: the launcher, the report kept by the process
// hosting rank 0 and the optional status server publishing it.
type session struct {
	cfg     *config.Config
	l       *launcher.Launcher
	report  *types.RunReport
	board   *rest.Board
	server  *rest.Server
	jsonOut string
	linger  time.Duration
}

func newSession(command string, cfg *config.Config) *session {
	l := launcher.New(cfg)
	p := cfg.Problem
	s := &session{
		cfg:     cfg,
		l:       l,
		board:   rest.NewBoard(),
		jsonOut: jsonOutput,
		linger:  statusLinger,
		report: &types.RunReport{
			RunID:     l.RunID(),
			Command:   command,
			State:     types.RunStatePending,
			StartTime: time.Now(),
			Problem: types.ProblemInfo{
				M: p.M, N: p.N, MB: p.MB, NB: p.NB, Seed: p.Seed, Check: p.Check,
			},
			Grid:  fmt.Sprintf("%dx%d", cfg.Grid.P, cfg.Grid.Q),
			Ranks: cfg.Grid.Nodes,
		},
	}
	return s
}

// reporting reports whether this process fills the run report.
func (s *session) reporting() bool { return s.l.Hosts(0) }

// run executes job until it finishes or the process is interrupted.
func (s *session) run(job launcher.Job) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.reporting() && s.cfg.Status.Enabled {
		s.server = rest.NewServer(s.board, &rest.Config{
			Address:      s.cfg.Status.Address,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
		go func() {
			if err := s.server.Start(); err != nil {
				logger.Warn("status server stopped", zap.Error(err))
			}
		}()
	}

	s.report.State = types.RunStateRunning
	s.report.StartTime = time.Now()
	s.board.Put(s.report)
	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Printf("  run %s: %s on %s grid, %d ranks\n\n", s.report.RunID, s.report.Command, s.report.Grid, s.report.Ranks)
	}

	err := s.l.Run(ctx, job)
	s.report.Finish(err, time.Now())
	s.board.Put(s.report)

	if s.reporting() {
		if werr := s.writeJSON(); werr != nil {
			logger.Error("write report", zap.Error(werr))
		}
		if !quiet {
			printReport(s.report)
		}
	}
	s.closeServer(ctx)
	return err
}

// collectStats copies the task timings of the reporting rank.
func (s *session) collectStats(rt *dataflow.Runtime) {
	for _, k := range rt.Stats().Snapshot() {
		s.report.Tasks = append(s.report.Tasks, types.TaskKindReport{
			Kind:   k.Kind,
			Count:  k.Count,
			MeanUs: k.Mean,
			P50Us:  k.P50,
			P99Us:  k.P99,
			MaxUs:  k.Max,
		})
	}
}

func (s *session) writeJSON() error {
	if s.jsonOut == "" {
		return nil
	}
	data, err := s.report.MarshalIndent()
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.jsonOut, data, 0644); err != nil {
		return err
	}
	if !quiet {
		fmt.Printf("\n  report written to %s\n", s.jsonOut)
	}
	return nil
}

// closeServer keeps the status server up for the linger period so the
// final report can be fetched, then shuts it down.
func (s *session) closeServer(ctx context.Context) {
	if s.server == nil {
		return
	}
	if s.linger > 0 {
		select {
		case <-time.After(s.linger):
		case <-ctx.Done():
		}
	}
	if err := s.server.Shutdown(); err != nil {
		logger.Warn("status server shutdown", zap.Error(err))
	}
}

func printReport(r *types.RunReport) {
	fmt.Println()
	fmt.Println("     result:")
	fmt.Println()
	fmt.Printf("     state..............: %s\n", r.State)
	fmt.Printf("     duration...........: %s\n", (time.Duration(r.DurationMs) * time.Millisecond).String())
	fmt.Printf("     problem............: %dx%d, tiles %dx%d\n", r.Problem.M, r.Problem.N, r.Problem.MB, r.Problem.NB)
	fmt.Printf("     info...............: %d\n", r.Info)
	if r.Verdict != "" {
		fmt.Printf("     check..............: %s (%.3g)\n", r.Verdict, r.Residual)
	}
	if len(r.Tasks) > 0 {
		fmt.Println()
		fmt.Println("     task kind          count      mean      p99       max  (us)")
		for _, t := range r.Tasks {
			fmt.Printf("     %-16s %7d %9.1f %8d %9d\n", t.Kind, t.Count, t.MeanUs, t.P99Us, t.MaxUs)
		}
	}
	if r.Error != "" {
		fmt.Println()
		fmt.Printf("     error: %s\n", r.Error)
	}
	fmt.Println()
}
