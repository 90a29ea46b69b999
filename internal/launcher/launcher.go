// Package launcher starts the ranks of a run and hands each one its
// environment.
//
// Without networking every rank runs as a goroutine of this process and
// ranks talk through in-memory mailboxes. With networking the process hosts
// a single rank; rank 0 also serves the hub every rank dials.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/tilegraph/internal/comm"
	"yqhp/tilegraph/internal/config"
	"yqhp/tilegraph/internal/dataflow"
	"yqhp/tilegraph/internal/kernel"
	"yqhp/tilegraph/internal/logger"
	"yqhp/tilegraph/internal/node"
	"yqhp/tilegraph/internal/tiled"
)

// ErrLeak is returned when a rank finished with live matrices or arena
// types.
var ErrLeak = errors.New("resources leaked")

// drainTimeout bounds how long the hub waits for peers to hang up.
const drainTimeout = 5 * time.Second

// Job runs on every rank hosted by the process.
type Job func(ctx context.Context, env node.Env) error

// Launcher runs jobs over the ranks configured in cfg.
type Launcher struct {
	cfg   *config.Config
	runID string
}

// New creates a launcher. The run ID is random for in-process runs and
// derived from the hub address for networked ones, so that every process
// of a run agrees on it.
func New(cfg *config.Config) *Launcher {
	id := uuid.NewString()
	if cfg.Network.Enabled {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tilegraph://"+cfg.Network.HubAddress)).String()
	}
	return &Launcher{cfg: cfg, runID: id}
}

// RunID identifies the run.
func (l *Launcher) RunID() string { return l.runID }

// Size returns the number of ranks of the run.
func (l *Launcher) Size() int { return l.cfg.Grid.Nodes }

// Hosts reports whether this process hosts rank.
func (l *Launcher) Hosts(rank int) bool {
	if l.cfg.Network.Enabled {
		return rank == l.cfg.Network.Rank
	}
	return rank >= 0 && rank < l.Size()
}

// Run executes job on every local rank and returns once all finished. The
// first failing rank cancels the others.
func (l *Launcher) Run(ctx context.Context, job Job) error {
	if l.cfg.Network.Enabled {
		return l.runNetwork(ctx, job)
	}
	return l.runLocal(ctx, job)
}

func (l *Launcher) runLocal(ctx context.Context, job Job) error {
	var ranks []comm.Communicator
	if l.Size() == 1 {
		ranks = append(ranks, comm.NewSelf())
	} else {
		for _, c := range comm.NewLocalGroup(l.Size()) {
			ranks = append(ranks, c)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range ranks {
		g.Go(func() error {
			defer c.Close()
			return l.runRank(gctx, c, job)
		})
	}
	return g.Wait()
}

func (l *Launcher) runNetwork(ctx context.Context, job Job) error {
	nc := l.cfg.Network
	size := l.Size()
	log := logger.ForRank(nc.Rank, size)

	var hub *comm.Hub
	if nc.Rank == 0 {
		ln, err := net.Listen("tcp", nc.HubAddress)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", nc.HubAddress, err)
		}
		hub = comm.NewHub(size, log)
		go func() {
			if err := hub.Serve(ln); err != nil {
				log.Error("hub stopped", zap.Error(err))
			}
		}()
		defer func() {
			if err := hub.Shutdown(); err != nil {
				log.Warn("hub shutdown", zap.Error(err))
			}
		}()
	}

	dctx, cancel := context.WithTimeout(ctx, nc.DialTimeout)
	peer, err := comm.Dial(dctx, nc.HubAddress, nc.Rank, size, log)
	cancel()
	if err != nil {
		return fmt.Errorf("join run at %s: %w", nc.HubAddress, err)
	}

	err = l.runRank(ctx, peer, job)
	if hub != nil {
		drain(hub, drainTimeout)
	}
	return errors.Join(err, peer.Close())
}

// drain waits until rank 0 is the last peer on the hub.
func drain(hub *comm.Hub, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for hub.Connected() > 1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}

func (l *Launcher) runRank(ctx context.Context, c comm.Communicator, job Job) (err error) {
	log := logger.ForRank(c.Rank(), c.Size()).With(zap.String("run_id", l.runID))

	rt, err := dataflow.New(c, dataflow.WithCores(l.cfg.Runtime.Cores), dataflow.WithLogger(log))
	if err != nil {
		return err
	}
	lib := kernel.Init(l.cfg.Runtime.Cores)
	env := node.Env{
		Runtime: rt,
		Alloc:   tiled.NewAllocator(),
		Lib:     lib,
		Log:     log,
		RunID:   l.runID,
	}
	defer func() {
		lib.Close()
		err = errors.Join(err, leaks(env), rt.Close())
		if err != nil {
			log.Error("rank failed", zap.Error(err))
		}
	}()

	log.Debug("rank started", zap.Int("cores", rt.Cores()))
	return job(ctx, env)
}

func leaks(env node.Env) error {
	var errs []error
	if live := env.Alloc.Live(); live.Total() != 0 {
		errs = append(errs, fmt.Errorf("%w: rank %d holds %d buffers, %d descriptors, %d objects",
			ErrLeak, env.Rank(), live.Buffers, live.Descriptors, live.Objects))
	}
	if n := env.Runtime.Types().Live(); n != 0 {
		errs = append(errs, fmt.Errorf("%w: rank %d has %d arena types defined", ErrLeak, env.Rank(), n))
	}
	return errors.Join(errs...)
}
