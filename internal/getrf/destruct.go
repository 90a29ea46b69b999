package getrf

import (
	"errors"

	"yqhp/tilegraph/internal/dataflow"
)

// Destruct releases a quiescent graph: each workspace's buffer, descriptor
// and descriptor object, then the three arenas, then the graph itself.
// Destructing before quiescence, after a failed run or twice is a
// lifecycle violation. A nil graph is ignored.
//
// A failing step does not stop the ones after it; their errors are joined.
func (g *Graph) Destruct() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.Lifecycle().Require(dataflow.StateQuiescent); err != nil {
		return newLifecycleError("destruct "+g.Name(), err)
	}
	return g.release(g.rt.Release)
}

// Abort tears down a graph whose run failed. Peers may still be executing
// their share; messages they send to this rank for the graph are dropped.
// Abort on any graph that did not fail is a lifecycle violation.
func (g *Graph) Abort() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.Lifecycle().Require(dataflow.StateFailed); err != nil {
		return newLifecycleError("abort "+g.Name(), err)
	}
	g.log.Warn("aborting graph before global quiescence")
	return g.release(g.rt.Discard)
}

func (g *Graph) release(drop func(dataflow.Object) error) error {
	var errs []error
	if err := g.ws.Teardown(); err != nil {
		errs = append(errs, err)
	}
	if err := g.arenas.UndefineAll(); err != nil {
		errs = append(errs, err)
	}
	if err := drop(g); err != nil {
		errs = append(errs, err)
	}

	g.a, g.ipiv = nil, nil
	g.pivots = nil
	if err := errors.Join(errs...); err != nil {
		return newLifecycleError("release graph", err)
	}
	g.log.Debug("graph destroyed")
	return nil
}
