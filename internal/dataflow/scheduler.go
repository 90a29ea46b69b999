package dataflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"yqhp/tilegraph/internal/arena"
)

type node struct {
	task       *Task
	waiting    int
	dependents []*node
	inputs     []Input
	payloads   [][]byte
}

// plan links tasks by name and rejects unknown dependencies and cycles.
func plan(tasks []*Task) ([]*node, error) {
	byName := make(map[string]*node, len(tasks))
	nodes := make([]*node, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := byName[t.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name)
		}
		n := &node{task: t}
		byName[t.Name] = n
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		for _, dep := range n.task.After {
			pred, ok := byName[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s waits on %s", ErrUnknownDependency, n.task.Name, dep)
			}
			pred.dependents = append(pred.dependents, n)
			n.waiting++
		}
	}

	// Kahn's algorithm on a copy of the counters
	remaining := make(map[*node]int, len(nodes))
	var frontier []*node
	for _, n := range nodes {
		remaining[n] = n.waiting
		if n.waiting == 0 {
			frontier = append(frontier, n)
		}
	}
	visited := 0
	for len(frontier) > 0 {
		n := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		visited++
		for _, d := range n.dependents {
			remaining[d]--
			if remaining[d] == 0 {
				frontier = append(frontier, d)
			}
		}
	}
	if visited != len(nodes) {
		return nil, fmt.Errorf("%w: %d of %d tasks unreachable", ErrCycle, len(nodes)-visited, len(nodes))
	}
	return nodes, nil
}

// execution is one run of an object's local tasks.
type execution struct {
	rt   *Runtime
	obj  Object
	reg  *arena.Registry
	log  *zap.Logger
	ctx  context.Context
	stop context.CancelFunc

	ready chan *node
	wg    sync.WaitGroup

	mu   sync.Mutex
	done int
	err  error
}

func (rt *Runtime) execute(ctx context.Context, obj Object, tasks []*Task, log *zap.Logger) error {
	nodes, err := plan(tasks)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ex := &execution{
		rt:    rt,
		obj:   obj,
		reg:   obj.Arenas(),
		log:   log,
		ctx:   runCtx,
		stop:  cancel,
		ready: make(chan *node, len(nodes)),
	}

	for _, n := range nodes {
		if n.waiting == 0 {
			ex.satisfied(n)
		}
	}

	dispatched := 0
dispatch:
	for dispatched < len(nodes) {
		select {
		case n := <-ex.ready:
			dispatched++
			ex.wg.Add(1)
			if err := rt.pool.Submit(func() {
				defer ex.wg.Done()
				ex.runNode(n)
			}); err != nil {
				ex.wg.Done()
				ex.fail(fmt.Errorf("submit %s: %w", n.task.Name, err))
				break dispatch
			}
		case <-runCtx.Done():
			break dispatch
		}
	}
	ex.wg.Wait()

	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.err != nil {
		return ex.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (ex *execution) fail(err error) {
	ex.mu.Lock()
	if ex.err == nil {
		ex.err = err
	}
	ex.mu.Unlock()
	ex.stop()
}

// satisfied is called once all local predecessors of n completed. It waits
// for n's input messages and then marks n ready.
func (ex *execution) satisfied(n *node) {
	if n.task.Inputs != nil {
		n.inputs = n.task.Inputs()
	}
	if len(n.inputs) == 0 {
		ex.ready <- n
		return
	}

	n.payloads = make([][]byte, len(n.inputs))
	var pending sync.WaitGroup
	for i, in := range n.inputs {
		pending.Add(1)
		ex.wg.Add(1)
		go func(i int, in Input) {
			defer ex.wg.Done()
			defer pending.Done()
			tag := in.Tag
			tag.Object = ex.obj.base().ID()
			payload, err := ex.rt.comm.Recv(ex.ctx, in.From, tag)
			if err != nil {
				if ex.ctx.Err() == nil {
					ex.fail(fmt.Errorf("%s: receive %s from %d: %w", n.task.Name, tag, in.From, err))
				}
				return
			}
			if err := ex.reg.CheckPayload(in.Role, payload); err != nil {
				ex.fail(fmt.Errorf("%s: receive %s from %d: %w", n.task.Name, tag, in.From, err))
				return
			}
			n.payloads[i] = payload
		}(i, in)
	}

	ex.wg.Add(1)
	go func() {
		defer ex.wg.Done()
		pending.Wait()
		if ex.ctx.Err() != nil {
			return
		}
		ex.ready <- n
	}()
}

func (ex *execution) runNode(n *node) {
	if ex.ctx.Err() != nil {
		return
	}
	t := n.task
	start := time.Now()

	for i, in := range n.inputs {
		if in.Deliver == nil {
			continue
		}
		if err := in.Deliver(n.payloads[i]); err != nil {
			ex.fail(fmt.Errorf("%s: deliver %s: %w", t.Name, in.Tag, err))
			return
		}
	}
	n.payloads = nil

	if t.Run != nil {
		tc := &TaskContext{
			rt:   ex.rt,
			obj:  ex.obj,
			task: t,
			log:  ex.log.With(zap.String("task", t.Name)),
		}
		if err := t.Run(ex.ctx, tc); err != nil {
			ex.fail(fmt.Errorf("%s: %w", t.Name, err))
			return
		}
	}
	ex.rt.stats.Record(t.Kind, time.Since(start))

	var next []*node
	ex.mu.Lock()
	ex.done++
	for _, d := range n.dependents {
		d.waiting--
		if d.waiting == 0 {
			next = append(next, d)
		}
	}
	ex.mu.Unlock()

	for _, d := range next {
		ex.satisfied(d)
	}
}
