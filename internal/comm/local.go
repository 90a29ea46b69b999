package comm

import (
	"context"
	"fmt"
	"sync"
)

// round is one collective reduction in progress.
type round struct {
	values []int
	count  int
	op     Op
	result int
	done   chan struct{}
}

// reducer runs collective reductions for a fixed number of participants.
// Each rank's n-th call joins round n, so a call abandoned by its context
// still counts toward its round and never shifts later calls.
type reducer struct {
	mu     sync.Mutex
	size   int
	next   []uint64
	rounds map[uint64]*round
}

func newReducer(size int) *reducer {
	return &reducer{size: size, next: make([]uint64, size), rounds: make(map[uint64]*round)}
}

func (r *reducer) reduce(ctx context.Context, rank, v int, op Op) (int, error) {
	r.mu.Lock()
	seq := r.next[rank]
	r.next[rank]++
	rd, ok := r.rounds[seq]
	if !ok {
		rd = &round{values: make([]int, r.size), op: op, done: make(chan struct{})}
		r.rounds[seq] = rd
	}
	rd.values[rank] = v
	rd.count++
	if rd.count == r.size {
		rd.result = rd.op.Reduce(rd.values...)
		delete(r.rounds, seq)
		close(rd.done)
	}
	r.mu.Unlock()

	select {
	case <-rd.done:
		return rd.result, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type group struct {
	boxes   []*mailbox
	reducer *reducer
}

// Local is one rank of an in-process group created by NewLocalGroup.
type Local struct {
	rank  int
	group *group
}

// NewLocalGroup creates n communicators that exchange messages in memory.
// Each is meant to be driven by its own goroutine.
func NewLocalGroup(n int) []*Local {
	g := &group{
		boxes:   make([]*mailbox, n),
		reducer: newReducer(n),
	}
	ranks := make([]*Local, n)
	for i := range ranks {
		g.boxes[i] = newMailbox()
		ranks[i] = &Local{rank: i, group: g}
	}
	return ranks
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return len(l.group.boxes) }

func (l *Local) Send(to int, tag Tag, payload []byte) error {
	if to < 0 || to >= l.Size() {
		return fmt.Errorf("send to %d: %w", to, ErrInvalidRank)
	}
	box := l.group.boxes[to]
	select {
	case <-box.closed:
		return ErrClosed
	default:
	}
	box.put(l.rank, tag, payload)
	return nil
}

func (l *Local) Recv(ctx context.Context, from int, tag Tag) ([]byte, error) {
	if from < 0 || from >= l.Size() {
		return nil, fmt.Errorf("recv from %d: %w", from, ErrInvalidRank)
	}
	return l.group.boxes[l.rank].take(ctx, from, tag)
}

func (l *Local) AllReduce(ctx context.Context, v int, op Op) (int, error) {
	return l.group.reducer.reduce(ctx, l.rank, v, op)
}

func (l *Local) Barrier(ctx context.Context) error {
	_, err := l.group.reducer.reduce(ctx, l.rank, 0, OpSum)
	return err
}

// Pending returns the number of messages delivered to this rank and not
// yet received.
func (l *Local) Pending() int {
	return l.group.boxes[l.rank].pending()
}

func (l *Local) Close() error {
	l.group.boxes[l.rank].close()
	return nil
}
