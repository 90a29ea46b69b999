package comm

import (
	"context"
	"fmt"
)

// Self is the communicator of a single-process run. Reductions are the
// identity and messages loop back to the caller.
type Self struct {
	box *mailbox
}

// NewSelf creates a single-rank communicator.
func NewSelf() *Self {
	return &Self{box: newMailbox()}
}

func (s *Self) Rank() int { return 0 }
func (s *Self) Size() int { return 1 }

func (s *Self) Send(to int, tag Tag, payload []byte) error {
	if to != 0 {
		return fmt.Errorf("send to %d: %w", to, ErrInvalidRank)
	}
	select {
	case <-s.box.closed:
		return ErrClosed
	default:
	}
	s.box.put(0, tag, payload)
	return nil
}

func (s *Self) Recv(ctx context.Context, from int, tag Tag) ([]byte, error) {
	if from != 0 {
		return nil, fmt.Errorf("recv from %d: %w", from, ErrInvalidRank)
	}
	return s.box.take(ctx, 0, tag)
}

func (s *Self) AllReduce(ctx context.Context, v int, op Op) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return op.Reduce(v), nil
}

func (s *Self) Barrier(ctx context.Context) error {
	return ctx.Err()
}

func (s *Self) Close() error {
	s.box.close()
	return nil
}
