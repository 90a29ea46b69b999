package comm

import (
	"context"
	"sync"
)

type mailKey struct {
	from int
	tag  Tag
}

type slot struct {
	queue  [][]byte
	signal chan struct{}
}

// mailbox is an unbounded store of received messages keyed by source and
// tag.
type mailbox struct {
	mu     sync.Mutex
	slots  map[mailKey]*slot
	closed chan struct{}
	once   sync.Once
}

func newMailbox() *mailbox {
	return &mailbox{
		slots:  make(map[mailKey]*slot),
		closed: make(chan struct{}),
	}
}

func (b *mailbox) slotLocked(k mailKey) *slot {
	s, ok := b.slots[k]
	if !ok {
		s = &slot{signal: make(chan struct{})}
		b.slots[k] = s
	}
	return s
}

func (b *mailbox) put(from int, tag Tag, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.slotLocked(mailKey{from: from, tag: tag})
	s.queue = append(s.queue, payload)
	close(s.signal)
	s.signal = make(chan struct{})
}

func (b *mailbox) take(ctx context.Context, from int, tag Tag) ([]byte, error) {
	k := mailKey{from: from, tag: tag}
	for {
		b.mu.Lock()
		s := b.slotLocked(k)
		if len(s.queue) > 0 {
			p := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			if len(s.queue) == 0 {
				delete(b.slots, k)
			}
			b.mu.Unlock()
			return p, nil
		}
		wait := s.signal
		b.mu.Unlock()

		select {
		case <-wait:
		case <-b.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// pending returns the number of queued, unreceived messages.
func (b *mailbox) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.slots {
		n += len(s.queue)
	}
	return n
}

func (b *mailbox) close() {
	b.once.Do(func() { close(b.closed) })
}
