package comm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Peer is a network rank connected to a Hub.
type Peer struct {
	rank int
	size int
	ws   *websocket.Conn
	wmu  sync.Mutex
	box  *mailbox
	log  *zap.Logger

	mu      sync.Mutex
	seq     uint64
	results map[uint64]chan int
	done    chan struct{}
	readErr error
	closed  bool
}

// Dial connects rank to the hub at addr and waits until all size ranks have
// joined. Connection attempts are retried until ctx expires.
func Dial(ctx context.Context, addr string, rank, size int, log *zap.Logger) (*Peer, error) {
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("dial as %d of %d: %w", rank, size, ErrInvalidRank)
	}
	if log == nil {
		log = zap.NewNop()
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: HubPath}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	var ws *websocket.Conn
	backoff := 50 * time.Millisecond
	for {
		conn, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err == nil {
			ws = conn
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial hub %s: %w", addr, errors.Join(ctx.Err(), err))
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, time.Second)
	}

	hello, _ := (&envelope{Kind: kindHello, From: rank, Size: size}).encode()
	if err := ws.WriteMessage(websocket.BinaryMessage, hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	_, raw, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("wait for ready: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	ack, err := decodeEnvelope(raw)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("decode ready: %w", err)
	}
	if ack.Kind != kindReady {
		ws.Close()
		return nil, fmt.Errorf("hub rejected rank %d: %s", rank, ack.Error)
	}

	p := &Peer{
		rank:    rank,
		size:    size,
		ws:      ws,
		box:     newMailbox(),
		log:     log.With(zap.Int("rank", rank)),
		results: make(map[uint64]chan int),
		done:    make(chan struct{}),
	}
	go p.readPump()
	return p, nil
}

func (p *Peer) Rank() int { return p.rank }
func (p *Peer) Size() int { return p.size }

func (p *Peer) readPump() {
	defer close(p.done)
	defer p.box.close()
	for {
		_, raw, err := p.ws.ReadMessage()
		if err != nil {
			p.mu.Lock()
			if !p.closed {
				p.readErr = err
			}
			p.mu.Unlock()
			return
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			p.log.Error("invalid envelope", zap.Error(err))
			continue
		}
		switch env.Kind {
		case kindData:
			p.box.put(env.From, env.Tag, env.Payload)
		case kindResult:
			p.mu.Lock()
			ch, ok := p.results[env.Seq]
			delete(p.results, env.Seq)
			p.mu.Unlock()
			if ok {
				ch <- env.Value
			}
		default:
			p.log.Warn("unexpected envelope", zap.Uint8("kind", uint8(env.Kind)))
		}
	}
}

func (p *Peer) write(env *envelope) error {
	data, err := env.encode()
	if err != nil {
		return err
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	return p.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (p *Peer) Send(to int, tag Tag, payload []byte) error {
	if to < 0 || to >= p.size {
		return fmt.Errorf("send to %d: %w", to, ErrInvalidRank)
	}
	if to == p.rank {
		select {
		case <-p.done:
			return ErrClosed
		default:
		}
		p.box.put(p.rank, tag, payload)
		return nil
	}
	return p.write(&envelope{Kind: kindData, From: p.rank, To: to, Tag: tag, Payload: payload})
}

func (p *Peer) Recv(ctx context.Context, from int, tag Tag) ([]byte, error) {
	if from < 0 || from >= p.size {
		return nil, fmt.Errorf("recv from %d: %w", from, ErrInvalidRank)
	}
	payload, err := p.box.take(ctx, from, tag)
	if errors.Is(err, ErrClosed) {
		return nil, p.closeErr()
	}
	return payload, err
}

func (p *Peer) AllReduce(ctx context.Context, v int, op Op) (int, error) {
	ch := make(chan int, 1)
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.results[seq] = ch
	p.mu.Unlock()

	if err := p.write(&envelope{Kind: kindReduce, From: p.rank, Seq: seq, Op: op, Value: v}); err != nil {
		return 0, err
	}
	select {
	case r := <-ch:
		return r, nil
	case <-p.done:
		return 0, p.closeErr()
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *Peer) Barrier(ctx context.Context) error {
	_, err := p.AllReduce(ctx, 0, OpSum)
	return err
}

func (p *Peer) closeErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, p.readErr)
	}
	return ErrClosed
}

// Close disconnects from the hub.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.wmu.Lock()
	_ = p.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	p.wmu.Unlock()
	err := p.ws.Close()
	<-p.done
	return err
}
