package comm

import (
	"fmt"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// HubPath is the websocket endpoint peers connect to.
const HubPath = "/comm"

type hubConn struct {
	rank int
	conn *fiberws.Conn
	mu   sync.Mutex
}

func (c *hubConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(fiberws.BinaryMessage, data)
}

type hubRound struct {
	values []int
	count  int
	op     Op
}

// Hub relays messages between network peers and runs their reductions.
// Rank 0 hosts it; every rank, rank 0 included, connects to it with Dial.
type Hub struct {
	app  *fiber.App
	size int
	log  *zap.Logger

	mu     sync.Mutex
	conns  map[int]*hubConn
	rounds map[uint64]*hubRound
	ready  bool
}

// NewHub creates a hub for size peers.
func NewHub(size int, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			AppName:               "tilegraph-hub",
		}),
		size:   size,
		log:    log.Named("hub"),
		conns:  make(map[int]*hubConn),
		rounds: make(map[uint64]*hubRound),
	}
	h.setupRoutes()
	return h
}

func (h *Hub) setupRoutes() {
	h.app.Use(HubPath, func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	h.app.Get(HubPath, fiberws.New(func(c *fiberws.Conn) {
		h.handleConnection(c)
	}))
}

// Listen serves the hub on addr until Shutdown.
func (h *Hub) Listen(addr string) error {
	return h.app.Listen(addr)
}

// Serve serves the hub on ln until Shutdown.
func (h *Hub) Serve(ln net.Listener) error {
	return h.app.Listener(ln)
}

// Shutdown stops the hub.
func (h *Hub) Shutdown() error {
	return h.app.Shutdown()
}

// Connected returns the number of registered peers.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) handleConnection(c *fiberws.Conn) {
	_, raw, err := c.ReadMessage()
	if err != nil {
		h.log.Error("read hello failed", zap.Error(err))
		return
	}
	hello, err := decodeEnvelope(raw)
	if err != nil || hello.Kind != kindHello {
		h.log.Error("expected hello", zap.Error(err))
		return
	}

	conn := &hubConn{rank: hello.From, conn: c}
	if err := h.register(conn, hello.Size); err != nil {
		h.log.Warn("peer rejected", zap.Int("peer", hello.From), zap.Error(err))
		reject, _ := (&envelope{Kind: kindReject, Error: err.Error()}).encode()
		_ = conn.write(reject)
		return
	}
	defer h.unregister(conn.rank)

	h.log.Debug("peer connected", zap.Int("peer", conn.rank))

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			h.log.Debug("peer disconnected", zap.Int("peer", conn.rank), zap.Error(err))
			return
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			h.log.Error("invalid envelope", zap.Int("peer", conn.rank), zap.Error(err))
			continue
		}
		h.route(conn.rank, env, raw)
	}
}

func (h *Hub) register(conn *hubConn, size int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if size != h.size {
		return fmt.Errorf("peer expects %d ranks, hub serves %d", size, h.size)
	}
	if conn.rank < 0 || conn.rank >= h.size {
		return fmt.Errorf("rank %d: %w", conn.rank, ErrInvalidRank)
	}
	if _, ok := h.conns[conn.rank]; ok {
		return fmt.Errorf("rank %d already connected", conn.rank)
	}
	h.conns[conn.rank] = conn

	if len(h.conns) == h.size && !h.ready {
		h.ready = true
		ready, _ := (&envelope{Kind: kindReady, Size: h.size}).encode()
		for _, peer := range h.conns {
			if err := peer.write(ready); err != nil {
				h.log.Error("send ready failed", zap.Int("peer", peer.rank), zap.Error(err))
			}
		}
	}
	return nil
}

func (h *Hub) unregister(rank int) {
	h.mu.Lock()
	delete(h.conns, rank)
	h.mu.Unlock()
}

func (h *Hub) route(from int, env *envelope, raw []byte) {
	switch env.Kind {
	case kindData:
		h.mu.Lock()
		dst, ok := h.conns[env.To]
		h.mu.Unlock()
		if !ok {
			h.log.Error("destination not connected", zap.Int("from", from), zap.Int("to", env.To))
			return
		}
		if err := dst.write(raw); err != nil {
			h.log.Error("forward failed", zap.Int("to", env.To), zap.Error(err))
		}

	case kindReduce:
		h.reduce(from, env)

	default:
		h.log.Warn("unexpected envelope", zap.Int("from", from), zap.Uint8("kind", uint8(env.Kind)))
	}
}

func (h *Hub) reduce(from int, env *envelope) {
	h.mu.Lock()
	rd, ok := h.rounds[env.Seq]
	if !ok {
		rd = &hubRound{values: make([]int, h.size), op: env.Op}
		h.rounds[env.Seq] = rd
	}
	rd.values[from] = env.Value
	rd.count++
	if rd.count < h.size {
		h.mu.Unlock()
		return
	}
	delete(h.rounds, env.Seq)
	peers := make([]*hubConn, 0, len(h.conns))
	for _, c := range h.conns {
		peers = append(peers, c)
	}
	h.mu.Unlock()

	result, _ := (&envelope{Kind: kindResult, Seq: env.Seq, Value: rd.op.Reduce(rd.values...)}).encode()
	for _, c := range peers {
		if err := c.write(result); err != nil {
			h.log.Error("send result failed", zap.Int("peer", c.rank), zap.Error(err))
		}
	}
}
