package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"watchsync/internal/metrics"
)

// Handler receives the lifecycle and inbound frames of every connection.
// Handle is called from the connection's read goroutine, one frame at a time.
type Handler interface {
	Connect(ctx context.Context, connID string)
	Handle(ctx context.Context, connID string, frame []byte)
	Disconnect(ctx context.Context, connID string)
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  1 << 20,
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  10 * time.Second,
		SendBuffer: 64,
	}
}

// Gateway owns every live connection and is the only path for outbound frames.
type Gateway struct {
	opts    Options
	handler Handler
	newID   func() string

	mu    sync.RWMutex
	conns map[string]*Conn
}

func New(opts Options) *Gateway {
	return &Gateway{
		opts:  opts,
		newID: uuid.NewString,
		conns: make(map[string]*Conn),
	}
}

// Attach sets the handler. It must be called before the first Serve.
func (g *Gateway) Attach(h Handler) {
	g.handler = h
}

// Send queues frame for connID. It reports false when the connection is
// unknown, closed or its queue is full.
func (g *Gateway) Send(connID string, frame []byte) bool {
	g.mu.RLock()
	c, ok := g.conns[connID]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	return c.enqueue(frame)
}

func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Serve runs one connection until the peer goes away or ctx is cancelled.
// It blocks for the lifetime of the connection.
func (g *Gateway) Serve(ctx context.Context, sock Socket) {
	c := newConn(g.newID(), sock, g.opts.SendBuffer)

	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	metrics.Connections.Inc()
	log.Debug().Str("conn", c.id).Msg("connection opened")

	sock.SetReadLimit(g.opts.ReadLimit)
	_ = sock.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	go c.writeLoop(g.opts)
	stop := context.AfterFunc(ctx, c.close)

	g.handler.Connect(ctx, c.id)
	g.readLoop(ctx, c)

	stop()
	c.close()
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
	metrics.Connections.Dec()

	g.handler.Disconnect(context.WithoutCancel(ctx), c.id)
	log.Debug().Str("conn", c.id).Msg("connection closed")
}

func (g *Gateway) readLoop(ctx context.Context, c *Conn) {
	for {
		msgType, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn", c.id).Msg("read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := g.dispatch(ctx, c.id, data); err != nil {
			log.Error().Err(err).Str("conn", c.id).Msg("handler failed, closing connection")
			return
		}
	}
}

// dispatch isolates a panicking handler to the connection that triggered it.
func (g *Gateway) dispatch(ctx context.Context, connID string, frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	g.handler.Handle(ctx, connID, frame)
	return nil
}

// CloseAll closes every live connection; each Serve then runs its normal
// disconnect path.
func (g *Gateway) CloseAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.conns {
		c.close()
	}
}

// OriginAllowed reports whether a browser origin may open a connection.
// Requests without an Origin header are not browsers and are allowed.
func OriginAllowed(allowed, origin string) bool {
	return allowed == "*" || origin == "" || origin == allowed
}
