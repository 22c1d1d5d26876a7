package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"watchsync/internal/metrics"
)

// Socket is the part of a websocket connection the gateway drives. Both
// gorilla/websocket and hertz-contrib/websocket connections satisfy it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Conn is one accepted connection with its outbound queue. A single writer
// goroutine drains the queue, so frames reach the peer in enqueue order.
type Conn struct {
	id        string
	sock      Socket
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, sock Socket, buffer int) *Conn {
	return &Conn{
		id:   id,
		sock: sock,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// enqueue never blocks; a full queue drops the frame for this peer only.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.OutboundDropped.Inc()
		log.Warn().Str("conn", c.id).Msg("outbound queue full, frame dropped")
		return false
	}
}

func (c *Conn) writeLoop(opts Options) {
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("conn", c.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("conn", c.id).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}
