package session

import (
	"context"
	"errors"
	"sync"

	"github.com/RanFeng/ilog"
	"github.com/rs/zerolog/log"

	"watchsync/internal/metrics"
	"watchsync/internal/names"
	"watchsync/internal/protocol"
	"watchsync/internal/relay"
	"watchsync/internal/rooms"
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	}
	return "disconnected"
}

type session struct {
	name  string
	state State
}

// Controller is the per-connection state machine. It mutates the registry on
// join and disconnect and hands every other event to the relay.
type Controller struct {
	registry *rooms.Registry
	relay    *relay.Relay
	names    func() string

	mu       sync.Mutex
	sessions map[string]*session
}

func New(registry *rooms.Registry, out relay.Sender) *Controller {
	c := &Controller{
		registry: registry,
		relay:    relay.New(registry, out),
		names:    names.Random,
		sessions: make(map[string]*session),
	}
	registry.OnChange(c.publishMembers)
	return c
}

func (c *Controller) Connect(ctx context.Context, connID string) {
	c.mu.Lock()
	c.sessions[connID] = &session{name: c.names(), state: StateConnected}
	c.mu.Unlock()
	ilog.EventInfo(ctx, "session_connect", "connID", connID)
}

// Handle decodes one inbound frame and acts on it. Malformed frames are
// dropped without a reply; the client catches up on the next broadcast.
func (c *Controller) Handle(ctx context.Context, connID string, frame []byte) {
	c.mu.Lock()
	sess, ok := c.sessions[connID]
	c.mu.Unlock()
	if !ok {
		return
	}

	ev, err := protocol.Decode(frame)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, protocol.ErrUnknownKind) {
			reason = "unknown_kind"
		}
		metrics.EventsDropped.WithLabelValues(reason).Inc()
		log.Debug().Err(err).Str("conn", connID).Msg("dropping inbound frame")
		return
	}

	switch e := ev.(type) {
	case protocol.Join:
		c.join(ctx, connID, sess, e)
	default:
		c.relay.Forward(ctx, connID, ev)
	}
}

func (c *Controller) join(ctx context.Context, connID string, sess *session, e protocol.Join) {
	name := e.Name
	if name == "" {
		c.mu.Lock()
		name = sess.name
		c.mu.Unlock()
	}
	if _, err := c.registry.Join(ctx, e.RoomID, connID, name); err != nil {
		log.Debug().Err(err).Str("conn", connID).Str("room", e.RoomID).Msg("join ignored")
		return
	}
	c.mu.Lock()
	sess.state = StateJoined
	c.mu.Unlock()
}

// Disconnect removes the connection from every room. Remaining members get
// the updated list through the registry notifier; emptied rooms are deleted
// silently.
func (c *Controller) Disconnect(ctx context.Context, connID string) {
	snaps := c.registry.Leave(ctx, connID)
	c.mu.Lock()
	delete(c.sessions, connID)
	c.mu.Unlock()
	ilog.EventInfo(ctx, "session_disconnect", "connID", connID, "rooms", len(snaps))
}

func (c *Controller) State(connID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[connID]; ok {
		return s.state
	}
	return StateDisconnected
}

// publishMembers runs under the room lock, so member lists leave in the order
// the mutations happened.
func (c *Controller) publishMembers(snap rooms.Snapshot) {
	if snap.Empty {
		return
	}
	c.relay.ToMembers(snap.Members, "", protocol.KindSendUsers, snap.Wire())
}
