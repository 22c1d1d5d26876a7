package relay

import (
	"context"

	"github.com/rs/zerolog/log"

	"watchsync/internal/metrics"
	"watchsync/internal/protocol"
	"watchsync/internal/rooms"
)

// Sender is the outbound path of the connection gateway.
type Sender interface {
	Send(connID string, frame []byte) bool
}

type MemberLookup interface {
	Members(roomID string) ([]rooms.Member, error)
}

// Relay forwards events either to every other member of a room or to a
// single connection. Payloads pass through untouched; nothing is batched,
// merged or reordered.
type Relay struct {
	members MemberLookup
	out     Sender
}

func New(members MemberLookup, out Sender) *Relay {
	return &Relay{members: members, out: out}
}

// Forward delivers ev on behalf of senderID and returns the number of
// connections that accepted the frame. Unroutable events deliver nothing.
func (r *Relay) Forward(ctx context.Context, senderID string, ev protocol.Event) int {
	var n int
	switch e := ev.(type) {
	case protocol.RoomEvent:
		members, err := r.members.Members(e.Room())
		if err != nil {
			metrics.EventsDropped.WithLabelValues("unknown_room").Inc()
			log.Debug().Str("conn", senderID).Str("room", e.Room()).Str("kind", ev.Kind()).Msg("relay to unknown room")
			return 0
		}
		kind, data := e.Outbound(senderID)
		n = r.ToMembers(members, senderID, kind, data)
	case protocol.DirectEvent:
		kind, data := e.Outbound()
		n = r.ToConn(e.Target(), kind, data)
		if n == 0 {
			metrics.EventsDropped.WithLabelValues("unknown_target").Inc()
		}
	default:
		return 0
	}
	metrics.EventsRelayed.WithLabelValues(ev.Kind()).Add(float64(n))
	return n
}

// ToMembers sends one frame to every member except exclude.
func (r *Relay) ToMembers(members []rooms.Member, exclude, kind string, data interface{}) int {
	frame, err := protocol.Encode(kind, data)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("encode failed")
		return 0
	}
	n := 0
	for _, m := range members {
		if m.ConnID == exclude {
			continue
		}
		if r.out.Send(m.ConnID, frame) {
			n++
		}
	}
	return n
}

func (r *Relay) ToConn(connID, kind string, data interface{}) int {
	frame, err := protocol.Encode(kind, data)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("encode failed")
		return 0
	}
	if r.out.Send(connID, frame) {
		return 1
	}
	return 0
}
