package rooms

import (
	"sync"

	"watchsync/internal/protocol"
)

type Member struct {
	ConnID string
	Name   string
	IsHost bool
}

// Snapshot is the member list of one room right after a mutation. Empty
// marks a room that was deleted by that mutation.
type Snapshot struct {
	RoomID  string
	Members []Member
	Empty   bool
}

// Wire converts the snapshot to the member list sent to clients.
func (s Snapshot) Wire() []protocol.Member {
	out := make([]protocol.Member, 0, len(s.Members))
	for _, m := range s.Members {
		out = append(out, protocol.Member{ID: m.ConnID, Name: m.Name, IsHost: m.IsHost})
	}
	return out
}

// Room holds members in join order. All access goes through mu.
type Room struct {
	id      string
	members []Member
	// closed is set once the last member leaves; a closed room is never
	// reused and joiners must fetch a fresh one from the registry.
	closed bool
	mu     sync.Mutex
}

func newRoom(roomID string) *Room {
	return &Room{id: roomID}
}

// ElectHost returns the index of the member that must hold host status:
// the oldest remaining member, or -1 for an empty list.
func ElectHost(members []Member) int {
	if len(members) == 0 {
		return -1
	}
	return 0
}

func (r *Room) indexOf(connID string) int {
	for i, m := range r.members {
		if m.ConnID == connID {
			return i
		}
	}
	return -1
}

// attach appends a member. Caller holds mu.
func (r *Room) attach(connID, name string) error {
	if r.indexOf(connID) >= 0 {
		return ErrAlreadyJoined
	}
	r.members = append(r.members, Member{
		ConnID: connID,
		Name:   name,
		IsHost: len(r.members) == 0,
	})
	return nil
}

// detach removes a member and re-elects the host if needed. Caller holds mu.
func (r *Room) detach(connID string) bool {
	i := r.indexOf(connID)
	if i < 0 {
		return false
	}
	wasHost := r.members[i].IsHost
	r.members = append(r.members[:i], r.members[i+1:]...)
	if wasHost {
		if h := ElectHost(r.members); h >= 0 {
			r.members[h].IsHost = true
		}
	}
	if len(r.members) == 0 {
		r.closed = true
	}
	return true
}

// snapshot copies the member list. Caller holds mu.
func (r *Room) snapshot() Snapshot {
	members := make([]Member, len(r.members))
	copy(members, r.members)
	return Snapshot{RoomID: r.id, Members: members, Empty: len(members) == 0}
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}
