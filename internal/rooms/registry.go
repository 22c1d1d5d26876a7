package rooms

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/RanFeng/ilog"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrAlreadyJoined = errors.New("connection already joined room")
)

// Registry maps room ids to rooms and connection ids to the rooms they joined.
//
// Lock order is room.mu before Registry.mu; Registry.mu is never held while
// acquiring a room lock.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	byConn map[string]map[string]struct{}
	notify func(Snapshot)
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]map[string]struct{}),
	}
}

// OnChange registers fn to receive every post-mutation snapshot. fn runs while
// the room lock is held, so snapshots of one room arrive in mutation order;
// it must not call back into the Registry.
func (r *Registry) OnChange(fn func(Snapshot)) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Join appends connID to the room, creating the room if needed. The first
// member of a room becomes host. Joining twice returns ErrAlreadyJoined and
// leaves the room untouched.
func (r *Registry) Join(ctx context.Context, roomID, connID, name string) (Snapshot, error) {
	for {
		room := r.getOrCreate(roomID)
		room.mu.Lock()
		if room.closed {
			// Lost a race with the last leaver; the registry already holds
			// (or will create) a fresh room under this id.
			room.mu.Unlock()
			continue
		}
		if err := room.attach(connID, name); err != nil {
			snap := room.snapshot()
			room.mu.Unlock()
			return snap, err
		}
		r.mu.Lock()
		set, ok := r.byConn[connID]
		if !ok {
			set = make(map[string]struct{})
			r.byConn[connID] = set
		}
		set[roomID] = struct{}{}
		notify := r.notify
		r.mu.Unlock()

		snap := room.snapshot()
		if notify != nil {
			notify(snap)
		}
		room.mu.Unlock()

		ilog.EventInfo(ctx, "room_join", "roomID", roomID, "connID", connID, "members", len(snap.Members))
		return snap, nil
	}
}

// Leave removes connID from every room it belongs to. Each room is updated
// independently; an Empty snapshot means that room was deleted.
func (r *Registry) Leave(ctx context.Context, connID string) []Snapshot {
	var out []Snapshot
	for _, roomID := range r.RoomsOf(connID) {
		if snap, ok := r.LeaveRoom(ctx, roomID, connID); ok {
			out = append(out, snap)
		}
	}
	return out
}

// LeaveRoom removes connID from one room. It reports false when the
// connection was not a member.
func (r *Registry) LeaveRoom(ctx context.Context, roomID, connID string) (Snapshot, bool) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	room.mu.Lock()
	if !room.detach(connID) {
		room.mu.Unlock()
		return Snapshot{}, false
	}
	r.mu.Lock()
	if set, ok := r.byConn[connID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(r.byConn, connID)
		}
	}
	if room.closed {
		if current, ok := r.rooms[roomID]; ok && current == room {
			delete(r.rooms, roomID)
		}
	}
	notify := r.notify
	r.mu.Unlock()

	snap := room.snapshot()
	if notify != nil {
		notify(snap)
	}
	room.mu.Unlock()

	ilog.EventInfo(ctx, "room_leave", "roomID", roomID, "connID", connID, "members", len(snap.Members))
	return snap, true
}

// Members returns the current member list of a room in join order.
func (r *Registry) Members(roomID string) ([]Member, error) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	snap := room.Snapshot()
	if snap.Empty {
		return nil, ErrRoomNotFound
	}
	return snap.Members, nil
}

// RoomsOf returns the ids of every room connID is a member of, sorted.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byConn[connID]
	out := make([]string, 0, len(set))
	for roomID := range set {
		out = append(out, roomID)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) getOrCreate(roomID string) *Room {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok = r.rooms[roomID]; ok {
		return room
	}
	room = newRoom(roomID)
	r.rooms[roomID] = room
	return room
}
