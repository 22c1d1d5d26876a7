package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrMalformed   = errors.New("malformed event")
	ErrUnknownKind = errors.New("unknown event kind")
)

// Event is one decoded inbound message. The concrete type tells the caller
// how to route it: Join mutates membership, RoomEvent is broadcast to a room
// without the sender, DirectEvent goes to exactly one connection.
type Event interface {
	Kind() string
}

type RoomEvent interface {
	Event
	Room() string
	// Outbound returns the kind and payload delivered to the other members.
	Outbound(senderID string) (string, interface{})
}

type DirectEvent interface {
	Event
	Target() string
	Outbound() (string, interface{})
}

type Join struct {
	RoomID string
	Name   string
}

func (Join) Kind() string { return KindJoinRoom }

type PlaylistPush struct {
	RoomID   string
	Playlist json.RawMessage
}

func (PlaylistPush) Kind() string   { return KindSendVideos }
func (e PlaylistPush) Room() string { return e.RoomID }
func (e PlaylistPush) Outbound(string) (string, interface{}) {
	return KindReceiveVideos, e.Playlist
}

type ItemDeleted struct {
	RoomID string
	ItemID json.RawMessage
}

func (ItemDeleted) Kind() string   { return KindSendDelete }
func (e ItemDeleted) Room() string { return e.RoomID }
func (e ItemDeleted) Outbound(string) (string, interface{}) {
	return KindReceiveDelete, e.ItemID
}

type ActiveItemChanged struct {
	RoomID string
	ItemID json.RawMessage
}

func (ActiveItemChanged) Kind() string   { return KindSendActive }
func (e ActiveItemChanged) Room() string { return e.RoomID }
func (e ActiveItemChanged) Outbound(string) (string, interface{}) {
	return KindReceiveActive, e.ItemID
}

// MetadataPush carries the transport descriptor (a torrent) of the active item.
type MetadataPush struct {
	RoomID string
	Data   json.RawMessage
}

func (MetadataPush) Kind() string   { return KindSendTorrent }
func (e MetadataPush) Room() string { return e.RoomID }
func (e MetadataPush) Outbound(string) (string, interface{}) {
	return KindReceiveTorrent, e.Data
}

type MetadataRequest struct {
	RoomID string
}

func (MetadataRequest) Kind() string   { return KindRequestTorrent }
func (e MetadataRequest) Room() string { return e.RoomID }
func (e MetadataRequest) Outbound(string) (string, interface{}) {
	return KindSendRequestTorrent, nil
}

// MetadataRequestTargeted asks peers for the descriptor of one item; the
// forwarded form carries the requester id so the holder can reply directly.
type MetadataRequestTargeted struct {
	RoomID string
	ItemID json.RawMessage
}

func (MetadataRequestTargeted) Kind() string   { return KindRequestTorrentID }
func (e MetadataRequestTargeted) Room() string { return e.RoomID }
func (e MetadataRequestTargeted) Outbound(senderID string) (string, interface{}) {
	return KindSendRequestTorrentID, TorrentRequest{RequesterID: senderID, ItemID: e.ItemID}
}

type MetadataReply struct {
	TargetID string
	Data     json.RawMessage
}

func (MetadataReply) Kind() string     { return KindSendTorrentID }
func (e MetadataReply) Target() string { return e.TargetID }
func (e MetadataReply) Outbound() (string, interface{}) {
	return KindReceiveTorrent, e.Data
}

type SyncPush struct {
	RoomID string
	State  json.RawMessage
}

func (SyncPush) Kind() string   { return KindSendSync }
func (e SyncPush) Room() string { return e.RoomID }
func (e SyncPush) Outbound(string) (string, interface{}) {
	return KindReceiveSync, e.State
}

type SyncRequest struct {
	RoomID string
}

func (SyncRequest) Kind() string   { return KindRequestSync }
func (e SyncRequest) Room() string { return e.RoomID }
func (e SyncRequest) Outbound(senderID string) (string, interface{}) {
	return KindSendRequestSync, senderID
}

type SyncReply struct {
	TargetID string
	State    json.RawMessage
}

func (SyncReply) Kind() string     { return KindSendSyncID }
func (e SyncReply) Target() string { return e.TargetID }
func (e SyncReply) Outbound() (string, interface{}) {
	return KindReceiveSync, e.State
}

// InitRequest is sent by a fresh joiner that needs the full room state.
type InitRequest struct {
	RoomID string
}

func (InitRequest) Kind() string   { return KindRequestInit }
func (e InitRequest) Room() string { return e.RoomID }
func (e InitRequest) Outbound(senderID string) (string, interface{}) {
	return KindRequestedInit, senderID
}

type InitReply struct {
	TargetID string
	Data     json.RawMessage
}

func (InitReply) Kind() string     { return KindSendInit }
func (e InitReply) Target() string { return e.TargetID }
func (e InitReply) Outbound() (string, interface{}) {
	return KindReceiveInit, e.Data
}

// Decode parses one text frame into a typed event. Any shape violation is
// reported as ErrMalformed; callers drop such frames without replying.
// Frames that are not valid UTF-8 are malformed too: relayed unchanged they
// would reach peers as invalid text frames.
func Decode(frame []byte) (Event, error) {
	if !utf8.Valid(frame) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}
	var in InboundEnvelope
	if err := json.Unmarshal(frame, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch in.Kind {
	case KindJoinRoom:
		return decodeJoin(in.Data)
	case KindRequestInit:
		var roomID string
		if kindOf(in.Data) != 's' || json.Unmarshal(in.Data, &roomID) != nil {
			return nil, malformed(in.Kind, "roomId")
		}
		return InitRequest{RoomID: roomID}, nil
	case "":
		return nil, fmt.Errorf("%w: missing kind", ErrMalformed)
	}

	fields, err := objectFields(in.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, in.Kind, err)
	}
	f := fieldSet{kind: in.Kind, raw: fields}

	switch in.Kind {
	case KindSendVideos:
		roomID := f.str("roomId")
		playlist := f.object("playlist")
		if f.err != nil {
			return nil, f.err
		}
		return PlaylistPush{RoomID: roomID, Playlist: playlist}, nil
	case KindSendDelete:
		roomID := f.str("roomId")
		id := f.number("videoId")
		if f.err != nil {
			return nil, f.err
		}
		return ItemDeleted{RoomID: roomID, ItemID: id}, nil
	case KindSendActive:
		roomID := f.str("roomId")
		id := f.number("videoId")
		if f.err != nil {
			return nil, f.err
		}
		return ActiveItemChanged{RoomID: roomID, ItemID: id}, nil
	case KindSendTorrent:
		roomID := f.str("roomId")
		if f.err != nil {
			return nil, f.err
		}
		return MetadataPush{RoomID: roomID, Data: f.any("data")}, nil
	case KindRequestTorrent:
		roomID := f.str("roomId")
		if f.err != nil {
			return nil, f.err
		}
		return MetadataRequest{RoomID: roomID}, nil
	case KindRequestTorrentID:
		roomID := f.str("roomId")
		id := f.number("videoId")
		if f.err != nil {
			return nil, f.err
		}
		return MetadataRequestTargeted{RoomID: roomID, ItemID: id}, nil
	case KindSendTorrentID:
		target := f.str("uId")
		data := f.object("data")
		if f.err != nil {
			return nil, f.err
		}
		return MetadataReply{TargetID: target, Data: data}, nil
	case KindSendSync:
		roomID := f.str("roomId")
		state := f.object("data")
		if f.err != nil {
			return nil, f.err
		}
		return SyncPush{RoomID: roomID, State: state}, nil
	case KindRequestSync:
		roomID := f.str("roomId")
		if f.err != nil {
			return nil, f.err
		}
		return SyncRequest{RoomID: roomID}, nil
	case KindSendSyncID:
		target := f.str("uId")
		state := f.object("data")
		if f.err != nil {
			return nil, f.err
		}
		return SyncReply{TargetID: target, State: state}, nil
	case KindSendInit:
		target := f.str("uId")
		if f.err != nil {
			return nil, f.err
		}
		return InitReply{TargetID: target, Data: f.any("data")}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
}

// decodeJoin accepts either a bare room id string or {"roomId", "name"}.
func decodeJoin(raw json.RawMessage) (Event, error) {
	switch kindOf(raw) {
	case 's':
		var roomID string
		if err := json.Unmarshal(raw, &roomID); err != nil || roomID == "" {
			return nil, malformed(KindJoinRoom, "roomId")
		}
		return Join{RoomID: roomID}, nil
	case 'o':
		fields, err := objectFields(raw)
		if err != nil {
			return nil, malformed(KindJoinRoom, "data")
		}
		f := fieldSet{kind: KindJoinRoom, raw: fields}
		roomID := f.str("roomId")
		if f.err != nil || roomID == "" {
			return nil, malformed(KindJoinRoom, "roomId")
		}
		var name string
		if kindOf(fields["name"]) == 's' {
			_ = json.Unmarshal(fields["name"], &name)
		}
		return Join{RoomID: roomID, Name: name}, nil
	}
	return nil, malformed(KindJoinRoom, "roomId")
}

type fieldSet struct {
	kind string
	raw  map[string]json.RawMessage
	err  error
}

func (f *fieldSet) str(name string) string {
	if f.err != nil {
		return ""
	}
	var s string
	v := f.raw[name]
	if kindOf(v) != 's' || json.Unmarshal(v, &s) != nil {
		f.err = malformed(f.kind, name)
	}
	return s
}

func (f *fieldSet) number(name string) json.RawMessage {
	if f.err != nil {
		return nil
	}
	v := f.raw[name]
	if kindOf(v) != 'n' {
		f.err = malformed(f.kind, name)
		return nil
	}
	return v
}

// object accepts JSON objects and arrays.
func (f *fieldSet) object(name string) json.RawMessage {
	if f.err != nil {
		return nil
	}
	v := f.raw[name]
	if k := kindOf(v); k != 'o' && k != 'a' {
		f.err = malformed(f.kind, name)
		return nil
	}
	return v
}

func (f *fieldSet) any(name string) json.RawMessage {
	if v, ok := f.raw[name]; ok {
		return v
	}
	return json.RawMessage("null")
}

func objectFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if kindOf(raw) != 'o' {
		return nil, errors.New("payload is not an object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// kindOf classifies a raw JSON value by its first byte: 's'tring, 'n'umber,
// 'o'bject, 'a'rray, 'b'oolean, 'z' for null and 0 for absent.
func kindOf(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	switch c := raw[0]; {
	case c == '"':
		return 's'
	case c == '{':
		return 'o'
	case c == '[':
		return 'a'
	case c == 't' || c == 'f':
		return 'b'
	case c == 'n':
		return 'z'
	case c == '-' || (c >= '0' && c <= '9'):
		return 'n'
	}
	return 0
}

func malformed(kind, field string) error {
	return fmt.Errorf("%w: %s: bad or missing %q", ErrMalformed, kind, field)
}
