package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"watchsync/internal/protocol"
	"watchsync/internal/rooms"
)

type recorder struct {
	mu     sync.Mutex
	frames map[string][]string
}

func (r *recorder) Send(connID string, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[connID] = append(r.frames[connID], string(frame))
	return true
}

func (r *recorder) take(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.frames[connID]
	delete(r.frames, connID)
	return out
}

func newTestController() (*Controller, *rooms.Registry, *recorder) {
	reg := rooms.NewRegistry()
	out := &recorder{frames: make(map[string][]string)}
	c := New(reg, out)
	return c, reg, out
}

func membersOf(t *testing.T, frame string) []protocol.Member {
	t.Helper()
	var env struct {
		Kind string            `json:"kind"`
		Data []protocol.Member `json:"data"`
	}
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		t.Fatalf("bad frame %s: %v", frame, err)
	}
	if env.Kind != protocol.KindSendUsers {
		t.Fatalf("expected %s, got %s", protocol.KindSendUsers, env.Kind)
	}
	return env.Data
}

// TestJoinLeaveScenario 测试加入、房主转移和房间删除的完整流程
func TestJoinLeaveScenario(t *testing.T) {
	c, reg, out := newTestController()
	ctx := context.Background()

	c.Connect(ctx, "A")
	c.Connect(ctx, "B")
	if c.State("A") != StateConnected {
		t.Fatalf("expected connected, got %s", c.State("A"))
	}

	c.Handle(ctx, "A", []byte(`{"kind":"joinRoom","data":{"roomId":"R","name":"Alice"}}`))
	got := out.take("A")
	if len(got) != 1 {
		t.Fatalf("A should receive one member list, got %v", got)
	}
	if m := membersOf(t, got[0]); len(m) != 1 || m[0] != (protocol.Member{ID: "A", Name: "Alice", IsHost: true}) {
		t.Errorf("unexpected members %+v", m)
	}
	if c.State("A") != StateJoined {
		t.Errorf("expected joined, got %s", c.State("A"))
	}

	c.Handle(ctx, "B", []byte(`{"kind":"joinRoom","data":"R"}`))
	want := []protocol.Member{{ID: "A", Name: "Alice", IsHost: true}}
	for _, id := range []string{"A", "B"} {
		got := out.take(id)
		if len(got) != 1 {
			t.Fatalf("%s should receive one member list, got %v", id, got)
		}
		m := membersOf(t, got[0])
		if len(m) != 2 || m[0] != want[0] || m[1].ID != "B" || m[1].IsHost || m[1].Name == "" {
			t.Errorf("%s: unexpected members %+v", id, m)
		}
	}

	c.Disconnect(ctx, "A")
	if got := out.take("A"); len(got) != 0 {
		t.Errorf("departed connection should get nothing, got %v", got)
	}
	got = out.take("B")
	if len(got) != 1 {
		t.Fatalf("B should receive one member list, got %v", got)
	}
	if m := membersOf(t, got[0]); len(m) != 1 || m[0].ID != "B" || !m[0].IsHost {
		t.Errorf("B should be sole host: %+v", m)
	}

	c.Disconnect(ctx, "B")
	if got := out.take("B"); len(got) != 0 {
		t.Errorf("empty room should not broadcast, got %v", got)
	}
	if _, err := reg.Members("R"); !errors.Is(err, rooms.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
	if c.State("B") != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State("B"))
	}
}

// TestRelayActiveItem 测试切换当前视频事件的转发
func TestRelayActiveItem(t *testing.T) {
	c, _, out := newTestController()
	ctx := context.Background()
	for _, id := range []string{"A", "B"} {
		c.Connect(ctx, id)
		c.Handle(ctx, id, []byte(`{"kind":"joinRoom","data":"R"}`))
	}
	out.take("A")
	out.take("B")

	c.Handle(ctx, "A", []byte(`{"kind":"sendActive","data":{"roomId":"R","videoId":7}}`))
	if got := out.take("B"); len(got) != 1 || got[0] != `{"kind":"receiveActive","data":7}` {
		t.Errorf("B: unexpected frames %v", got)
	}
	if got := out.take("A"); len(got) != 0 {
		t.Errorf("A should not receive its own event, got %v", got)
	}
	if c.State("A") != StateJoined {
		t.Errorf("relay must not change state, got %s", c.State("A"))
	}
}

// TestMalformedDropped 测试格式错误的消息被静默丢弃
func TestMalformedDropped(t *testing.T) {
	c, _, out := newTestController()
	ctx := context.Background()
	for _, id := range []string{"A", "B"} {
		c.Connect(ctx, id)
		c.Handle(ctx, id, []byte(`{"kind":"joinRoom","data":"R"}`))
	}
	out.take("A")
	out.take("B")

	frames := []string{
		`{"kind":"sendActive","data":{"roomId":42,"videoId":7}}`,
		`{"kind":"sendVideos","data":{"roomId":"R"}}`,
		`garbage`,
		`{"kind":"noSuchEvent","data":{}}`,
		"{\"kind\":\"sendVideos\",\"data\":{\"roomId\":\"R\",\"playlist\":[\"\xff\xfe\"]}}",
	}
	for _, f := range frames {
		c.Handle(ctx, "A", []byte(f))
	}
	if got := out.take("A"); len(got) != 0 {
		t.Errorf("sender got an error response: %v", got)
	}
	if got := out.take("B"); len(got) != 0 {
		t.Errorf("malformed event was delivered: %v", got)
	}
}

func TestDuplicateJoinIsSilent(t *testing.T) {
	c, reg, out := newTestController()
	ctx := context.Background()
	c.Connect(ctx, "A")
	c.Handle(ctx, "A", []byte(`{"kind":"joinRoom","data":"R"}`))
	out.take("A")

	c.Handle(ctx, "A", []byte(`{"kind":"joinRoom","data":"R"}`))
	if got := out.take("A"); len(got) != 0 {
		t.Errorf("duplicate join should not broadcast, got %v", got)
	}
	if m, _ := reg.Members("R"); len(m) != 1 {
		t.Errorf("duplicate join changed members: %+v", m)
	}
}

func TestMultipleRooms(t *testing.T) {
	c, reg, out := newTestController()
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		c.Connect(ctx, id)
	}
	c.Handle(ctx, "A", []byte(`{"kind":"joinRoom","data":"R1"}`))
	c.Handle(ctx, "B", []byte(`{"kind":"joinRoom","data":"R1"}`))
	c.Handle(ctx, "A", []byte(`{"kind":"joinRoom","data":"R2"}`))
	c.Handle(ctx, "C", []byte(`{"kind":"joinRoom","data":"R2"}`))
	out.take("A")
	out.take("B")
	out.take("C")

	c.Handle(ctx, "A", []byte(`{"kind":"sendSync","data":{"roomId":"R2","data":{"time":1}}}`))
	if got := out.take("B"); len(got) != 0 {
		t.Errorf("event scoped to R2 leaked into R1: %v", got)
	}
	if got := out.take("C"); len(got) != 1 {
		t.Errorf("C should receive the sync push, got %v", got)
	}

	c.Disconnect(ctx, "A")
	for _, id := range []string{"B", "C"} {
		got := out.take(id)
		if len(got) != 1 {
			t.Fatalf("%s should receive one member list, got %v", id, got)
		}
		if m := membersOf(t, got[0]); len(m) != 1 || m[0].ID != id || !m[0].IsHost {
			t.Errorf("%s should be host of its room: %+v", id, m)
		}
	}
	if reg.RoomCount() != 2 {
		t.Errorf("expected 2 rooms, got %d", reg.RoomCount())
	}
}

func TestInitHandshake(t *testing.T) {
	c, _, out := newTestController()
	ctx := context.Background()
	for _, id := range []string{"A", "B"} {
		c.Connect(ctx, id)
		c.Handle(ctx, id, []byte(`{"kind":"joinRoom","data":"R"}`))
	}
	out.take("A")
	out.take("B")

	c.Handle(ctx, "B", []byte(`{"kind":"requestInit","data":"R"}`))
	if got := out.take("A"); len(got) != 1 || got[0] != `{"kind":"requestedInit","data":"B"}` {
		t.Fatalf("A: unexpected frames %v", got)
	}
	c.Handle(ctx, "A", []byte(`{"kind":"sendInit","data":{"uId":"B","data":{"playlist":[],"active":null}}}`))
	if got := out.take("B"); len(got) != 1 || got[0] != `{"kind":"receiveInit","data":{"playlist":[],"active":null}}` {
		t.Errorf("B: unexpected frames %v", got)
	}
}
