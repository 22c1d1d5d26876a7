package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeValid(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  Event
	}{
		{"join bare", `{"kind":"joinRoom","data":"R"}`, Join{RoomID: "R"}},
		{"join object", `{"kind":"joinRoom","data":{"roomId":"R","name":"Alice"}}`, Join{RoomID: "R", Name: "Alice"}},
		{"request torrent", `{"kind":"requestTorrent","data":{"roomId":"R"}}`, MetadataRequest{RoomID: "R"}},
		{"request sync", `{"kind":"requestSync","data":{"roomId":"R"}}`, SyncRequest{RoomID: "R"}},
		{"request init", `{"kind":"requestInit","data":"R"}`, InitRequest{RoomID: "R"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.frame))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestDecodePayloadPassthrough(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"sendVideos","data":{"roomId":"R","playlist":[{"id":1,"url":"u"}]}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	push, ok := ev.(PlaylistPush)
	if !ok {
		t.Fatalf("expected PlaylistPush, got %T", ev)
	}
	kind, data := push.Outbound("A")
	if kind != KindReceiveVideos {
		t.Errorf("kind mismatch: %s", kind)
	}
	if string(data.(json.RawMessage)) != `[{"id":1,"url":"u"}]` {
		t.Errorf("playlist altered: %s", data)
	}

	ev, err = Decode([]byte(`{"kind":"sendActive","data":{"roomId":"R","videoId":7}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	frame, err := Encode(ev.(RoomEvent).Outbound("A"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(frame) != `{"kind":"receiveActive","data":7}` {
		t.Errorf("unexpected frame %s", frame)
	}
}

func TestDecodeTargetedRequestCarriesRequester(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"requestTorrentId","data":{"roomId":"R","videoId":3}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	frame, err := Encode(ev.(RoomEvent).Outbound("conn-A"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(frame) != `{"kind":"sendRequestTorrentId","data":{"uId":"conn-A","videoId":3}}` {
		t.Errorf("unexpected frame %s", frame)
	}

	ev, err = Decode([]byte(`{"kind":"sendSyncId","data":{"uId":"conn-B","data":{"time":12.5,"paused":false}}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	reply, ok := ev.(DirectEvent)
	if !ok || reply.Target() != "conn-B" {
		t.Fatalf("expected direct event to conn-B, got %#v", ev)
	}
	if kind, _ := reply.Outbound(); kind != KindReceiveSync {
		t.Errorf("targeted sync reply should reuse %s, got %s", KindReceiveSync, kind)
	}
}

func TestDecodeMalformed(t *testing.T) {
	frames := []string{
		`not json`,
		`{"data":{}}`,
		`{"kind":"joinRoom","data":7}`,
		`{"kind":"joinRoom","data":""}`,
		`{"kind":"sendVideos","data":{"roomId":1,"playlist":[]}}`,
		`{"kind":"sendVideos","data":{"roomId":"R","playlist":"x"}}`,
		`{"kind":"sendVideos","data":{"roomId":"R","playlist":null}}`,
		`{"kind":"sendDelete","data":{"roomId":"R","videoId":"7"}}`,
		`{"kind":"sendActive","data":{"roomId":"R"}}`,
		`{"kind":"sendTorrent","data":{}}`,
		`{"kind":"requestTorrentId","data":{"roomId":"R","videoId":true}}`,
		`{"kind":"sendTorrentId","data":{"uId":"B","data":"str"}}`,
		`{"kind":"sendSync","data":{"roomId":"R","data":1}}`,
		`{"kind":"sendSyncId","data":{"uId":5,"data":{}}}`,
		`{"kind":"requestSync","data":"R"}`,
		`{"kind":"requestInit","data":{"roomId":"R"}}`,
		`{"kind":"sendInit","data":{"data":{}}}`,
		"{\"kind\":\"sendVideos\",\"data\":{\"roomId\":\"R\",\"playlist\":[\"\xff\xfe\"]}}",
		"{\"kind\":\"joinRoom\",\"data\":\"R\xc3\"}",
	}
	for _, frame := range frames {
		if _, err := Decode([]byte(frame)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", frame, err)
		}
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode([]byte(`{"kind":"explode","data":{"roomId":"R"}}`)); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}
