package protocol

import (
	"encoding/json"
)

// Inbound event kinds.
const (
	KindJoinRoom         = "joinRoom"
	KindSendVideos       = "sendVideos"
	KindSendDelete       = "sendDelete"
	KindSendActive       = "sendActive"
	KindSendTorrent      = "sendTorrent"
	KindRequestTorrent   = "requestTorrent"
	KindRequestTorrentID = "requestTorrentId"
	KindSendTorrentID    = "sendTorrentId"
	KindSendSync         = "sendSync"
	KindRequestSync      = "requestSync"
	KindSendSyncID       = "sendSyncId"
	KindRequestInit      = "requestInit"
	KindSendInit         = "sendInit"
)

// Outbound event kinds. Targeted replies share the name of their room
// broadcast counterpart so existing clients keep working.
const (
	KindSendUsers            = "sendUsers"
	KindReceiveVideos        = "receiveVideos"
	KindReceiveDelete        = "receiveDelete"
	KindReceiveActive        = "receiveActive"
	KindReceiveTorrent       = "receiveTorrent"
	KindSendRequestTorrent   = "sendRequestTorrent"
	KindSendRequestTorrentID = "sendRequestTorrentId"
	KindReceiveSync          = "receiveSync"
	KindSendRequestSync      = "sendRequestSync"
	KindRequestedInit        = "requestedInit"
	KindReceiveInit          = "receiveInit"
)

type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"host"`
}

type Envelope struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data,omitempty"`
}

type InboundEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TorrentRequest struct {
	RequesterID string          `json:"uId"`
	ItemID      json.RawMessage `json:"videoId"`
}

// Encode marshals an outbound envelope into a single text frame.
func Encode(kind string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Kind: kind, Data: data})
}
