package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"watchsync/internal/gateway"
)

type Handler struct {
	gateway  *gateway.Gateway
	upgrader websocket.Upgrader
}

func NewHandler(gw *gateway.Gateway, origin string) *Handler {
	return &Handler{
		gateway: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return gateway.OriginAllowed(origin, r.Header.Get("Origin"))
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	h.gateway.Serve(r.Context(), conn)
}
