package hertzws

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"
	"github.com/rs/zerolog/log"

	"watchsync/internal/gateway"
)

// Handler WebSocket处理器
type Handler struct {
	gateway  *gateway.Gateway
	upgrader websocket.HertzUpgrader
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(gw *gateway.Gateway, origin string) *Handler {
	return &Handler{
		gateway: gw,
		upgrader: websocket.HertzUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(ctx *app.RequestContext) bool {
				return gateway.OriginAllowed(origin, string(ctx.GetHeader("Origin")))
			},
		},
	}
}

// HandleWebSocket 升级连接并交给网关，直到连接断开
func (h *Handler) HandleWebSocket(c context.Context, ctx *app.RequestContext) {
	err := h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		h.gateway.Serve(c, conn)
	})
	if err != nil {
		log.Warn().Err(err).Str("remote", ctx.RemoteAddr().String()).Msg("websocket upgrade failed")
	}
}
