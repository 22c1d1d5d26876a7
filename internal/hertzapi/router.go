package hertzapi

import (
	"context"
	"net/http"

	"github.com/RanFeng/ilog"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog/log"

	"watchsync/internal/catalog"
	"watchsync/internal/gateway"
	"watchsync/internal/hertzws"
	"watchsync/internal/metrics"
	"watchsync/internal/protocol"
)

// Catalog is the content-catalog collaborator behind /api.
type Catalog interface {
	Search(ctx context.Context, query string) ([]byte, error)
	Episodes(ctx context.Context, id string) ([]byte, error)
	Sources(ctx context.Context, episodeID string) ([]byte, error)
}

// NewRouter 初始化Hertz路由
func NewRouter(h *server.Hertz, cat Catalog, gw *gateway.Gateway, origin string) *server.Hertz {
	wsHandler := hertzws.NewHandler(gw, origin)

	h.Use(recoveryMiddleware())
	h.Use(corsMiddleware(origin))

	h.GET("/healthz", func(c context.Context, ctx *app.RequestContext) {
		ctx.String(consts.StatusOK, "ok")
	})
	h.GET("/metrics", wrapHTTP(metrics.Handler()))

	api := h.Group("/api")
	{
		api.GET("/search", handleCatalog("search", "query", cat.Search))
		api.GET("/episodes", handleCatalog("episodes", "id", cat.Episodes))
		api.GET("/episode", handleCatalog("episode", "id", cat.Sources))
	}

	h.GET("/ws", wsHandler.HandleWebSocket)

	h.NoRoute(func(c context.Context, ctx *app.RequestContext) {
		ctx.String(consts.StatusNotFound, "Wrong api path")
	})

	return h
}

// wrapHTTP 将net/http处理器适配为Hertz处理函数
func wrapHTTP(handler http.Handler) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		req, err := adaptor.GetCompatRequest(&ctx.Request)
		if err != nil {
			ctx.String(consts.StatusInternalServerError, err.Error())
			return
		}
		handler.ServeHTTP(adaptor.GetCompatResponseWriter(&ctx.Response), req.WithContext(c))
	}
}

// recoveryMiddleware 恢复中间件
func recoveryMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", string(ctx.Path())).Msg("handler panicked")
				ctx.String(consts.StatusInternalServerError, "Internal Server Error")
			}
		}()
		ctx.Next(c)
	}
}

// corsMiddleware 跨域中间件
func corsMiddleware(origin string) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
		ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST")
		if string(ctx.Method()) == consts.MethodOptions {
			ctx.AbortWithStatus(consts.StatusNoContent)
			return
		}
		ctx.Next(c)
	}
}

// handleCatalog 目录代理处理函数，原样返回上游响应
func handleCatalog(endpoint, param string, fetch func(context.Context, string) ([]byte, error)) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		arg := ctx.Query(param)
		ilog.EventInfo(c, "catalog_"+endpoint, param, arg)

		body, err := fetch(c, arg)
		if err != nil {
			status, code := catalog.Status(err)
			metrics.CatalogRequests.WithLabelValues(endpoint, code).Inc()
			respondError(ctx, status, code, err.Error())
			return
		}
		metrics.CatalogRequests.WithLabelValues(endpoint, "ok").Inc()
		ctx.Data(consts.StatusOK, "application/json; charset=utf-8", body)
	}
}

// respondError 返回错误响应
func respondError(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, protocol.Envelope{
		Kind: "ERROR",
		Data: protocol.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}
