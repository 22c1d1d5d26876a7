package httpapi

import (
	"context"
	"net/http"

	"github.com/RanFeng/ilog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"watchsync/internal/catalog"
	"watchsync/internal/gateway"
	"watchsync/internal/metrics"
	"watchsync/internal/protocol"
	"watchsync/internal/ws"
)

type Catalog interface {
	Search(ctx context.Context, query string) ([]byte, error)
	Episodes(ctx context.Context, id string) ([]byte, error)
	Sources(ctx context.Context, episodeID string) ([]byte, error)
}

// Server is the echo rendition of the HTTP surface, selected with engine: echo.
type Server struct {
	catalog Catalog
	ws      *ws.Handler
	router  *echo.Echo
}

func NewServer(cat Catalog, gw *gateway.Gateway, origin string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{origin},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))

	server := &Server{
		catalog: cat,
		ws:      ws.NewHandler(gw, origin),
		router:  e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.GET("/api/search", server.handleCatalog("search", "query", cat.Search))
	e.GET("/api/episodes", server.handleCatalog("episodes", "id", cat.Episodes))
	e.GET("/api/episode", server.handleCatalog("episode", "id", cat.Sources))
	e.GET("/ws", server.handleWebSocket)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.String(http.StatusNotFound, "Wrong api path")
	})

	return server
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start(addr string) error {
	return s.router.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}

func (s *Server) handleCatalog(endpoint, param string, fetch func(context.Context, string) ([]byte, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		arg := c.QueryParam(param)
		ilog.EventInfo(ctx, "catalog_"+endpoint, param, arg)

		body, err := fetch(ctx, arg)
		if err != nil {
			status, code := catalog.Status(err)
			metrics.CatalogRequests.WithLabelValues(endpoint, code).Inc()
			return respondError(c, status, code, err.Error())
		}
		metrics.CatalogRequests.WithLabelValues(endpoint, "ok").Inc()
		return c.JSONBlob(http.StatusOK, body)
	}
}

func (s *Server) handleWebSocket(c echo.Context) error {
	// The websocket handler takes over the connection; echo must not write.
	s.ws.ServeHTTP(c.Response(), c.Request())
	return nil
}

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, protocol.Envelope{
		Kind: "ERROR",
		Data: protocol.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}
