package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"watchsync/internal/catalog"
	"watchsync/internal/config"
	"watchsync/internal/gateway"
	"watchsync/internal/hertzapi"
	"watchsync/internal/httpapi"
	"watchsync/internal/metrics"
	"watchsync/internal/rooms"
	"watchsync/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Env != "dev" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	registry := rooms.NewRegistry()
	gw := gateway.New(gateway.Options{
		ReadLimit:  cfg.WS.ReadLimit,
		PingPeriod: cfg.WS.PingPeriod,
		PongWait:   cfg.WS.PongWait,
		WriteWait:  cfg.WS.WriteWait,
		SendBuffer: cfg.WS.SendBuffer,
	})
	gw.Attach(session.New(registry, gw))
	if err := metrics.RegisterRoomGauge(registry.RoomCount); err != nil {
		log.Warn().Err(err).Msg("room gauge not registered")
	}

	cat, closeCache, err := newCatalog(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create catalog client")
	}
	defer closeCache()

	g, gctx := errgroup.WithContext(ctx)
	switch cfg.Engine {
	case config.EngineEcho:
		srv := httpapi.NewServer(cat, gw, cfg.Origin)
		g.Go(func() error {
			log.Info().Str("addr", cfg.Addr()).Str("engine", cfg.Engine).Msg("server started")
			if err := srv.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdown(gw, srv.Shutdown)
		})
	default:
		h := hertzapi.NewRouter(server.Default(server.WithHostPorts(cfg.Addr())), cat, gw, cfg.Origin)
		g.Go(func() error {
			log.Info().Str("addr", cfg.Addr()).Str("engine", cfg.Engine).Msg("server started")
			return h.Run()
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdown(gw, h.Shutdown)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped")
}

func shutdown(gw *gateway.Gateway, stop func(context.Context) error) error {
	log.Info().Msg("shutting down")
	gw.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return stop(ctx)
}

// newCatalog prefers the shared redis cache and falls back to process memory
// when redis is not configured or unreachable.
func newCatalog(ctx context.Context, cfg *config.Config) (*catalog.Client, func(), error) {
	var cache catalog.Cache = catalog.NewMemoryCache()
	closeCache := func() {}
	if cfg.Redis.Addr != "" {
		rc, err := catalog.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, using memory cache")
		} else {
			cache = rc
			closeCache = func() { _ = rc.Close() }
		}
	}
	cat, err := catalog.NewClient(cfg.Catalog, cache)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return cat, closeCache, nil
}
