package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/broadcast"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/config"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/directory"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/httpapi"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/hub"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/logging"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/metrics"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/store"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/tick"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		Development: !cfg.Production(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	m := metrics.New()
	gw := broadcast.NewGateway(cfg.OutboxSize, log, m)
	dir := directory.New(m)

	// The writer outlives the hub so records queued during shutdown land.
	writer := store.NewWriter(st, 256, log, m)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run(writerCtx) }()
	defer func() {
		stopWriter()
		err = multierr.Append(err, <-writerDone)
	}()

	h := hub.NewHub(context.Background(), hub.Options{
		Rooms:       gw,
		Bindings:    dir,
		Records:     writer,
		Rules:       rules(cfg),
		Logger:      log,
		Metrics:     m,
		IdleTimeout: cfg.IdleTimeout,
	})

	loop := tick.NewLoop(tick.Interval(cfg.TickRate), tick.Adapt(h), log, m)
	wsh := ws.NewHandler(ws.Options{
		Registry:       h,
		Gateway:        gw,
		Directory:      dir,
		Logger:         log,
		OriginPatterns: cfg.OriginPatterns(),
		Insecure:       !cfg.Production(),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(httpapi.Deps{Hub: h, WS: wsh, Metrics: m, Logger: log}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	if cfg.IdleTimeout > 0 {
		g.Go(func() error { return h.RunSweeper(gctx, cfg.SweepInterval) })
	}
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.Int("tick_rate", cfg.TickRate))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(srv.Shutdown(sctx), h.Shutdown(sctx))
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set, keeping session records in memory")
		return store.NewMemoryStore(), nil
	}
	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	st, err := store.OpenPostgres(octx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("using postgres session store")
	return st, nil
}

func rules(cfg *config.Config) engine.Rules {
	r := engine.Rules{Effects: engine.NoEffects{}}
	if cfg.AbilityEffects == config.EffectsDirect {
		r.Effects = engine.DirectEffects{}
	}
	return r
}
