package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"starlane/engine/internal/config"
	httpapi "starlane/engine/internal/http"
	"starlane/engine/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Error("configuration invalid", logging.Error(err))
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		logging.L().Error("logger init failed", logging.Error(err))
		os.Exit(1)
	}

	broker, err := NewBroker(cfg, log)
	if err != nil {
		log.Error("broker init failed", logging.Error(err))
		os.Exit(1)
	}

	//1.- Wire the operational endpoints next to the websocket entry point.
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:      log,
		Readiness:   broker,
		Stats:       broker.Rooms().Stats,
		Snapshots:   broker.Rooms().SnapshotMetrics(),
		CommandGate: broker.Gate(),
		TickStats:   broker.Rooms().TickStats,
		Replay:      httpapi.ReplayDumperFunc(broker.Rooms().DumpReplay),
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(cfg.ReplayDumpWindow, cfg.ReplayDumpBurst, nil),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", broker.ServeWS)
	handlers.Register(mux)

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("listening", logging.String("url", listenerURL(cfg.Address, false)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", logging.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	//2.- Stop accepting traffic, then stop the room loops and flush replays.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", logging.Error(err))
	}
	broker.Close()
	log.Info("stopped")
}
