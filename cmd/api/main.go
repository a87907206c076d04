package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "athena-query-scheduler/internal/api"
	"athena-query-scheduler/internal/config"
	"athena-query-scheduler/internal/logger"
	"athena-query-scheduler/internal/ratelimit"
	"athena-query-scheduler/internal/runner"
)

func main() {
	cfg := config.Load()

	log, closer, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, deps, err := runner.FromConfig(ctx, cfg, log)
	if err != nil {
		log.Error("configure runner", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	var limiter api.Limiter
	if bucket := ratelimit.FromConfig(cfg, "api"); bucket != nil {
		defer bucket.Close()
		limiter = bucket
	}
	var runs api.RunStore
	if deps.Store != nil {
		runs = deps.Store
	}

	server := api.New(ctx, svc, runs, limiter, log.With("component", "api"))
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("api listening", "port", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	server.Wait()
}
