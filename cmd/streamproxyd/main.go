// Command streamproxyd runs the streaming proxy: it loads configuration,
// wires the upstream client, the object store, and the relational store
// together behind the play orchestrator, and serves the HTTP surface
// until told to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/deezer-stream/streamproxy/internal/config"
	"github.com/deezer-stream/streamproxy/internal/deezer"
	"github.com/deezer-stream/streamproxy/internal/httpapi"
	"github.com/deezer-stream/streamproxy/internal/logging"
	"github.com/deezer-stream/streamproxy/internal/network"
	"github.com/deezer-stream/streamproxy/internal/objstore"
	"github.com/deezer-stream/streamproxy/internal/play"
	"github.com/deezer-stream/streamproxy/internal/relstore"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional; env vars and defaults still apply)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	relStore, err := relstore.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("connecting to relational store", zap.Error(err))
		return err
	}
	defer relStore.Close()

	objStore, err := objstore.New(ctx, objstore.Config{
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		Bucket:    cfg.ObjectStore.Bucket,
		UseSSL:    cfg.ObjectStore.UseSSL,
	})
	if err != nil {
		logger.Error("connecting to object store", zap.Error(err))
		return err
	}

	tokens := deezer.NewTokenManager()
	client, err := deezer.NewClient(cfg.Deezer.ARL, tokens, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	if err != nil {
		logger.Error("constructing upstream client", zap.Error(err))
		return err
	}
	tokens.SetCaller(client)
	resolver := deezer.NewResolver(client, tokens)

	streamHTTP := network.NewStreamingClient(client.Jar())
	orchestrator := play.New(objStore, relStore, resolver, streamHTTP)

	server := httpapi.New(resolver, orchestrator, relStore, relStore, objStore, streamHTTP, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.BindAddress,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: 0, // streaming responses must not be cut off mid-flight
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownGrace)*time.Second)
		defer cancel()
		logger.Info("shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.Server.BindAddress))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	return nil
}
