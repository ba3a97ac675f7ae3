package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/reflection"

	"gosocial-messaging/internal/wire"
)

func main() {
	app, cleanup, err := wire.InitializeApplication()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer cleanup()

	cfg := app.Config
	logger := app.Logger

	server := &http.Server{
		Addr:           net.JoinHostPort(cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:        app.Router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	if cfg.Server.Environment != "production" {
		reflection.Register(app.GRPCServer)
	}
	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, cfg.Server.ChatServicePort))
	if err != nil {
		logger.Error("failed to listen", "port", cfg.Server.ChatServicePort, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", server.Addr, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server starting", "addr", lis.Addr().String())
		return app.GRPCServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		app.GRPCServer.GracefulStop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		cleanup()
		os.Exit(1)
	}
	logger.Info("server gracefully stopped")
}
