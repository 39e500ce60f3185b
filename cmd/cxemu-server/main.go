package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/glinharesb/cxemu/internal/audit"
	"github.com/glinharesb/cxemu/internal/config"
	"github.com/glinharesb/cxemu/internal/crypto"
	"github.com/glinharesb/cxemu/internal/hsm"
	"github.com/glinharesb/cxemu/internal/interceptor"
	"github.com/glinharesb/cxemu/internal/keystore"
	"github.com/glinharesb/cxemu/internal/server"
)

func openStore(cfg config.Config, seed []byte) (keystore.Store, error) {
	if cfg.DataDir == "" {
		slog.Info("using in-memory store")
		return keystore.NewMemoryStore(), nil
	}
	sealer, err := crypto.NewSealer(seed)
	if err != nil {
		return nil, err
	}
	ps, err := keystore.NewPersistentStore(filepath.Join(cfg.DataDir, "keys.json"), sealer)
	if err != nil {
		return nil, err
	}
	slog.Info("using persistent store", "path", cfg.DataDir)
	return ps, nil
}

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg, os.Stdout)
	stop()
	if err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is done. Startup errors are returned so that deferred
// cleanup, the audit flush in particular, still runs.
func run(ctx context.Context, cfg config.Config, auditOut io.Writer) error {
	seed, err := cfg.LoadSeed()
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}

	auditLogger := audit.NewLogger(cfg.AuditBuffer, auditOut)
	defer auditLogger.Close()

	store, err := openStore(cfg, seed)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	provider := hsm.NewSoftwareHSM(seed, nil)

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			interceptor.RecoveryUnary(),
			interceptor.LoggingUnary(),
			interceptor.RateLimitUnary(cfg.RateLimitRPS),
			interceptor.AuthUnary(cfg.AuthToken),
			interceptor.ErrorsUnary(),
		),
		grpc.ChainStreamInterceptor(
			interceptor.RecoveryStream(),
			interceptor.LoggingStream(),
			interceptor.RateLimitStream(cfg.RateLimitRPS),
			interceptor.AuthStream(cfg.AuthToken),
			interceptor.ErrorsStream(),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	srv := grpc.NewServer(opts...)

	server.Register(srv, server.New(store, provider, auditLogger))
	reflection.Register(srv)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		slog.Info("server starting", "addr", lis.Addr().String(), "service", server.ServiceName, "tls", cfg.TLSCert != "")
		if err := srv.Serve(lis); err != nil {
			slog.Error("serve", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		slog.Warn("graceful shutdown timed out, forcing stop")
		srv.Stop()
	}
	return nil
}
