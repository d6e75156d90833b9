// Command plaze-server starts the Plaze authentication API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/and161185/plaze/internal/config"
	pkgcrypto "github.com/and161185/plaze/internal/crypto"
	"github.com/and161185/plaze/internal/logging"
	"github.com/and161185/plaze/internal/notify"
	"github.com/and161185/plaze/internal/recovery"
	"github.com/and161185/plaze/internal/revocation"
	grpcserver "github.com/and161185/plaze/internal/server/grpc"
	httpserver "github.com/and161185/plaze/internal/server/http"
	"github.com/and161185/plaze/internal/service"
	"github.com/and161185/plaze/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// a missing .env is fine, real environment variables still apply
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:    "plaze-server",
		Usage:   "Start the Plaze authentication API",
		Version: fmt.Sprintf("%s (%s)", version, buildDate),
		Flags:   config.Flags(),
		Action:  run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// run wires the store, services and both listeners, then blocks until a signal.
func run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("database", cfg.Database.Driver),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	codec, err := token.NewCodec(token.Config{
		Secret:    []byte(cfg.JWT.Secret),
		Algorithm: cfg.JWT.Algorithm,
		TTL:       cfg.JWT.TTL,
	})
	if err != nil {
		return err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	jobs := notify.NewDispatcher(logger.Named("mail"), cfg.Mail.Workers, cfg.Mail.Queue, cfg.Mail.Timeout)

	deps := service.Deps{
		Store:            store,
		Hasher:           pkgcrypto.NewHasher(pkgcrypto.DefaultParams),
		Codec:            codec,
		Revoked:          revocation.New(),
		Links:            recovery.NewManager(store, cfg.Recovery.FrontendURL, cfg.Recovery.LinkTTL, nil),
		Notifier:         notifier,
		Jobs:             jobs,
		Log:              logger,
		HideUnknownEmail: cfg.Recovery.HideUnknownEmail,
	}
	authSvc := service.NewAuthService(deps)
	accountSvc := service.NewAccountService(deps)

	e := httpserver.New(httpserver.Options{
		MaxBodySize: cfg.Server.MaxBodySize,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, authSvc, accountSvc, store, logger.Named("http"))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr()))
		if err := e.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Health (gRPC)
	var stopOps func()
	if cfg.Server.HealthAddr != "" {
		gs, hs := grpcserver.NewOpsServer(logger.Named("grpc"), cfg.Server.Reflection)
		lis, err := net.Listen("tcp", cfg.Server.HealthAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.HealthAddr, err)
		}
		go grpcserver.WatchStore(ctx, hs, store, 5*time.Second, logger.Named("health"))
		go func() {
			logger.Info("health listening", zap.String("addr", cfg.Server.HealthAddr))
			errCh <- gs.Serve(lis)
		}()
		stopOps = func() {
			done := make(chan struct{})
			go func() {
				gs.GracefulStop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				gs.Stop()
			}
		}
	}

	// Wait for stop
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if stopOps != nil {
		stopOps()
	}
	if err := jobs.Close(shutdownCtx); err != nil {
		logger.Warn("pending emails dropped", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return runErr
}
