// Command claimd serves the verification-session API that awclaim talks to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/awclaim/internal/config"
	pkgcrypto "github.com/and161185/awclaim/internal/crypto"
	"github.com/and161185/awclaim/internal/limiter"
	"github.com/and161185/awclaim/internal/logging"
	"github.com/and161185/awclaim/internal/migrate"
	"github.com/and161185/awclaim/internal/repository"
	"github.com/and161185/awclaim/internal/repository/memory"
	"github.com/and161185/awclaim/internal/repository/postgres"
	"github.com/and161185/awclaim/internal/server/httpapi"
	"github.com/and161185/awclaim/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	shutdownGrace = 5 * time.Second
	maintainEvery = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], nil); err != nil {
		fmt.Fprintln(os.Stderr, "claimd:", err)
		os.Exit(1)
	}
}

// listening is called once both listeners are bound. Used by tests.
type listening func(httpAddr, healthAddr string)

// backend bundles the storage chosen at startup.
type backend struct {
	sessions repository.SessionRepository
	lim      limiter.Limiter
	health   httpapi.Pinger // nil for the in-memory store
	sweep    func(now time.Time) int
	close    func()
}

func run(ctx context.Context, args []string, ready listening) error {
	cfg, err := config.LoadServer(flag.NewFlagSet("claimd", flag.ContinueOnError), args)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	receiptKey, ipKey, err := keys(cfg, logger)
	if err != nil {
		return err
	}
	ips, err := pkgcrypto.NewIPHasher(ipKey)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	be, err := openBackend(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer be.close()

	// Services
	claims := service.NewClaimService(service.Config{
		Sessions:   be.sessions,
		Limiter:    be.lim,
		IPs:        ips,
		Clock:      clock,
		Logger:     logger,
		ReceiptKey: receiptKey,
		SessionTTL: cfg.SessionTTL,
		ReceiptTTL: cfg.ReceiptTTL,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	api := httpapi.New(claims, httpapi.Options{
		Logger:     logger,
		Metrics:    httpapi.NewMetrics(reg),
		Gatherer:   reg,
		Health:     be.health,
		TrustProxy: cfg.TrustProxy,
	})

	// Listen
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	httpSrv := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}

	// Health (gRPC) & reflection (dev)
	hs := health.NewServer()
	var (
		gs        *grpc.Server
		healthLis net.Listener
	)
	if cfg.HealthAddr != "" {
		healthLis, err = net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			_ = lis.Close()
			return fmt.Errorf("listen health: %w", err)
		}
		gs = grpc.NewServer()
		healthpb.RegisterHealthServer(gs, hs)
		if cfg.Dev {
			reflection.Register(gs)
		}
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", lis.Addr().String()))
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	healthAddr := ""
	if gs != nil {
		healthAddr = healthLis.Addr().String()
		go func() {
			logger.Info("health listening", zap.String("addr", healthAddr))
			if err := gs.Serve(healthLis); err != nil {
				errCh <- err
			}
		}()
	}

	mctx, cancelMaintain := context.WithCancel(ctx)
	defer cancelMaintain()
	go maintain(mctx, clock, maintainEvery, be, hs, logger)

	if ready != nil {
		ready(lis.Addr().String(), healthAddr)
	}

	// Wait for stop
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	hs.Shutdown()
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if gs != nil {
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutCtx.Done():
			gs.Stop()
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

// keys returns the receipt and ip hash keys, generating throwaway ones in dev mode.
func keys(cfg *config.Server, log *zap.Logger) (receipt, ip []byte, err error) {
	receipt, ip = []byte(cfg.ReceiptKey), []byte(cfg.IPHashKey)
	if len(receipt) == 0 {
		if receipt, err = pkgcrypto.RandBytes(32); err != nil {
			return nil, nil, err
		}
		log.Warn("using a random receipt key; receipts will not verify after restart")
	}
	if len(ip) == 0 {
		if ip, err = pkgcrypto.RandBytes(32); err != nil {
			return nil, nil, err
		}
		log.Warn("using a random ip hash key; pending-claim matching resets on restart")
	}
	return receipt, ip, nil
}

// openBackend picks PostgreSQL when a DSN is configured, else the in-memory store.
func openBackend(ctx context.Context, cfg *config.Server, clock clockwork.Clock, log *zap.Logger) (*backend, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("no DATABASE_URL; using in-memory store")
		store := memory.NewSessionStore()
		return &backend{
			sessions: store,
			lim:      limiter.NewMemory(clock, cfg.LimitWindow, cfg.LimitMaxFails, cfg.LimitBlockFor),
			sweep:    store.Sweep,
			close:    func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool, _ := db.Raw()
	return &backend{
		sessions: postgres.NewSessionRepo(db),
		lim:      limiter.NewPG(pool, cfg.LimitWindow, cfg.LimitMaxFails, cfg.LimitBlockFor),
		health:   db,
		close:    db.Close,
	}, nil
}

// maintain keeps the gRPC health status in step with the database and sweeps the memory store.
func maintain(ctx context.Context, clock clockwork.Clock, every time.Duration, be *backend, hs *health.Server, log *zap.Logger) {
	check := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if be.health != nil {
			if err := be.health.Ping(ctx); err != nil {
				log.Warn("database ping failed", zap.Error(err))
				st = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		hs.SetServingStatus("", st)
		if be.sweep != nil {
			if n := be.sweep(clock.Now()); n > 0 {
				log.Debug("swept expired sessions", zap.Int("count", n))
			}
		}
	}

	check()
	t := clock.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			check()
		}
	}
}
