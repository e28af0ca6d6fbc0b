package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	paymentservice "github.com/jcmexdev/resilient-orders/internal/payment-service/app"
	"github.com/jcmexdev/resilient-orders/internal/metrics"
	"github.com/jcmexdev/resilient-orders/internal/pkg/cache"
	"github.com/jcmexdev/resilient-orders/internal/pkg/chaos"
	"github.com/jcmexdev/resilient-orders/internal/pkg/config"
	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/resilient-orders/internal/pkg/telemetry"
	paymentv1 "github.com/jcmexdev/resilient-orders/internal/rpc/payment/v1"
)

func main() {
	cfg, err := config.LoadPayment()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("payment service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Payment, logger *slog.Logger) error {
	shutdown, err := telemetry.SetupTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.GRPCPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	limit, err := cfg.MaxAmountLimit()
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	backend := metrics.NewBackend(registry)

	ctrl := chaos.New(cfg.Telemetry.ServiceName, cfg.Chaos.Profile(),
		chaos.WithLogger(logger),
		chaos.WithRecorder(backend),
	)

	opts := []paymentservice.Option{
		paymentservice.WithChaos(ctrl),
		paymentservice.WithMaxAmount(limit),
		paymentservice.WithAmountRecorder(backend),
		paymentservice.WithLogger(logger),
	}
	if cfg.Redis.Addr != "" {
		opts = append(opts, paymentservice.WithCache(cache.NewRedisCache(cfg.Redis.Addr, "payment"), cfg.Redis.TTL))
		logger.Info("charge idempotency cache enabled", "redis", cfg.Redis.Addr)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(interceptors.TraceServerInterceptor(logger)),
	)
	paymentv1.RegisterPaymentServer(grpcServer, paymentservice.NewServer(opts...))

	adminRouter := chaos.NewRouter(ctrl,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		metrics.NewHTTP(registry, cfg.Telemetry.ServiceName).Middleware,
	)
	admin := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           adminRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("payment service gRPC running", "addr", addr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("payment chaos admin running", "addr", admin.Addr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return admin.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
