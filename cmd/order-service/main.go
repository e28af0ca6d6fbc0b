package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jcmexdev/resilient-orders/internal/coordinator/sagalog"
	"github.com/jcmexdev/resilient-orders/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/resilient-orders/internal/metrics"
	"github.com/jcmexdev/resilient-orders/internal/order-service/app"
	"github.com/jcmexdev/resilient-orders/internal/order-service/infra/httpx"
	"github.com/jcmexdev/resilient-orders/internal/pkg/config"
	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/resilient-orders/internal/pkg/telemetry"
	"github.com/jcmexdev/resilient-orders/internal/resilience"
	inventoryv1 "github.com/jcmexdev/resilient-orders/internal/rpc/inventory/v1"
	paymentv1 "github.com/jcmexdev/resilient-orders/internal/rpc/payment/v1"
)

func main() {
	cfg, err := config.LoadOrderService()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("order service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.OrderService, logger *slog.Logger) error {
	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	meterProvider, shutdownMeter, err := telemetry.SetupMeter(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMeter(shutdownCtx); err != nil {
			logger.Error("meter shutdown error", "error", err)
		}
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	otelSink, err := metrics.NewOTel(meterProvider.Meter("github.com/jcmexdev/resilient-orders"), cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	sink := metrics.Multi{metrics.NewPrometheus(registry, cfg.Telemetry.ServiceName), otelSink}

	inventoryConn, err := dial(cfg.Inventory.Addr)
	if err != nil {
		return err
	}
	defer inventoryConn.Close()

	paymentConn, err := dial(cfg.Payment.Addr)
	if err != nil {
		return err
	}
	defer paymentConn.Close()

	opts := []app.Option{app.WithSink(sink), app.WithLogger(logger)}
	switch cfg.Journal.Path {
	case "":
	case config.JournalInMemory:
		opts = append(opts, app.WithJournal(sagalog.NewMemory()))
		logger.Info("saga journal enabled", "path", cfg.Journal.Path)
	default:
		journal, err := sqlite.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer journal.Close()
		opts = append(opts, app.WithJournal(journal))
		logger.Info("saga journal enabled", "path", cfg.Journal.Path)
	}

	svc := app.NewOrderService(
		app.NewRegistry(),
		newDependency(app.DependencyInventory, cfg.Inventory, sink, logger),
		inventoryv1.NewInventoryClient(inventoryConn),
		newDependency(app.DependencyPayment, cfg.Payment, sink, logger),
		paymentv1.NewPaymentClient(paymentConn),
		opts...,
	)

	router := httpx.NewRouter(
		httpx.NewHandler(svc, logger),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		metrics.NewHTTP(registry, cfg.Telemetry.ServiceName).Middleware,
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           otelhttp.NewHandler(router, cfg.Telemetry.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()

	logger.Info("order service HTTP running",
		"addr", srv.Addr,
		"inventory", cfg.Inventory.Addr,
		"payment", cfg.Payment.Addr,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func newDependency(name string, cfg config.Dependency, sink metrics.Sink, logger *slog.Logger) *resilience.Dependency {
	return resilience.NewDependency(name,
		resilience.NewBulkhead(name+"-bulkhead", name, cfg.Bulkhead,
			resilience.WithBulkheadSink(sink),
			resilience.WithBulkheadLogger(logger),
		),
		resilience.NewBreaker(name+"-circuit", name, cfg.Breaker,
			resilience.WithBreakerSink(sink),
			resilience.WithBreakerLogger(logger),
		),
		cfg.CallTimeout,
	)
}

func dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(interceptors.UnaryClientInterceptor()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
