// Package config loads service settings from defaults and environment
// variables. Nested keys map to upper-case variables with dots replaced by
// underscores: inventory.bulkhead.capacity is INVENTORY_BULKHEAD_CAPACITY.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/jcmexdev/resilient-orders/internal/pkg/chaos"
	"github.com/jcmexdev/resilient-orders/internal/resilience"
)

// Telemetry configures logging and trace export.
type Telemetry struct {
	ServiceName string  `mapstructure:"service_name"`
	LogLevel    string  `mapstructure:"log_level"`
	Endpoint    string  `mapstructure:"endpoint"`
	Environment string  `mapstructure:"environment"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Dependency is the address and guard settings of one downstream service.
type Dependency struct {
	Addr        string                    `mapstructure:"addr"`
	CallTimeout time.Duration             `mapstructure:"call_timeout"`
	Bulkhead    resilience.BulkheadConfig `mapstructure:"bulkhead"`
	Breaker     resilience.BreakerConfig  `mapstructure:"breaker"`
}

// JournalInMemory keeps the saga journal in process memory instead of SQLite.
const JournalInMemory = ":memory:"

type Journal struct {
	// Path of the SQLite journal, or JournalInMemory. Empty disables the
	// journal.
	Path string `mapstructure:"path"`
}

type OrderService struct {
	HTTPPort  int        `mapstructure:"http_port"`
	Telemetry Telemetry  `mapstructure:"otel"`
	Journal   Journal    `mapstructure:"journal"`
	Inventory Dependency `mapstructure:"inventory"`
	Payment   Dependency `mapstructure:"payment"`
}

type Chaos struct {
	FailureRate float64       `mapstructure:"failure_rate"`
	SlowMin     time.Duration `mapstructure:"slow_min"`
	SlowMax     time.Duration `mapstructure:"slow_max"`
}

func (c Chaos) Profile() chaos.Profile {
	return chaos.Profile{FailureRate: c.FailureRate, SlowMin: c.SlowMin, SlowMax: c.SlowMax}
}

type Inventory struct {
	GRPCPort  int       `mapstructure:"grpc_port"`
	HTTPPort  int       `mapstructure:"http_port"`
	Telemetry Telemetry `mapstructure:"otel"`
	Chaos     Chaos     `mapstructure:"chaos"`
}

type Redis struct {
	// Addr of the idempotency cache. Empty disables caching.
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type Payment struct {
	GRPCPort  int       `mapstructure:"grpc_port"`
	HTTPPort  int       `mapstructure:"http_port"`
	Telemetry Telemetry `mapstructure:"otel"`
	Chaos     Chaos     `mapstructure:"chaos"`
	Redis     Redis     `mapstructure:"redis"`
	MaxAmount string    `mapstructure:"max_amount"`
}

// MaxAmountLimit parses MaxAmount. Zero means no limit.
func (p Payment) MaxAmountLimit() (decimal.Decimal, error) {
	if strings.TrimSpace(p.MaxAmount) == "" {
		return decimal.Zero, nil
	}
	limit, err := decimal.NewFromString(p.MaxAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: max_amount: %w", err)
	}
	if limit.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: max_amount must not be negative, got %s", p.MaxAmount)
	}
	return limit, nil
}

func LoadOrderService() (OrderService, error) {
	v := newViper()
	setTelemetryDefaults(v, "order-service")
	v.SetDefault("http_port", 8080)
	v.SetDefault("journal.path", "")
	setDependencyDefaults(v, "inventory", "localhost:50051", resilience.DefaultCallTimeout)
	setDependencyDefaults(v, "payment", "localhost:50052", resilience.SlowCallTimeout)

	var cfg OrderService
	if err := v.Unmarshal(&cfg); err != nil {
		return OrderService{}, fmt.Errorf("config: order-service: %w", err)
	}
	return cfg, nil
}

func LoadInventory() (Inventory, error) {
	v := newViper()
	setTelemetryDefaults(v, "inventory-service")
	v.SetDefault("grpc_port", 50051)
	v.SetDefault("http_port", 8081)
	setChaosDefaults(v, chaos.InventoryProfile)

	var cfg Inventory
	if err := v.Unmarshal(&cfg); err != nil {
		return Inventory{}, fmt.Errorf("config: inventory-service: %w", err)
	}
	return cfg, nil
}

func LoadPayment() (Payment, error) {
	v := newViper()
	setTelemetryDefaults(v, "payment-service")
	v.SetDefault("grpc_port", 50052)
	v.SetDefault("http_port", 8082)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("max_amount", "")
	setChaosDefaults(v, chaos.PaymentProfile)

	var cfg Payment
	if err := v.Unmarshal(&cfg); err != nil {
		return Payment{}, fmt.Errorf("config: payment-service: %w", err)
	}
	if _, err := cfg.MaxAmountLimit(); err != nil {
		return Payment{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setTelemetryDefaults(v *viper.Viper, service string) {
	v.SetDefault("otel.service_name", service)
	v.SetDefault("otel.log_level", "info")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.environment", "local")
	v.SetDefault("otel.sample_ratio", 1.0)

	// Standard OpenTelemetry variables.
	_ = v.BindEnv("otel.service_name", "OTEL_SERVICE_NAME")
	_ = v.BindEnv("otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("otel.log_level", "LOG_LEVEL")
}

func setDependencyDefaults(v *viper.Viper, name, addr string, callTimeout time.Duration) {
	bulkhead := resilience.DefaultBulkheadConfig()
	breaker := resilience.DefaultBreakerConfig()

	v.SetDefault(name+".addr", addr)
	v.SetDefault(name+".call_timeout", callTimeout)
	v.SetDefault(name+".bulkhead.capacity", bulkhead.Capacity)
	v.SetDefault(name+".bulkhead.acquire_timeout", bulkhead.AcquireTimeout)
	v.SetDefault(name+".breaker.failure_ratio", breaker.FailureRatio)
	v.SetDefault(name+".breaker.min_requests", breaker.MinRequests)
	v.SetDefault(name+".breaker.open_timeout", breaker.OpenTimeout)
	v.SetDefault(name+".breaker.half_open_requests", breaker.HalfOpenRequests)
	v.SetDefault(name+".breaker.interval", breaker.Interval)
}

func setChaosDefaults(v *viper.Viper, profile chaos.Profile) {
	v.SetDefault("chaos.failure_rate", profile.FailureRate)
	v.SetDefault("chaos.slow_min", profile.SlowMin)
	v.SetDefault("chaos.slow_max", profile.SlowMax)
}
