package store

import (
	"context"
	"fmt"
	"time"

	"github.com/example/study-rooms/config"
	"github.com/example/study-rooms/domain/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Open creates the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config) (room.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return NewMemoryStore(cfg.HistoryLimit), nil
	case config.DriverSQLite, config.DriverPostgres:
		return OpenGorm(cfg.StoreDriver, cfg.StoreDSN, cfg.StoreDebug)
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return NewRedisStore(client, cfg.RedisPrefix, cfg.HistoryLimit), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Module owns the state store's lifecycle and reports its health.
type Module struct {
	store  room.Store
	driver string
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule wraps an opened store.
func NewModule(store room.Store, driver string, logger types.Logger) *Module {
	return &Module{
		store:  store,
		driver: driver,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// Store returns the underlying state store.
func (m *Module) Store() room.Store {
	return m.store
}

// Start verifies the store is reachable.
func (m *Module) Start(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("store %s not reachable: %w", m.driver, err)
	}
	m.logger.Info("Store module started", "driver", m.driver)
	return nil
}

// Stop closes the store.
func (m *Module) Stop(_ context.Context) error {
	if err := m.store.Close(); err != nil {
		m.logger.Error("Failed to close store", "driver", m.driver, "error", err)
		return fmt.Errorf("failed to close store: %w", err)
	}
	m.logger.Info("Store module stopped", "driver", m.driver)
	return nil
}

// Health pings the store.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store ping failed: %v", err),
			Details: map[string]any{"driver": m.driver},
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"driver": m.driver},
	}
}
