package registry

import (
	"context"
	"sync"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module runs the periodic liveness sweep over the registry.
type Module struct {
	registry *Registry
	interval time.Duration
	logger   types.Logger
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a registry module that sweeps every interval.
func NewModule(interval time.Duration, logger types.Logger) *Module {
	return &Module{
		registry: New(logger),
		interval: interval,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "registry"
}

// Registry returns the connection registry.
func (m *Module) Registry() *Registry {
	return m.registry
}

// Start launches the sweep loop.
func (m *Module) Start(_ context.Context) error {
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})

	go m.run()

	m.logger.Info("Registry module started", "sweepInterval", m.interval.String())
	return nil
}

func (m *Module) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer close(m.doneChan)

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.registry.Sweep()
		}
	}
}

// Stop ends the sweep loop and closes every connection.
func (m *Module) Stop(ctx context.Context) error {
	if m.stopChan == nil {
		return nil
	}

	m.stopOnce.Do(func() {
		close(m.stopChan)
	})

	select {
	case <-m.doneChan:
	case <-ctx.Done():
		m.logger.Warn("Registry sweep shutdown timeout exceeded")
		return ctx.Err()
	}

	m.registry.CloseAll()
	m.logger.Info("Registry module stopped")
	return nil
}

// Health reports the number of connected clients.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"clients": m.registry.Count(),
		},
	}
}
