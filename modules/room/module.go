package room

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/study-rooms/domain/room"
	"github.com/example/study-rooms/events"
	"github.com/example/study-rooms/modules/registry"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the room coordinator, publishes room activity on the event bus
// and serves read-only room lookups.
type Module struct {
	coordinator  *Coordinator
	store        domain.Store
	eventBus     mono.EventBus
	historyLimit int
	logger       types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
)

// NewModule creates the room module over the given store and registry.
func NewModule(store domain.Store, reg *registry.Registry, historyLimit int, logger types.Logger) (*Module, error) {
	if historyLimit <= 0 {
		historyLimit = domain.DefaultHistoryLimit
	}
	m := &Module{
		store:        store,
		historyLimit: historyLimit,
		logger:       logger,
	}
	coordinator, err := NewCoordinator(store, reg,
		WithLogger(logger),
		WithHistoryLimit(historyLimit),
		WithActivity(m.publishActivity),
	)
	if err != nil {
		return nil, err
	}
	m.coordinator = coordinator
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "room"
}

// Coordinator returns the room coordinator.
func (m *Module) Coordinator() *Coordinator {
	return m.coordinator
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomActivityV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetRoom, json.Unmarshal, json.Marshal, m.getRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoom, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListMembers, json.Unmarshal, json.Marshal, m.listMembers,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListMembers, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetHistory, json.Unmarshal, json.Marshal, m.getHistory,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetHistory, err)
	}

	m.logger.Info("Registered room services",
		"services", []string{ServiceGetRoom, ServiceListMembers, ServiceGetHistory})
	return nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Room module started", "historyLimit", m.historyLimit)
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Room module stopped")
	return nil
}

// Health reports whether the backing store answers.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store unavailable: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"activeLocks": m.coordinator.locks.size(),
		},
	}
}

func (m *Module) publishActivity(event events.RoomActivityEvent) {
	if m.eventBus == nil {
		return
	}
	if err := events.RoomActivityV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish room activity", "kind", event.Kind, "roomId", event.RoomID, "error", err)
	}
}
