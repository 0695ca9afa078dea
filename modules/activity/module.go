package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/study-rooms/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module subscribes to room activity and serves aggregate statistics.
type Module struct {
	tracker *Tracker
	logger  types.Logger
}

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the activity module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		tracker: NewTracker(),
		logger:  logger,
	}
}

func (m *Module) Name() string {
	return "activity"
}

// Tracker returns the underlying counters.
func (m *Module) Tracker() *Tracker {
	return m.tracker
}

func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.RoomActivityV1, m.handleRoomActivity, m); err != nil {
		return fmt.Errorf("failed to register RoomActivity consumer: %w", err)
	}
	m.logger.Info("Registered event consumers", "events", []string{"RoomActivity"})
	return nil
}

func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetStats, json.Unmarshal, json.Marshal, m.getStats,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetStats, err)
	}
	return nil
}

func (m *Module) handleRoomActivity(_ context.Context, event events.RoomActivityEvent, _ *mono.Msg) error {
	m.logger.Debug("Room activity", "kind", event.Kind, "roomId", event.RoomID, "userId", event.UserID)
	m.tracker.Record(event)
	return nil
}

func (m *Module) getStats(_ context.Context, _ GetStatsRequest, _ *mono.Msg) (GetStatsResponse, error) {
	return GetStatsResponse{Stats: m.tracker.Snapshot()}, nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Activity module started - listening for room events")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	s := m.tracker.Snapshot()
	m.logger.Info("Activity module stopped",
		"roomsCreated", s.RoomsCreated, "messages", s.Messages)
	return nil
}

func (m *Module) Health(_ context.Context) mono.HealthStatus {
	s := m.tracker.Snapshot()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"activeRooms": s.ActiveRooms,
		},
	}
}
