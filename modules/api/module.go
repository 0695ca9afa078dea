package api

import (
	"context"
	"fmt"
	"time"

	"github.com/example/study-rooms/config"
	"github.com/example/study-rooms/modules/activity"
	"github.com/example/study-rooms/modules/registry"
	"github.com/example/study-rooms/modules/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Realtime is the subset of the room coordinator driven by WebSocket
// connections.
type Realtime interface {
	Connect(ctx context.Context, connID string)
	Handle(ctx context.Context, connID string, raw []byte)
	Disconnect(ctx context.Context, connID string)
	SendError(connID, message string)
}

// APIModule serves the WebSocket endpoint and the read-only REST API.
type APIModule struct {
	app          *fiber.App
	roomAdapter  room.RoomPort
	statsAdapter activity.StatsPort
	realtime     Realtime
	registry     *registry.Registry
	cfg          config.Config
	logger       types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(cfg config.Config, logger types.Logger) *APIModule {
	return &APIModule{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"room", "activity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "room":
		m.roomAdapter = room.NewRoomAdapter(container)
	case "activity":
		m.statsAdapter = activity.NewStatsAdapter(container)
	}
}

// SetRealtime wires the coordinator and the registry the WebSocket endpoint
// feeds (called from main.go; neither is exposed via the ServiceContainer).
func (m *APIModule) SetRealtime(rt Realtime, reg *registry.Registry) {
	m.realtime = rt
	m.registry = reg
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.roomAdapter == nil {
		return fmt.Errorf("room adapter dependency not set")
	}
	if m.statsAdapter == nil {
		return fmt.Errorf("activity adapter dependency not set")
	}
	if m.realtime == nil || m.registry == nil {
		return fmt.Errorf("realtime dependencies not set")
	}

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.cfg.Addr()); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", m.cfg.Addr())
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	connections := 0
	if m.registry != nil {
		connections = m.registry.Count()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr":        m.cfg.Addr(),
			"connections": connections,
		},
	}
}

func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Study Rooms",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderUpgrade) == "websocket"
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowedOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	m.setupRoutes(app)
	return app
}

// errorHandler handles Fiber errors.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
