package main

import (
	"context"
	"log"
	"os"

	"github.com/example/study-rooms/config"
	"github.com/example/study-rooms/modules/activity"
	"github.com/example/study-rooms/modules/api"
	"github.com/example/study-rooms/modules/registry"
	"github.com/example/study-rooms/modules/room"
	"github.com/example/study-rooms/modules/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Study Rooms - Fiber WebSocket + mono ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	roomStore, err := store.Open(context.Background(), &cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}

	// Create modules
	storeModule := store.NewModule(roomStore, cfg.StoreDriver, logger.WithModule("store"))
	registryModule := registry.NewModule(cfg.SweepInterval, logger.WithModule("registry"))
	roomModule, err := room.NewModule(roomStore, registryModule.Registry(), cfg.HistoryLimit, logger.WithModule("room"))
	if err != nil {
		log.Fatalf("Failed to create room module: %v", err)
	}
	activityModule := activity.NewModule(logger.WithModule("activity"))
	apiModule := api.NewModule(cfg, logger.WithModule("api"))

	// The coordinator and registry are not exposed via ServiceContainer.
	apiModule.SetRealtime(roomModule.Coordinator(), registryModule.Registry())

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - store: State Store lifecycle and health
	// - registry: live connections + liveness sweep
	// - room: coordinator, room services, RoomActivity emitter
	// - activity: RoomActivity consumer, stats service
	// - api: Fiber HTTP/WebSocket server, depends on room and activity
	app.Register(storeModule)
	app.Register(registryModule)
	app.Register(roomModule)
	app.Register(activityModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("  - State store: %s", cfg.StoreDriver)
	log.Printf("  - Liveness sweep: every %s", cfg.SweepInterval)
	log.Printf("  - Inbound rate limit: %.0f msg/s (burst %d)", cfg.ChatRate, cfg.ChatBurst)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", cfg.Port)
	log.Println("  GET    /health                          - Health check")
	log.Println("  GET    /api/v1/rooms/:code              - Room snapshot")
	log.Println("  GET    /api/v1/rooms/:code/members      - Room members")
	log.Println("  GET    /api/v1/rooms/:code/messages     - Recent messages")
	log.Println("  GET    /api/v1/stats                    - Activity counters")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%d/ws):", cfg.Port)
	log.Println("  Message types: create_room, join_room, leave_room, chat_message,")
	log.Println("                 status_change, timer_start, timer_pause, timer_reset,")
	log.Println("                 timer_toggle_mode")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
