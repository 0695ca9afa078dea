package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const maxHistoryQuery = 1000

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := app.Group("/api/v1")
	api.Get("/rooms/:code", m.getRoom)
	api.Get("/rooms/:code/members", m.listMembers)
	api.Get("/rooms/:code/messages", m.getHistory)
	api.Get("/stats", m.getStats)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":      "api",
			"connections": m.registry.Count(),
		},
	})
}

// getRoom handles GET /api/v1/rooms/:code.
func (m *APIModule) getRoom(c *fiber.Ctx) error {
	code := roomCode(c)

	resp, err := m.roomAdapter.GetRoom(c.UserContext(), code)
	if err != nil {
		m.logger.Error("Room lookup failed", "roomId", code, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to look up room",
		})
	}
	if !resp.Found {
		return roomNotFound(c)
	}

	return c.JSON(RoomResponse{
		Room:        resp.Room,
		MemberCount: resp.MemberCount,
	})
}

// listMembers handles GET /api/v1/rooms/:code/members.
func (m *APIModule) listMembers(c *fiber.Ctx) error {
	code := roomCode(c)

	resp, err := m.roomAdapter.ListMembers(c.UserContext(), code)
	if err != nil {
		m.logger.Error("Member lookup failed", "roomId", code, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to list members",
		})
	}
	if !resp.Found {
		return roomNotFound(c)
	}

	return c.JSON(MembersResponse{RoomID: code, Members: resp.Members})
}

// getHistory handles GET /api/v1/rooms/:code/messages.
func (m *APIModule) getHistory(c *fiber.Ctx) error {
	code := roomCode(c)
	limit := m.cfg.HistoryLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxHistoryQuery {
			limit = parsed
		}
	}

	resp, err := m.roomAdapter.GetHistory(c.UserContext(), code, limit)
	if err != nil {
		m.logger.Error("History lookup failed", "roomId", code, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to get history",
		})
	}
	if !resp.Found {
		return roomNotFound(c)
	}

	return c.JSON(HistoryResponse{RoomID: code, Messages: resp.Messages})
}

// getStats handles GET /api/v1/stats.
func (m *APIModule) getStats(c *fiber.Ctx) error {
	stats, err := m.statsAdapter.GetStats(c.UserContext())
	if err != nil {
		m.logger.Error("Stats lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "stats_failed",
			Message: "Failed to get stats",
		})
	}

	return c.JSON(StatsResponse{
		Stats:       *stats,
		Connections: m.registry.Count(),
		GeneratedAt: time.Now().UTC(),
	})
}

// handleWebSocket handles WebSocket connections at /ws. The read loop is the
// only reader of the connection; all writes go through the registry.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	ctx := context.Background()
	connID := uuid.NewString()

	client := m.registry.Register(connID, newWSTransport(c, m.cfg.WriteTimeout))
	c.SetPongHandler(func(string) error {
		client.MarkAlive()
		return nil
	})
	defer func() {
		m.realtime.Disconnect(ctx, connID)
		m.logger.Info("WebSocket client disconnected", "connId", connID)
	}()

	m.logger.Info("WebSocket client connected", "connId", connID, "ip", c.IP())
	m.realtime.Connect(ctx, connID)

	limiter := newLimiter(m.cfg.ChatRate, m.cfg.ChatBurst)
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("WebSocket read error", "connId", connID, "error", err)
			}
			return
		}
		client.MarkAlive()

		if !limiter.Allow() {
			m.realtime.SendError(connID, "Rate limit exceeded")
			continue
		}
		m.realtime.Handle(ctx, connID, raw)
	}
}

// newLimiter returns the per-connection inbound limiter. A non-positive rate
// disables limiting.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// roomCode returns the path code as given. Codes are case-sensitive.
func roomCode(c *fiber.Ctx) string {
	return c.Params("code")
}

func roomNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Error:   "not_found",
		Message: "Room not found",
	})
}
