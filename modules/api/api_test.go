package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/study-rooms/config"
	domain "github.com/example/study-rooms/domain/room"
	"github.com/example/study-rooms/modules/activity"
	"github.com/example/study-rooms/modules/registry"
	"github.com/example/study-rooms/modules/room"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

type fakeRooms struct {
	rooms     map[string]*domain.Room
	members   map[string][]*domain.User
	messages  map[string][]*domain.Message
	err       error
	lastLimit int
}

func (f *fakeRooms) GetRoom(_ context.Context, roomID string) (*room.GetRoomResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rooms[roomID]
	if !ok {
		return &room.GetRoomResponse{}, nil
	}
	return &room.GetRoomResponse{Found: true, Room: r, MemberCount: len(f.members[roomID])}, nil
}

func (f *fakeRooms) ListMembers(_ context.Context, roomID string) (*room.ListMembersResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.rooms[roomID]; !ok {
		return &room.ListMembersResponse{Members: []*domain.User{}}, nil
	}
	return &room.ListMembersResponse{Found: true, Members: f.members[roomID]}, nil
}

func (f *fakeRooms) GetHistory(_ context.Context, roomID string, limit int) (*room.GetHistoryResponse, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.rooms[roomID]; !ok {
		return &room.GetHistoryResponse{Messages: []*domain.Message{}}, nil
	}
	return &room.GetHistoryResponse{Found: true, Messages: f.messages[roomID]}, nil
}

type fakeStats struct {
	stats activity.Stats
	err   error
}

func (f *fakeStats) GetStats(_ context.Context) (*activity.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.stats
	return &s, nil
}

type nopRealtime struct{}

func (nopRealtime) Connect(context.Context, string)        {}
func (nopRealtime) Handle(context.Context, string, []byte) {}
func (nopRealtime) Disconnect(context.Context, string)     {}
func (nopRealtime) SendError(string, string)               {}

type nopTransport struct{}

func (nopTransport) Send([]byte) error { return nil }
func (nopTransport) Ping() error       { return nil }
func (nopTransport) Close() error      { return nil }

func newTestApp(t *testing.T, rooms *fakeRooms, stats *fakeStats) (*fiber.App, *registry.Registry) {
	t.Helper()
	cfg := config.Config{
		Port:           3000,
		AllowedOrigins: "http://localhost:5173",
		HistoryLimit:   50,
		WriteTimeout:   time.Second,
		ChatRate:       10,
		ChatBurst:      20,
	}
	m := NewModule(cfg, &mockLogger{})
	m.roomAdapter = rooms
	m.statsAdapter = stats
	reg := registry.New(&mockLogger{})
	m.SetRealtime(nopRealtime{}, reg)
	return m.newApp(), reg
}

func seededRooms() *fakeRooms {
	topic := "Algebra"
	host := &domain.User{ID: 1, Username: "Alice", Status: domain.StatusFocused, IsHost: true}
	guest := &domain.User{ID: 2, Username: "Bob", Status: domain.StatusBreak}
	return &fakeRooms{
		rooms: map[string]*domain.Room{
			"ABC123": {
				ID:            "ABC123",
				Name:          "Math",
				Topic:         &topic,
				TimerState:    domain.TimerStopped,
				TimerMode:     domain.ModeStudy,
				StudyDuration: 1500,
				BreakDuration: 300,
			},
		},
		members: map[string][]*domain.User{"ABC123": {host, guest}},
		messages: map[string][]*domain.Message{
			"ABC123": {{ID: 1, RoomID: "ABC123", Text: "Alice created the room", Type: domain.KindSystem}},
		},
	}
}

func doGet(t *testing.T, app *fiber.App, path string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestGetRoom(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{})

	status, body := doGet(t, app, "/api/v1/rooms/ABC123")
	require.Equal(t, fiber.StatusOK, status)

	var resp RoomResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "ABC123", resp.Room.ID)
	assert.Equal(t, "Math", resp.Room.Name)
	assert.Equal(t, 2, resp.MemberCount)
}

func TestGetRoom_CodeIsCaseSensitive(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{})

	status, _ := doGet(t, app, "/api/v1/rooms/abc123")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = doGet(t, app, "/api/v1/rooms/abc123/members")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestGetRoom_NotFound(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{})

	status, body := doGet(t, app, "/api/v1/rooms/ZZZZZZ")
	assert.Equal(t, fiber.StatusNotFound, status)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "not_found", resp.Error)
	assert.Equal(t, "Room not found", resp.Message)
}

func TestGetRoom_LookupFailure(t *testing.T) {
	rooms := seededRooms()
	rooms.err = errors.New("service unavailable")
	app, _ := newTestApp(t, rooms, &fakeStats{})

	status, body := doGet(t, app, "/api/v1/rooms/ABC123")
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.NotContains(t, string(body), "service unavailable")
}

func TestListMembers(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{})

	status, body := doGet(t, app, "/api/v1/rooms/ABC123/members")
	require.Equal(t, fiber.StatusOK, status)

	var resp MembersResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Members, 2)
	assert.True(t, resp.Members[0].IsHost)
	assert.Equal(t, domain.StatusBreak, resp.Members[1].Status)

	status, _ = doGet(t, app, "/api/v1/rooms/NOPE00/members")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestGetHistory(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
	}{
		{"default", "", 50},
		{"explicit", "?limit=10", 10},
		{"not a number", "?limit=ten", 50},
		{"negative", "?limit=-3", 50},
		{"too large", "?limit=5000", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := seededRooms()
			app, _ := newTestApp(t, rooms, &fakeStats{})

			status, body := doGet(t, app, "/api/v1/rooms/ABC123/messages"+tt.query)
			require.Equal(t, fiber.StatusOK, status)
			assert.Equal(t, tt.wantLimit, rooms.lastLimit)

			var resp HistoryResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			assert.Equal(t, "ABC123", resp.RoomID)
			require.Len(t, resp.Messages, 1)
			assert.Equal(t, domain.KindSystem, resp.Messages[0].Type)
		})
	}
}

func TestGetHistory_NotFound(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{})

	status, _ := doGet(t, app, "/api/v1/rooms/NOPE00/messages")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestGetStats(t *testing.T) {
	stats := &fakeStats{stats: activity.Stats{RoomsCreated: 3, ActiveRooms: 2, Messages: 40}}
	app, reg := newTestApp(t, seededRooms(), stats)
	reg.Register("conn-1", nopTransport{})

	status, body := doGet(t, app, "/api/v1/stats")
	require.Equal(t, fiber.StatusOK, status)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, int64(3), resp.Stats.RoomsCreated)
	assert.Equal(t, int64(2), resp.Stats.ActiveRooms)
	assert.Equal(t, int64(40), resp.Stats.Messages)
	assert.Equal(t, 1, resp.Connections)
}

func TestGetStats_Failure(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{err: errors.New("boom")})

	status, _ := doGet(t, app, "/api/v1/stats")
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func TestHealth(t *testing.T) {
	app, reg := newTestApp(t, seededRooms(), &fakeStats{})
	reg.Register("a", nopTransport{})
	reg.Register("b", nopTransport{})

	status, body := doGet(t, app, "/health")
	require.Equal(t, fiber.StatusOK, status)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, float64(2), resp.Details["connections"])
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{})

	status, body := doGet(t, app, "/ws")
	assert.Equal(t, fiber.StatusUpgradeRequired, status)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "server_error", resp.Error)
}

func TestUnknownRoute(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{})

	status, _ := doGet(t, app, "/api/v1/nothing")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestCORS(t *testing.T) {
	app, _ := newTestApp(t, seededRooms(), &fakeStats{})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNewLimiter(t *testing.T) {
	limiter := newLimiter(1, 3)
	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed, "burst bounds back-to-back messages")

	unlimited := newLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}
}

func TestModule_StartRequiresDependencies(t *testing.T) {
	m := NewModule(config.Config{Port: 3000}, &mockLogger{})
	assert.Equal(t, "api", m.Name())
	assert.ElementsMatch(t, []string{"room", "activity"}, m.Dependencies())

	err := m.Start(context.Background())
	assert.Error(t, err)
	assert.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}
