package room

import (
	"context"
	"errors"
	"testing"

	domain "github.com/example/study-rooms/domain/room"
	"github.com/example/study-rooms/modules/registry"
	"github.com/example/study-rooms/modules/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModule(t *testing.T, historyLimit int) (*Module, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(100)
	m, err := NewModule(st, registry.New(&mockLogger{}), historyLimit, &mockLogger{})
	require.NoError(t, err)
	return m, st
}

func seedRoom(t *testing.T, m *Module, connID string) string {
	t.Helper()
	tr := &fakeTransport{}
	m.coordinator.registry.Register(connID, tr)
	raw := []byte(`{"type":"create_room","payload":{"nickname":"Alice","roomName":"Seeded"}}`)
	m.coordinator.Handle(context.Background(), connID, raw)
	created := decodeLast[RoomCreated](t, tr, EventRoomCreated)
	return created.RoomID
}

func TestModule_Basics(t *testing.T) {
	m, _ := newTestModule(t, 0)

	assert.Equal(t, "room", m.Name())
	assert.NotNil(t, m.Coordinator())
	assert.Equal(t, domain.DefaultHistoryLimit, m.historyLimit)
	assert.Len(t, m.EmitEvents(), 1)
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
}

func TestModule_PublishWithoutBusIsNoop(t *testing.T) {
	m, _ := newTestModule(t, 10)

	// no event bus wired: transitions must still succeed
	code := seedRoom(t, m, "alice")
	assert.True(t, IsValidRoomCode(code))
}

func TestModule_Health(t *testing.T) {
	m, _ := newTestModule(t, 10)

	status := m.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, 0, status.Details["activeLocks"])
}

type downStore struct {
	domain.Store
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestModule_HealthReportsStoreFailure(t *testing.T) {
	m, err := NewModule(downStore{Store: store.NewMemoryStore(0)}, registry.New(&mockLogger{}), 10, &mockLogger{})
	require.NoError(t, err)

	status := m.Health(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Message, "connection refused")
}

func TestModule_GetRoom(t *testing.T) {
	m, _ := newTestModule(t, 10)
	code := seedRoom(t, m, "alice")
	ctx := context.Background()

	resp, err := m.getRoom(ctx, GetRoomRequest{RoomID: code}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Found)
	assert.Equal(t, code, resp.Room.ID)
	assert.Equal(t, 1, resp.MemberCount)

	resp, err = m.getRoom(ctx, GetRoomRequest{RoomID: "NOPE00"}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Found)

	resp, err = m.getRoom(ctx, GetRoomRequest{RoomID: "bad"}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestModule_ListMembers(t *testing.T) {
	m, _ := newTestModule(t, 10)
	code := seedRoom(t, m, "alice")
	ctx := context.Background()

	resp, err := m.listMembers(ctx, ListMembersRequest{RoomID: code}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Found)
	require.Len(t, resp.Members, 1)
	assert.True(t, resp.Members[0].IsHost)

	resp, err = m.listMembers(ctx, ListMembersRequest{RoomID: "NOPE00"}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Found)
	assert.NotNil(t, resp.Members)
	assert.Empty(t, resp.Members)
}

func TestModule_GetHistoryClampsLimit(t *testing.T) {
	m, st := newTestModule(t, 3)
	code := seedRoom(t, m, "alice")
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := st.CreateMessage(ctx, domain.NewMessage{RoomID: code, Text: text, Type: domain.KindUser})
		require.NoError(t, err)
	}

	resp, err := m.getHistory(ctx, GetHistoryRequest{RoomID: code, Limit: 100}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Found)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "two", resp.Messages[0].Text)
	assert.Equal(t, "four", resp.Messages[2].Text)

	resp, err = m.getHistory(ctx, GetHistoryRequest{RoomID: code, Limit: 1}, nil)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "four", resp.Messages[0].Text)

	resp, err = m.getHistory(ctx, GetHistoryRequest{RoomID: "ZZZZZZ"}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Found)
	assert.Empty(t, resp.Messages)
}

func TestNewRoomAdapter_PanicsOnNilContainer(t *testing.T) {
	assert.Panics(t, func() {
		NewRoomAdapter(nil)
	})
}
