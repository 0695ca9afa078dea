package activity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/study-rooms/events"
	"github.com/go-monolith/mono/pkg/types"
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

func event(kind string, at time.Time) events.RoomActivityEvent {
	return events.RoomActivityEvent{Kind: kind, RoomID: "ABC123", Timestamp: at}
}

func TestTracker_Record(t *testing.T) {
	tr := NewTracker()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, kind := range []string{
		events.KindRoomCreated,
		events.KindMemberJoined,
		events.KindMessagePosted,
		events.KindMessagePosted,
		events.KindStatusChanged,
		events.KindTimerStarted,
		events.KindTimerPaused,
		events.KindTimerReset,
		events.KindTimerModeChange,
		events.KindHostChanged,
		events.KindMemberLeft,
		events.KindRoomClosed,
		events.KindMemberLeft,
	} {
		tr.Record(event(kind, base.Add(time.Duration(i)*time.Second)))
	}

	s := tr.Snapshot()
	assert.Equal(t, int64(1), s.RoomsCreated)
	assert.Equal(t, int64(1), s.RoomsClosed)
	assert.Equal(t, int64(0), s.ActiveRooms)
	assert.Equal(t, int64(2), s.Joins)
	assert.Equal(t, int64(2), s.Leaves)
	assert.Equal(t, int64(2), s.Messages)
	assert.Equal(t, int64(1), s.StatusChanges)
	assert.Equal(t, int64(1), s.HostChanges)
	assert.Equal(t, int64(4), s.TimerActions)
	require.NotNil(t, s.LastEventAt)
	assert.True(t, base.Add(12*time.Second).Equal(*s.LastEventAt))
}

func TestTracker_ActiveRoomsNeverNegative(t *testing.T) {
	tr := NewTracker()
	tr.Record(event(events.KindRoomClosed, time.Now()))

	s := tr.Snapshot()
	assert.Equal(t, int64(1), s.RoomsClosed)
	assert.Equal(t, int64(0), s.ActiveRooms)
}

func TestTracker_LastEventKeepsNewest(t *testing.T) {
	tr := NewTracker()
	newer := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.Record(event(events.KindMessagePosted, newer))
	tr.Record(event(events.KindMessagePosted, newer.Add(-time.Minute)))

	s := tr.Snapshot()
	require.NotNil(t, s.LastEventAt)
	assert.True(t, newer.Equal(*s.LastEventAt))
}

func TestTracker_SnapshotIsCopy(t *testing.T) {
	tr := NewTracker()
	tr.Record(event(events.KindRoomCreated, time.Now()))

	s := tr.Snapshot()
	*s.LastEventAt = time.Time{}
	s.RoomsCreated = 99

	again := tr.Snapshot()
	assert.Equal(t, int64(1), again.RoomsCreated)
	assert.False(t, again.LastEventAt.IsZero())
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(event(events.KindMessagePosted, time.Now()))
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), tr.Snapshot().Messages)
}

func TestModule_HandleAndServe(t *testing.T) {
	m := NewModule(&mockLogger{})
	ctx := context.Background()

	assert.Equal(t, "activity", m.Name())
	require.NoError(t, m.Start(ctx))

	require.NoError(t, m.handleRoomActivity(ctx, event(events.KindRoomCreated, time.Now()), nil))
	require.NoError(t, m.handleRoomActivity(ctx, event(events.KindMessagePosted, time.Now()), nil))

	resp, err := m.getStats(ctx, GetStatsRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Stats.RoomsCreated)
	assert.Equal(t, int64(1), resp.Stats.Messages)

	health := m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, int64(1), health.Details["activeRooms"])

	require.NoError(t, m.Stop(ctx))
}

func TestNewStatsAdapter_PanicsOnNilContainer(t *testing.T) {
	assert.Panics(t, func() {
		NewStatsAdapter(nil)
	})
}
