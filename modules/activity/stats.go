package activity

import (
	"sync"
	"time"

	"github.com/example/study-rooms/events"
)

// Stats is a snapshot of process-wide room activity.
type Stats struct {
	RoomsCreated  int64      `json:"roomsCreated"`
	RoomsClosed   int64      `json:"roomsClosed"`
	ActiveRooms   int64      `json:"activeRooms"`
	Joins         int64      `json:"joins"`
	Leaves        int64      `json:"leaves"`
	Messages      int64      `json:"messages"`
	StatusChanges int64      `json:"statusChanges"`
	HostChanges   int64      `json:"hostChanges"`
	TimerActions  int64      `json:"timerActions"`
	LastEventAt   *time.Time `json:"lastEventAt,omitempty"`
}

// Tracker folds room activity events into counters.
type Tracker struct {
	mu    sync.RWMutex
	stats Stats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record applies one event. Unknown kinds only bump the last event time.
func (t *Tracker) Record(event events.RoomActivityEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case events.KindRoomCreated:
		t.stats.RoomsCreated++
		t.stats.ActiveRooms++
		// the creator is a member too
		t.stats.Joins++
	case events.KindRoomClosed:
		t.stats.RoomsClosed++
		if t.stats.ActiveRooms > 0 {
			t.stats.ActiveRooms--
		}
	case events.KindMemberJoined:
		t.stats.Joins++
	case events.KindMemberLeft:
		t.stats.Leaves++
	case events.KindMessagePosted:
		t.stats.Messages++
	case events.KindStatusChanged:
		t.stats.StatusChanges++
	case events.KindHostChanged:
		t.stats.HostChanges++
	case events.KindTimerStarted, events.KindTimerPaused, events.KindTimerReset, events.KindTimerModeChange:
		t.stats.TimerActions++
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if t.stats.LastEventAt == nil || ts.After(*t.stats.LastEventAt) {
		t.stats.LastEventAt = &ts
	}
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.stats
	if s.LastEventAt != nil {
		ts := *s.LastEventAt
		s.LastEventAt = &ts
	}
	return s
}
