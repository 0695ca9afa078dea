package room

import "time"

// Default room settings.
const (
	DefaultStudyDuration = 25 * 60 // seconds
	DefaultBreakDuration = 5 * 60  // seconds
	DefaultHistoryLimit  = 50
	DefaultTopic         = "General Study"
	CodeLength           = 6
)

// Status is a member's presence status.
type Status string

const (
	StatusFocused Status = "focused"
	StatusBreak   Status = "break"
	StatusAway    Status = "away"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusFocused, StatusBreak, StatusAway:
		return true
	}
	return false
}

// TimerState is the state of a room's shared countdown.
type TimerState string

const (
	TimerStopped TimerState = "stopped"
	TimerRunning TimerState = "running"
	TimerPaused  TimerState = "paused"
)

// TimerMode selects which duration the countdown uses.
type TimerMode string

const (
	ModeStudy TimerMode = "study"
	ModeBreak TimerMode = "break"
)

// Toggle returns the other mode.
func (m TimerMode) Toggle() TimerMode {
	if m == ModeStudy {
		return ModeBreak
	}
	return ModeStudy
}

// MessageKind distinguishes chat messages from coordinator narration.
type MessageKind string

const (
	KindUser   MessageKind = "user"
	KindSystem MessageKind = "system"
)

// User represents an anonymous room participant.
type User struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	SocketID *string `json:"socketId"`
	RoomID   *string `json:"roomId"`
	Status   Status  `json:"status"`
	IsHost   bool    `json:"isHost"`
}

// InRoom reports whether the user currently belongs to a room.
func (u *User) InRoom() bool {
	return u.RoomID != nil && *u.RoomID != ""
}

// Room represents a study room and its shared timer.
type Room struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Topic         *string    `json:"topic"`
	TimerState    TimerState `json:"timerState"`
	TimerMode     TimerMode  `json:"timerMode"`
	TimerEndTime  *time.Time `json:"timerEndTime"`
	StudyDuration int        `json:"studyDuration"`
	BreakDuration int        `json:"breakDuration"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ActiveDuration returns the duration in seconds for the current mode. A
// paused remainder of zero is kept; only negative values use the defaults.
func (r *Room) ActiveDuration() int {
	if r.TimerMode == ModeBreak {
		if r.BreakDuration >= 0 {
			return r.BreakDuration
		}
		return DefaultBreakDuration
	}
	if r.StudyDuration >= 0 {
		return r.StudyDuration
	}
	return DefaultStudyDuration
}

// Message represents a chat or system message.
type Message struct {
	ID        int64       `json:"id"`
	RoomID    string      `json:"roomId"`
	UserID    *int64      `json:"userId"`
	Username  *string     `json:"username"`
	Text      string      `json:"text"`
	Type      MessageKind `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}
