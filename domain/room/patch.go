package room

import "time"

// NewUser holds the fields a caller supplies when creating a user.
type NewUser struct {
	Username string
	SocketID *string
	RoomID   *string
	Status   Status
	IsHost   bool
}

// NewRoom holds the fields a caller supplies when creating a room.
// Timer fields always start from their defaults.
type NewRoom struct {
	ID    string
	Name  string
	Topic *string
}

// NewMessage holds the fields a caller supplies when creating a message.
// The store assigns the id and the timestamp.
type NewMessage struct {
	RoomID   string
	UserID   *int64
	Username *string
	Text     string
	Type     MessageKind
}

// UserPatch is a partial update of a user. Nil fields are left unchanged.
type UserPatch struct {
	Status *Status
	IsHost *bool
}

// Apply applies the patch to u.
func (p UserPatch) Apply(u *User) {
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.IsHost != nil {
		u.IsHost = *p.IsHost
	}
}

// RoomPatch is a partial update of a room's timer. Nil fields are left
// unchanged. TimerEndTime is only consulted when TimerState is set: the end
// time is kept for running timers and cleared for every other state.
type RoomPatch struct {
	TimerState    *TimerState
	TimerMode     *TimerMode
	TimerEndTime  *time.Time
	StudyDuration *int
	BreakDuration *int
}

// Apply applies the patch to r.
func (p RoomPatch) Apply(r *Room) {
	if p.TimerState != nil {
		r.TimerState = *p.TimerState
		if r.TimerState == TimerRunning && p.TimerEndTime != nil {
			end := *p.TimerEndTime
			r.TimerEndTime = &end
		} else {
			r.TimerEndTime = nil
		}
	}
	if p.TimerMode != nil {
		r.TimerMode = *p.TimerMode
	}
	if p.StudyDuration != nil {
		r.StudyDuration = *p.StudyDuration
	}
	if p.BreakDuration != nil {
		r.BreakDuration = *p.BreakDuration
	}
}

// Build returns a room with default timer settings.
func (n NewRoom) Build(now time.Time) *Room {
	return &Room{
		ID:            n.ID,
		Name:          n.Name,
		Topic:         n.Topic,
		TimerState:    TimerStopped,
		TimerMode:     ModeStudy,
		StudyDuration: DefaultStudyDuration,
		BreakDuration: DefaultBreakDuration,
		CreatedAt:     now,
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
