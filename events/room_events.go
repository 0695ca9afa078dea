package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// Activity kinds carried by RoomActivityEvent.
const (
	KindRoomCreated     = "room_created"
	KindMemberJoined    = "member_joined"
	KindMemberLeft      = "member_left"
	KindRoomClosed      = "room_closed"
	KindHostChanged     = "host_changed"
	KindMessagePosted   = "message_posted"
	KindStatusChanged   = "status_changed"
	KindTimerStarted    = "timer_started"
	KindTimerPaused     = "timer_paused"
	KindTimerReset      = "timer_reset"
	KindTimerModeChange = "timer_mode_changed"
)

// RoomActivityEvent is emitted after every successful room transition.
type RoomActivityEvent struct {
	Kind      string    `json:"kind"`
	RoomID    string    `json:"room_id"`
	UserID    int64     `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomActivityV1 is the event definition for room activity.
var RoomActivityV1 = helper.EventDefinition[RoomActivityEvent](
	"room",
	"RoomActivity",
	"v1",
)
