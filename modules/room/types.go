package room

import (
	domain "github.com/example/study-rooms/domain/room"
)

// Service names registered by the room module.
const (
	ServiceGetRoom     = "get-room"
	ServiceListMembers = "list-members"
	ServiceGetHistory  = "get-history"
)

// GetRoomRequest is the request for get-room.
type GetRoomRequest struct {
	RoomID string `json:"roomId"`
}

// GetRoomResponse is the response for get-room.
type GetRoomResponse struct {
	Found       bool         `json:"found"`
	Room        *domain.Room `json:"room,omitempty"`
	MemberCount int          `json:"memberCount"`
}

// ListMembersRequest is the request for list-members.
type ListMembersRequest struct {
	RoomID string `json:"roomId"`
}

// ListMembersResponse is the response for list-members.
type ListMembersResponse struct {
	Found   bool           `json:"found"`
	Members []*domain.User `json:"members"`
}

// GetHistoryRequest is the request for get-history.
type GetHistoryRequest struct {
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit"`
}

// GetHistoryResponse is the response for get-history.
type GetHistoryResponse struct {
	Found    bool              `json:"found"`
	Messages []*domain.Message `json:"messages"`
}
