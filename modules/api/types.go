package api

import (
	"time"

	domain "github.com/example/study-rooms/domain/room"
	"github.com/example/study-rooms/modules/activity"
)

// RoomResponse is the API response for a room lookup.
type RoomResponse struct {
	Room        *domain.Room `json:"room"`
	MemberCount int          `json:"memberCount"`
}

// MembersResponse is the API response for a room's members.
type MembersResponse struct {
	RoomID  string         `json:"roomId"`
	Members []*domain.User `json:"members"`
}

// HistoryResponse is the API response for message history.
type HistoryResponse struct {
	RoomID   string            `json:"roomId"`
	Messages []*domain.Message `json:"messages"`
}

// StatsResponse is the API response for activity statistics.
type StatsResponse struct {
	Stats       activity.Stats `json:"stats"`
	Connections int            `json:"connections"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
