package room

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/study-rooms/domain/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// RoomPort defines the read-only room lookups available to other modules.
type RoomPort interface {
	GetRoom(ctx context.Context, roomID string) (*GetRoomResponse, error)
	ListMembers(ctx context.Context, roomID string) (*ListMembersResponse, error)
	GetHistory(ctx context.Context, roomID string, limit int) (*GetHistoryResponse, error)
}

// RoomAdapter implements RoomPort using the service container.
type RoomAdapter struct {
	container mono.ServiceContainer
}

// NewRoomAdapter creates a new RoomAdapter.
func NewRoomAdapter(container mono.ServiceContainer) RoomPort {
	if container == nil {
		panic("room: ServiceContainer is nil")
	}
	return &RoomAdapter{container: container}
}

// GetRoom returns a room snapshot and its member count.
func (a *RoomAdapter) GetRoom(ctx context.Context, roomID string) (*GetRoomResponse, error) {
	req := GetRoomRequest{RoomID: roomID}
	var resp GetRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &resp, nil
}

// ListMembers returns the members of a room.
func (a *RoomAdapter) ListMembers(ctx context.Context, roomID string) (*ListMembersResponse, error) {
	req := ListMembersRequest{RoomID: roomID}
	var resp ListMembersResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListMembers,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	if resp.Members == nil {
		resp.Members = []*domain.User{}
	}
	return &resp, nil
}

// GetHistory returns the most recent messages of a room.
func (a *RoomAdapter) GetHistory(ctx context.Context, roomID string, limit int) (*GetHistoryResponse, error) {
	req := GetHistoryRequest{RoomID: roomID, Limit: limit}
	var resp GetHistoryResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if resp.Messages == nil {
		resp.Messages = []*domain.Message{}
	}
	return &resp, nil
}
