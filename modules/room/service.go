package room

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/study-rooms/domain/room"
	"github.com/go-monolith/mono"
)

// Read-only lookups served over the service container. They bypass the room
// locks: each is a single consistent store read.

func (m *Module) getRoom(ctx context.Context, req GetRoomRequest, _ *mono.Msg) (GetRoomResponse, error) {
	if !IsValidRoomCode(req.RoomID) {
		return GetRoomResponse{}, nil
	}
	r, err := m.store.GetRoom(ctx, req.RoomID)
	if errors.Is(err, domain.ErrNotFound) {
		return GetRoomResponse{}, nil
	}
	if err != nil {
		return GetRoomResponse{}, fmt.Errorf("failed to get room: %w", err)
	}
	members, err := m.store.GetUsersByRoom(ctx, req.RoomID)
	if err != nil {
		return GetRoomResponse{}, fmt.Errorf("failed to list members: %w", err)
	}
	return GetRoomResponse{Found: true, Room: r, MemberCount: len(members)}, nil
}

func (m *Module) listMembers(ctx context.Context, req ListMembersRequest, _ *mono.Msg) (ListMembersResponse, error) {
	if !IsValidRoomCode(req.RoomID) {
		return ListMembersResponse{Members: []*domain.User{}}, nil
	}
	if _, err := m.store.GetRoom(ctx, req.RoomID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ListMembersResponse{Members: []*domain.User{}}, nil
		}
		return ListMembersResponse{}, fmt.Errorf("failed to get room: %w", err)
	}
	members, err := m.store.GetUsersByRoom(ctx, req.RoomID)
	if err != nil {
		return ListMembersResponse{}, fmt.Errorf("failed to list members: %w", err)
	}
	return ListMembersResponse{Found: true, Members: members}, nil
}

func (m *Module) getHistory(ctx context.Context, req GetHistoryRequest, _ *mono.Msg) (GetHistoryResponse, error) {
	if !IsValidRoomCode(req.RoomID) {
		return GetHistoryResponse{Messages: []*domain.Message{}}, nil
	}
	if _, err := m.store.GetRoom(ctx, req.RoomID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return GetHistoryResponse{Messages: []*domain.Message{}}, nil
		}
		return GetHistoryResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	limit := req.Limit
	if limit <= 0 || limit > m.historyLimit {
		limit = m.historyLimit
	}
	messages, err := m.store.GetMessagesByRoom(ctx, req.RoomID, limit)
	if err != nil {
		return GetHistoryResponse{}, fmt.Errorf("failed to get history: %w", err)
	}
	return GetHistoryResponse{Found: true, Messages: messages}, nil
}
