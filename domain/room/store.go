package room

import (
	"context"
	"errors"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when the requested user, room or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRoomExists is returned by CreateRoom when the room code is already taken.
	ErrRoomExists = errors.New("room already exists")
)

// Store is the state store the coordinator depends on. Implementations must
// be safe for concurrent use. Lookups and updates of a missing entity return
// ErrNotFound.
type Store interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserBySocket(ctx context.Context, socketID string) (*User, error)
	// GetUsersByRoom returns the room's members ordered by user id.
	GetUsersByRoom(ctx context.Context, roomID string) ([]*User, error)
	CreateUser(ctx context.Context, data NewUser) (*User, error)
	UpdateUser(ctx context.Context, id int64, patch UserPatch) (*User, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)

	GetRoom(ctx context.Context, id string) (*Room, error)
	CreateRoom(ctx context.Context, data NewRoom) (*Room, error)
	UpdateRoom(ctx context.Context, id string, patch RoomPatch) (*Room, error)
	DeleteRoom(ctx context.Context, id string) (bool, error)

	// GetMessagesByRoom returns at most limit of the newest messages,
	// oldest first. A non-positive limit means DefaultHistoryLimit.
	GetMessagesByRoom(ctx context.Context, roomID string, limit int) ([]*Message, error)
	CreateMessage(ctx context.Context, data NewMessage) (*Message, error)

	Ping(ctx context.Context) error
	Close() error
}
