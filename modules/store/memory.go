package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/study-rooms/domain/room"
)

// MemoryStore provides thread-safe in-process storage for users, rooms and messages.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]*room.User
	sockets    map[string]int64 // socketID -> userID
	rooms      map[string]*room.Room
	messages   map[string][]*room.Message // roomID -> messages, oldest first
	nextUserID int64
	nextMsgID  int64
	maxHistory int
	now        func() time.Time
}

var _ room.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store that keeps at most
// maxHistory messages per room.
func NewMemoryStore(maxHistory int) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = room.DefaultHistoryLimit
	}
	return &MemoryStore{
		users:      make(map[int64]*room.User),
		sockets:    make(map[string]int64),
		rooms:      make(map[string]*room.Room),
		messages:   make(map[string][]*room.Message),
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

// GetUser returns a user by ID.
func (s *MemoryStore) GetUser(_ context.Context, id int64) (*room.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, room.ErrNotFound
	}
	return copyUser(u), nil
}

// GetUserBySocket returns the user bound to a connection.
func (s *MemoryStore) GetUserBySocket(_ context.Context, socketID string) (*room.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sockets[socketID]
	if !ok {
		return nil, room.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

// GetUsersByRoom returns all users in a room ordered by ID.
func (s *MemoryStore) GetUsersByRoom(_ context.Context, roomID string) ([]*room.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*room.User, 0)
	for _, u := range s.users {
		if u.RoomID != nil && *u.RoomID == roomID {
			result = append(result, copyUser(u))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// CreateUser stores a new user with the next ID.
func (s *MemoryStore) CreateUser(_ context.Context, data room.NewUser) (*room.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUserID++
	u := &room.User{
		ID:       s.nextUserID,
		Username: data.Username,
		SocketID: copyString(data.SocketID),
		RoomID:   copyString(data.RoomID),
		Status:   data.Status,
		IsHost:   data.IsHost,
	}
	if u.Status == "" {
		u.Status = room.StatusFocused
	}
	s.users[u.ID] = u
	if u.SocketID != nil {
		s.sockets[*u.SocketID] = u.ID
	}
	return copyUser(u), nil
}

// UpdateUser applies a patch to an existing user.
func (s *MemoryStore) UpdateUser(_ context.Context, id int64, patch room.UserPatch) (*room.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, room.ErrNotFound
	}
	patch.Apply(u)
	return copyUser(u), nil
}

// DeleteUser removes a user. It reports whether the user existed.
func (s *MemoryStore) DeleteUser(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, nil
	}
	if u.SocketID != nil && s.sockets[*u.SocketID] == id {
		delete(s.sockets, *u.SocketID)
	}
	delete(s.users, id)
	return true, nil
}

// GetRoom returns a room by code.
func (s *MemoryStore) GetRoom(_ context.Context, id string) (*room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, room.ErrNotFound
	}
	return copyRoom(r), nil
}

// CreateRoom stores a new room with default timer settings.
func (s *MemoryStore) CreateRoom(_ context.Context, data room.NewRoom) (*room.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[data.ID]; exists {
		return nil, room.ErrRoomExists
	}
	r := data.Build(s.now())
	r.Topic = copyString(data.Topic)
	s.rooms[r.ID] = r
	return copyRoom(r), nil
}

// UpdateRoom applies a patch to an existing room.
func (s *MemoryStore) UpdateRoom(_ context.Context, id string, patch room.RoomPatch) (*room.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, room.ErrNotFound
	}
	patch.Apply(r)
	return copyRoom(r), nil
}

// DeleteRoom removes a room and its message history.
func (s *MemoryStore) DeleteRoom(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return false, nil
	}
	delete(s.rooms, id)
	delete(s.messages, id)
	return true, nil
}

// GetMessagesByRoom returns the newest messages of a room, oldest first.
func (s *MemoryStore) GetMessagesByRoom(_ context.Context, roomID string, limit int) ([]*room.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = room.DefaultHistoryLimit
	}
	messages := s.messages[roomID]
	if limit > len(messages) {
		limit = len(messages)
	}

	start := len(messages) - limit
	result := make([]*room.Message, 0, limit)
	for _, msg := range messages[start:] {
		result = append(result, copyMessage(msg))
	}
	return result, nil
}

// CreateMessage appends a message to its room's history.
func (s *MemoryStore) CreateMessage(_ context.Context, data room.NewMessage) (*room.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMsgID++
	msg := &room.Message{
		ID:        s.nextMsgID,
		RoomID:    data.RoomID,
		UserID:    copyInt64(data.UserID),
		Username:  copyString(data.Username),
		Text:      data.Text,
		Type:      data.Type,
		Timestamp: s.now(),
	}

	messages := append(s.messages[data.RoomID], msg)
	// Trim to max history
	if len(messages) > s.maxHistory {
		messages = messages[len(messages)-s.maxHistory:]
	}
	s.messages[data.RoomID] = messages
	return copyMessage(msg), nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func copyUser(u *room.User) *room.User {
	c := *u
	c.SocketID = copyString(u.SocketID)
	c.RoomID = copyString(u.RoomID)
	return &c
}

func copyRoom(r *room.Room) *room.Room {
	c := *r
	c.Topic = copyString(r.Topic)
	if r.TimerEndTime != nil {
		end := *r.TimerEndTime
		c.TimerEndTime = &end
	}
	return &c
}

func copyMessage(m *room.Message) *room.Message {
	c := *m
	c.UserID = copyInt64(m.UserID)
	c.Username = copyString(m.Username)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
