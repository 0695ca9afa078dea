package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/study-rooms/domain/room"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic-lock retries for read-modify-write updates.
const maxTxRetries = 5

// RedisStore implements room.Store on Redis.
//
// Key layout (all keys carry the configured prefix):
//
//	user:seq                 INCR counter for user ids
//	message:seq              INCR counter for message ids
//	user:{id}                JSON user
//	socket:{socketID}        user id bound to a connection
//	room:{code}              JSON room
//	room:{code}:members      sorted set of user ids, scored by id
//	room:{code}:messages     list of JSON messages, oldest first
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxHistory int
	now        func() time.Time
}

var _ room.Store = (*RedisStore)(nil)

// NewRedisStore creates a store backed by the given client.
func NewRedisStore(client *redis.Client, prefix string, maxHistory int) *RedisStore {
	if maxHistory <= 0 {
		maxHistory = room.DefaultHistoryLimit
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

func (s *RedisStore) userKey(id int64) string {
	return s.prefix + "user:" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) socketKey(socketID string) string {
	return s.prefix + "socket:" + socketID
}

func (s *RedisStore) roomKey(id string) string {
	return s.prefix + "room:" + id
}

func (s *RedisStore) membersKey(roomID string) string {
	return s.prefix + "room:" + roomID + ":members"
}

func (s *RedisStore) messagesKey(roomID string) string {
	return s.prefix + "room:" + roomID + ":messages"
}

// GetUser returns a user by ID.
func (s *RedisStore) GetUser(ctx context.Context, id int64) (*room.User, error) {
	var u room.User
	if err := s.getJSON(ctx, s.client, s.userKey(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserBySocket returns the user bound to a connection.
func (s *RedisStore) GetUserBySocket(ctx context.Context, socketID string) (*room.User, error) {
	id, err := s.client.Get(ctx, s.socketKey(socketID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, room.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get socket binding: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUsersByRoom returns all users in a room ordered by ID.
func (s *RedisStore) GetUsersByRoom(ctx context.Context, roomID string) ([]*room.User, error) {
	ids, err := s.client.ZRange(ctx, s.membersKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list room members: %w", err)
	}
	users := make([]*room.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + "user:" + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load room members: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var u room.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		users = append(users, &u)
	}
	return users, nil
}

// CreateUser stores a new user with the next ID.
func (s *RedisStore) CreateUser(ctx context.Context, data room.NewUser) (*room.User, error) {
	id, err := s.client.Incr(ctx, s.prefix+"user:seq").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate user id: %w", err)
	}
	u := &room.User{
		ID:       id,
		Username: data.Username,
		SocketID: data.SocketID,
		RoomID:   data.RoomID,
		Status:   data.Status,
		IsHost:   data.IsHost,
	}
	if u.Status == "" {
		u.Status = room.StatusFocused
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.userKey(id), raw, 0)
		if u.SocketID != nil {
			pipe.Set(ctx, s.socketKey(*u.SocketID), id, 0)
		}
		if u.InRoom() {
			pipe.ZAdd(ctx, s.membersKey(*u.RoomID), redis.Z{Score: float64(id), Member: id})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// UpdateUser applies a patch to an existing user.
func (s *RedisStore) UpdateUser(ctx context.Context, id int64, patch room.UserPatch) (*room.User, error) {
	key := s.userKey(id)
	var updated room.User
	err := s.update(ctx, key, func(tx *redis.Tx) (any, error) {
		if err := s.getJSON(ctx, tx, key, &updated); err != nil {
			return nil, err
		}
		patch.Apply(&updated)
		return &updated, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteUser removes a user. It reports whether the user existed.
func (s *RedisStore) DeleteUser(ctx context.Context, id int64) (bool, error) {
	u, err := s.GetUser(ctx, id)
	if errors.Is(err, room.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var boundID int64 = -1
	if u.SocketID != nil {
		boundID, err = s.client.Get(ctx, s.socketKey(*u.SocketID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return false, fmt.Errorf("failed to get socket binding: %w", err)
		}
	}

	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.userKey(id))
		if u.SocketID != nil && boundID == id {
			pipe.Del(ctx, s.socketKey(*u.SocketID))
		}
		if u.InRoom() {
			pipe.ZRem(ctx, s.membersKey(*u.RoomID), id)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return del.Val() > 0, nil
}

// GetRoom returns a room by code.
func (s *RedisStore) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	var r room.Room
	if err := s.getJSON(ctx, s.client, s.roomKey(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoom stores a new room with default timer settings.
func (s *RedisStore) CreateRoom(ctx context.Context, data room.NewRoom) (*room.Room, error) {
	r := data.Build(s.now().UTC())
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode room: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.roomKey(r.ID), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if !ok {
		return nil, room.ErrRoomExists
	}
	return r, nil
}

// UpdateRoom applies a patch to an existing room.
func (s *RedisStore) UpdateRoom(ctx context.Context, id string, patch room.RoomPatch) (*room.Room, error) {
	key := s.roomKey(id)
	var updated room.Room
	err := s.update(ctx, key, func(tx *redis.Tx) (any, error) {
		if err := s.getJSON(ctx, tx, key, &updated); err != nil {
			return nil, err
		}
		patch.Apply(&updated)
		return &updated, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRoom removes a room with its membership index and message history.
func (s *RedisStore) DeleteRoom(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.roomKey(id))
		pipe.Del(ctx, s.membersKey(id), s.messagesKey(id))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete room: %w", err)
	}
	return del.Val() > 0, nil
}

// GetMessagesByRoom returns the newest messages of a room, oldest first.
func (s *RedisStore) GetMessagesByRoom(ctx context.Context, roomID string, limit int) ([]*room.Message, error) {
	if limit <= 0 {
		limit = room.DefaultHistoryLimit
	}
	values, err := s.client.LRange(ctx, s.messagesKey(roomID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	messages := make([]*room.Message, 0, len(values))
	for _, raw := range values {
		var msg room.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// CreateMessage appends a message to its room's history.
func (s *RedisStore) CreateMessage(ctx context.Context, data room.NewMessage) (*room.Message, error) {
	id, err := s.client.Incr(ctx, s.prefix+"message:seq").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate message id: %w", err)
	}
	msg := &room.Message{
		ID:        id,
		RoomID:    data.RoomID,
		UserID:    data.UserID,
		Username:  data.Username,
		Text:      data.Text,
		Type:      data.Type,
		Timestamp: s.now().UTC(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	key := s.messagesKey(data.RoomID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, raw)
		pipe.LTrim(ctx, key, int64(-s.maxHistory), -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// update runs an optimistic read-modify-write on key, retrying when the key
// changes underneath the transaction.
func (s *RedisStore) update(ctx context.Context, key string, modify func(tx *redis.Tx) (any, error)) error {
	txf := func(tx *redis.Tx) error {
		value, err := modify(tx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, room.ErrNotFound) {
			return fmt.Errorf("failed to update %s: %w", key, err)
		}
		return err
	}
	return fmt.Errorf("failed to update %s: too much contention", key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) getJSON(ctx context.Context, c getter, key string, dest any) error {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return room.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
