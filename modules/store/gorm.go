package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/study-rooms/domain/room"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// userRecord is the persisted form of room.User.
type userRecord struct {
	ID       int64   `gorm:"primaryKey;autoIncrement"`
	Username string  `gorm:"size:50;not null"`
	SocketID *string `gorm:"size:64;index"`
	RoomID   *string `gorm:"size:6;index"`
	Status   string  `gorm:"size:16;not null"`
	IsHost   bool    `gorm:"not null"`
}

// TableName returns the table name for userRecord.
func (userRecord) TableName() string {
	return "users"
}

// roomRecord is the persisted form of room.Room.
type roomRecord struct {
	ID            string  `gorm:"primaryKey;size:6"`
	Name          string  `gorm:"size:100;not null"`
	Topic         *string `gorm:"size:100"`
	TimerState    string  `gorm:"size:16;not null"`
	TimerMode     string  `gorm:"size:16;not null"`
	TimerEndTime  *time.Time
	StudyDuration int `gorm:"not null"`
	BreakDuration int `gorm:"not null"`
	CreatedAt     time.Time
}

// TableName returns the table name for roomRecord.
func (roomRecord) TableName() string {
	return "rooms"
}

// messageRecord is the persisted form of room.Message.
type messageRecord struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	RoomID    string  `gorm:"size:6;not null;index"`
	UserID    *int64
	Username  *string `gorm:"size:50"`
	Text      string  `gorm:"not null"`
	Type      string  `gorm:"size:16;not null"`
	Timestamp time.Time
}

// TableName returns the table name for messageRecord.
func (messageRecord) TableName() string {
	return "messages"
}

// GormStore implements room.Store on top of GORM (SQLite or PostgreSQL).
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ room.Store = (*GormStore)(nil)

// OpenGorm connects to the database for the given driver and runs migrations.
func OpenGorm(driver, dsn string, debug bool) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite" {
		// SQLite allows a single writer; serialize access through one connection.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	return NewGormStore(db)
}

// NewGormStore wraps an open GORM handle and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&userRecord{}, &roomRecord{}, &messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &GormStore{db: db, now: time.Now}, nil
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(ctx context.Context, id int64) (*room.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "failed to find user")
	}
	return rec.toDomain(), nil
}

// GetUserBySocket returns the user bound to a connection.
func (s *GormStore) GetUserBySocket(ctx context.Context, socketID string) (*room.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, "socket_id = ?", socketID).Error; err != nil {
		return nil, notFound(err, "failed to find user by socket")
	}
	return rec.toDomain(), nil
}

// GetUsersByRoom returns all users in a room ordered by ID.
func (s *GormStore) GetUsersByRoom(ctx context.Context, roomID string) ([]*room.User, error) {
	var recs []userRecord
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to find room users: %w", err)
	}
	users := make([]*room.User, 0, len(recs))
	for i := range recs {
		users = append(users, recs[i].toDomain())
	}
	return users, nil
}

// CreateUser inserts a new user.
func (s *GormStore) CreateUser(ctx context.Context, data room.NewUser) (*room.User, error) {
	status := data.Status
	if status == "" {
		status = room.StatusFocused
	}
	rec := userRecord{
		Username: data.Username,
		SocketID: data.SocketID,
		RoomID:   data.RoomID,
		Status:   string(status),
		IsHost:   data.IsHost,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return rec.toDomain(), nil
}

// UpdateUser applies a patch to an existing user.
func (s *GormStore) UpdateUser(ctx context.Context, id int64, patch room.UserPatch) (*room.User, error) {
	var updated *room.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec userRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			return notFound(err, "failed to find user")
		}
		u := rec.toDomain()
		patch.Apply(u)
		rec = userFromDomain(u)
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteUser removes a user. It reports whether the user existed.
func (s *GormStore) DeleteUser(ctx context.Context, id int64) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&userRecord{}, "id = ?", id)
	if err := result.Error; err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return result.RowsAffected > 0, nil
}

// GetRoom returns a room by code.
func (s *GormStore) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	var rec roomRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "failed to find room")
	}
	return rec.toDomain(), nil
}

// CreateRoom inserts a new room with default timer settings.
func (s *GormStore) CreateRoom(ctx context.Context, data room.NewRoom) (*room.Room, error) {
	r := data.Build(s.now().UTC())
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&roomRecord{}).Where("id = ?", data.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check room: %w", err)
		}
		if count > 0 {
			return room.ErrRoomExists
		}
		rec := roomFromDomain(r)
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRoom applies a patch to an existing room.
func (s *GormStore) UpdateRoom(ctx context.Context, id string, patch room.RoomPatch) (*room.Room, error) {
	var updated *room.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec roomRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			return notFound(err, "failed to find room")
		}
		r := rec.toDomain()
		patch.Apply(r)
		rec = roomFromDomain(r)
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRoom removes a room and its messages.
func (s *GormStore) DeleteRoom(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&roomRecord{}, "id = ?", id)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		deleted = result.RowsAffected > 0
		if err := tx.Delete(&messageRecord{}, "room_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete room messages: %w", err)
		}
		return nil
	})
	return deleted, err
}

// GetMessagesByRoom returns the newest messages of a room, oldest first.
func (s *GormStore) GetMessagesByRoom(ctx context.Context, roomID string, limit int) ([]*room.Message, error) {
	if limit <= 0 {
		limit = room.DefaultHistoryLimit
	}
	var recs []messageRecord
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id desc").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}

	messages := make([]*room.Message, len(recs))
	for i := range recs {
		messages[len(recs)-1-i] = recs[i].toDomain()
	}
	return messages, nil
}

// CreateMessage inserts a message stamped with the current time.
func (s *GormStore) CreateMessage(ctx context.Context, data room.NewMessage) (*room.Message, error) {
	rec := messageRecord{
		RoomID:    data.RoomID,
		UserID:    data.UserID,
		Username:  data.Username,
		Text:      data.Text,
		Type:      string(data.Type),
		Timestamp: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return rec.toDomain(), nil
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return room.ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (r *userRecord) toDomain() *room.User {
	return &room.User{
		ID:       r.ID,
		Username: r.Username,
		SocketID: r.SocketID,
		RoomID:   r.RoomID,
		Status:   room.Status(r.Status),
		IsHost:   r.IsHost,
	}
}

func userFromDomain(u *room.User) userRecord {
	return userRecord{
		ID:       u.ID,
		Username: u.Username,
		SocketID: u.SocketID,
		RoomID:   u.RoomID,
		Status:   string(u.Status),
		IsHost:   u.IsHost,
	}
}

func (r *roomRecord) toDomain() *room.Room {
	return &room.Room{
		ID:            r.ID,
		Name:          r.Name,
		Topic:         r.Topic,
		TimerState:    room.TimerState(r.TimerState),
		TimerMode:     room.TimerMode(r.TimerMode),
		TimerEndTime:  r.TimerEndTime,
		StudyDuration: r.StudyDuration,
		BreakDuration: r.BreakDuration,
		CreatedAt:     r.CreatedAt,
	}
}

func roomFromDomain(r *room.Room) roomRecord {
	return roomRecord{
		ID:            r.ID,
		Name:          r.Name,
		Topic:         r.Topic,
		TimerState:    string(r.TimerState),
		TimerMode:     string(r.TimerMode),
		TimerEndTime:  r.TimerEndTime,
		StudyDuration: r.StudyDuration,
		BreakDuration: r.BreakDuration,
		CreatedAt:     r.CreatedAt,
	}
}

func (r *messageRecord) toDomain() *room.Message {
	return &room.Message{
		ID:        r.ID,
		RoomID:    r.RoomID,
		UserID:    r.UserID,
		Username:  r.Username,
		Text:      r.Text,
		Type:      room.MessageKind(r.Type),
		Timestamp: r.Timestamp,
	}
}
