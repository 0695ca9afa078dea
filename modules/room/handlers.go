package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/study-rooms/domain/room"
	"github.com/example/study-rooms/events"
)

func (c *Coordinator) handleCreateRoom(ctx context.Context, connID string, raw json.RawMessage) error {
	var p CreateRoomPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	nickname, err := ValidateNickname(p.Nickname)
	if err != nil {
		return invalidFormat(err.Error())
	}
	name, err := ValidateRoomName(p.RoomName)
	if err != nil {
		return invalidFormat(err.Error())
	}
	topic, err := ValidateTopic(p.RoomTopic)
	if err != nil {
		return invalidFormat(err.Error())
	}

	// One user per connection: drop any previous membership first.
	if err := c.leave(ctx, connID); err != nil {
		return err
	}

	r, err := c.createUniqueRoom(ctx, name, topic)
	if err != nil {
		return err
	}

	unlock := c.locks.Lock(r.ID)
	defer unlock()

	user, err := c.store.CreateUser(ctx, domain.NewUser{
		Username: nickname,
		SocketID: domain.Ptr(connID),
		RoomID:   domain.Ptr(r.ID),
		Status:   domain.StatusFocused,
		IsHost:   true,
	})
	if err != nil {
		// Nobody else can be in the room yet, so drop it with the host.
		if _, derr := c.store.DeleteRoom(ctx, r.ID); derr != nil {
			c.logger.Error("Failed to delete orphaned room", "roomId", r.ID, "error", derr)
		}
		return fmt.Errorf("failed to create host: %w", err)
	}
	if _, err := c.systemMessage(ctx, r.ID, fmt.Sprintf("%s created the room", nickname)); err != nil {
		return err
	}

	c.send(connID, EventRoomCreated, RoomCreated{RoomID: r.ID, Room: r, User: user})
	c.emit(events.KindRoomCreated, r.ID, user, r.Name)
	c.logger.Info("Room created", "roomId", r.ID, "host", nickname)
	return nil
}

// createUniqueRoom generates codes until one is free in the store.
func (c *Coordinator) createUniqueRoom(ctx context.Context, name, topic string) (*domain.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := c.newCode()
		r, err := c.store.CreateRoom(ctx, domain.NewRoom{ID: code, Name: name, Topic: domain.Ptr(topic)})
		if errors.Is(err, domain.ErrRoomExists) {
			c.logger.Debug("Room code collision", "code", code, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("no free room code after %d attempts", maxCodeAttempts)
}

func (c *Coordinator) handleJoinRoom(ctx context.Context, connID string, raw json.RawMessage) error {
	var p JoinRoomPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	nickname, err := ValidateNickname(p.Nickname)
	if err != nil {
		return invalidFormat(err.Error())
	}
	if !IsValidRoomCode(p.RoomID) {
		return ErrRoomNotFound
	}

	// The target is verified before the current room is left.
	current, unlock, err := c.lockForJoin(ctx, connID, p.RoomID)
	if err != nil {
		return err
	}
	defer unlock()

	r, err := c.store.GetRoom(ctx, p.RoomID)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load room: %w", err)
	}

	if current != nil && roomOf(current) == r.ID {
		return c.sendRoomState(ctx, connID, r, current)
	}
	if current != nil {
		if err := c.leaveLocked(ctx, connID, current); err != nil {
			return err
		}
	}

	user, err := c.store.CreateUser(ctx, domain.NewUser{
		Username: nickname,
		SocketID: domain.Ptr(connID),
		RoomID:   domain.Ptr(r.ID),
		Status:   domain.StatusFocused,
		IsHost:   false,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	members, err := c.store.GetUsersByRoom(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}
	history, err := c.store.GetMessagesByRoom(ctx, r.ID, c.historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	joinMsg, err := c.systemMessage(ctx, r.ID, fmt.Sprintf("%s joined the room", nickname))
	if err != nil {
		return err
	}

	c.send(connID, EventRoomJoined, RoomJoined{Room: r, User: user, Members: members, Messages: history})
	c.broadcastToRoom(ctx, r.ID, connID, EventMemberJoined, MemberJoined{User: user, Message: joinMsg})
	c.emit(events.KindMemberJoined, r.ID, user, "")
	c.logger.Info("User joined room", "roomId", r.ID, "userId", user.ID)
	return nil
}

func (c *Coordinator) handleLeaveRoom(ctx context.Context, connID string, _ json.RawMessage) error {
	return c.leave(ctx, connID)
}

// currentUser returns the user bound to connID, or nil when there is none.
func (c *Coordinator) currentUser(ctx context.Context, connID string) (*domain.User, error) {
	u, err := c.store.GetUserBySocket(ctx, connID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return u, nil
}

func roomOf(u *domain.User) string {
	if u == nil || !u.InRoom() {
		return ""
	}
	return *u.RoomID
}

// lockForJoin locks target together with the caller's current room and
// returns the caller's user as read under those locks.
func (c *Coordinator) lockForJoin(ctx context.Context, connID, target string) (*domain.User, func(), error) {
	for {
		before, err := c.currentUser(ctx, connID)
		if err != nil {
			return nil, nil, err
		}
		unlock := c.locks.LockAll(target, roomOf(before))

		u, err := c.currentUser(ctx, connID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if roomOf(u) == roomOf(before) {
			return u, unlock, nil
		}
		unlock()
	}
}

// sendRoomState replies room_joined with the room as it stands, for a user
// joining the room it is already in.
func (c *Coordinator) sendRoomState(ctx context.Context, connID string, r *domain.Room, u *domain.User) error {
	members, err := c.store.GetUsersByRoom(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}
	history, err := c.store.GetMessagesByRoom(ctx, r.ID, c.historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	c.send(connID, EventRoomJoined, RoomJoined{Room: r, User: u, Members: members, Messages: history})
	return nil
}

// leave removes the user bound to connID, handing host duty to the first
// remaining member or deleting the room when nobody is left. It is a no-op
// when the connection has no user.
func (c *Coordinator) leave(ctx context.Context, connID string) error {
	u, err := c.currentUser(ctx, connID)
	if err != nil || u == nil {
		return err
	}
	if !u.InRoom() {
		return c.leaveLocked(ctx, connID, u)
	}

	unlock := c.locks.Lock(*u.RoomID)
	defer unlock()

	// Re-read under the lock.
	u, err = c.currentUser(ctx, connID)
	if err != nil || u == nil {
		return err
	}
	return c.leaveLocked(ctx, connID, u)
}

// leaveLocked is leave for a resolved user whose room lock is held.
func (c *Coordinator) leaveLocked(ctx context.Context, connID string, u *domain.User) error {
	if !u.InRoom() {
		if _, err := c.store.DeleteUser(ctx, u.ID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	}
	roomID := *u.RoomID

	leaveMsg, err := c.systemMessage(ctx, roomID, fmt.Sprintf("%s left the room", u.Username))
	if err != nil {
		return err
	}

	members, err := c.store.GetUsersByRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}
	others := make([]*domain.User, 0, len(members))
	for _, m := range members {
		if m.ID != u.ID {
			others = append(others, m)
		}
	}

	switch {
	case len(others) == 0:
		if _, err := c.store.DeleteRoom(ctx, roomID); err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		c.emit(events.KindRoomClosed, roomID, u, "")
		c.logger.Info("Room closed", "roomId", roomID)
	case u.IsHost:
		successor := others[0]
		if _, err := c.store.UpdateUser(ctx, successor.ID, domain.UserPatch{IsHost: domain.Ptr(true)}); err != nil {
			return fmt.Errorf("failed to promote host: %w", err)
		}
		hostMsg, err := c.systemMessage(ctx, roomID, fmt.Sprintf("%s is now the host", successor.Username))
		if err != nil {
			return err
		}
		c.broadcastToRoom(ctx, roomID, "", EventHostChanged, HostChanged{NewHostID: successor.ID, Message: hostMsg})
		c.emit(events.KindHostChanged, roomID, successor, "")
	}

	c.broadcastToRoom(ctx, roomID, connID, EventMemberLeft, MemberLeft{UserID: u.ID, Message: leaveMsg})

	if _, err := c.store.DeleteUser(ctx, u.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	c.emit(events.KindMemberLeft, roomID, u, "")
	c.logger.Info("User left room", "roomId", roomID, "userId", u.ID)
	return nil
}

func (c *Coordinator) handleChatMessage(ctx context.Context, connID string, raw json.RawMessage) error {
	var p ChatMessagePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	return c.withMember(ctx, connID, func(u *domain.User) error {
		text, err := ValidateMessage(p.Text)
		if err != nil {
			return invalidFormat(err.Error())
		}
		msg, err := c.store.CreateMessage(ctx, domain.NewMessage{
			RoomID:   *u.RoomID,
			UserID:   domain.Ptr(u.ID),
			Username: domain.Ptr(u.Username),
			Text:     text,
			Type:     domain.KindUser,
		})
		if err != nil {
			return fmt.Errorf("failed to store message: %w", err)
		}

		c.send(connID, EventMessageSent, MessageEvent{Message: msg})
		c.broadcastToRoom(ctx, *u.RoomID, connID, EventNewMessage, MessageEvent{Message: msg})
		c.emit(events.KindMessagePosted, *u.RoomID, u, "")
		return nil
	})
}

func (c *Coordinator) handleStatusChange(ctx context.Context, connID string, raw json.RawMessage) error {
	var p StatusChangePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	return c.withMember(ctx, connID, func(u *domain.User) error {
		if !p.Status.Valid() {
			return ErrInvalidStatus
		}
		if _, err := c.store.UpdateUser(ctx, u.ID, domain.UserPatch{Status: domain.Ptr(p.Status)}); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}

		c.broadcastToRoom(ctx, *u.RoomID, "", EventStatusChanged, StatusChanged{UserID: u.ID, Status: p.Status})
		c.emit(events.KindStatusChanged, *u.RoomID, u, string(p.Status))
		return nil
	})
}

func (c *Coordinator) handleTimerStart(ctx context.Context, connID string, _ json.RawMessage) error {
	return c.withHost(ctx, connID, func(u *domain.User, r *domain.Room) error {
		duration := time.Duration(r.ActiveDuration()) * time.Second
		end := c.now().UTC().Add(duration)
		updated, err := c.store.UpdateRoom(ctx, r.ID, domain.RoomPatch{
			TimerState:   domain.Ptr(domain.TimerRunning),
			TimerEndTime: &end,
		})
		if err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		msg, err := c.systemMessage(ctx, r.ID, fmt.Sprintf("Timer started by %s", u.Username))
		if err != nil {
			return err
		}

		c.broadcastToRoom(ctx, r.ID, "", EventTimerStarted, TimerEvent{Room: updated, Message: msg})
		c.emit(events.KindTimerStarted, r.ID, u, string(updated.TimerMode))
		return nil
	})
}

func (c *Coordinator) handleTimerPause(ctx context.Context, connID string, _ json.RawMessage) error {
	return c.withHost(ctx, connID, func(u *domain.User, r *domain.Room) error {
		remaining := 0
		if r.TimerEndTime != nil {
			remaining = int(r.TimerEndTime.Sub(c.now()) / time.Second)
			if remaining < 0 {
				remaining = 0
			}
		}

		patch := domain.RoomPatch{TimerState: domain.Ptr(domain.TimerPaused)}
		if r.TimerMode == domain.ModeBreak {
			patch.BreakDuration = domain.Ptr(remaining)
		} else {
			patch.StudyDuration = domain.Ptr(remaining)
		}
		updated, err := c.store.UpdateRoom(ctx, r.ID, patch)
		if err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		msg, err := c.systemMessage(ctx, r.ID, fmt.Sprintf("Timer paused by %s", u.Username))
		if err != nil {
			return err
		}

		c.broadcastToRoom(ctx, r.ID, "", EventTimerPaused, TimerEvent{
			Room:             updated,
			Message:          msg,
			RemainingSeconds: domain.Ptr(remaining),
		})
		c.emit(events.KindTimerPaused, r.ID, u, fmt.Sprintf("%ds remaining", remaining))
		return nil
	})
}

func (c *Coordinator) handleTimerReset(ctx context.Context, connID string, _ json.RawMessage) error {
	return c.withHost(ctx, connID, func(u *domain.User, r *domain.Room) error {
		updated, err := c.store.UpdateRoom(ctx, r.ID, domain.RoomPatch{
			TimerState:    domain.Ptr(domain.TimerStopped),
			StudyDuration: domain.Ptr(domain.DefaultStudyDuration),
			BreakDuration: domain.Ptr(domain.DefaultBreakDuration),
		})
		if err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		msg, err := c.systemMessage(ctx, r.ID, fmt.Sprintf("Timer reset by %s", u.Username))
		if err != nil {
			return err
		}

		c.broadcastToRoom(ctx, r.ID, "", EventTimerReset, TimerEvent{Room: updated, Message: msg})
		c.emit(events.KindTimerReset, r.ID, u, "")
		return nil
	})
}

func (c *Coordinator) handleTimerToggleMode(ctx context.Context, connID string, _ json.RawMessage) error {
	return c.withHost(ctx, connID, func(u *domain.User, r *domain.Room) error {
		mode := r.TimerMode.Toggle()
		updated, err := c.store.UpdateRoom(ctx, r.ID, domain.RoomPatch{
			TimerState: domain.Ptr(domain.TimerStopped),
			TimerMode:  domain.Ptr(mode),
		})
		if err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}

		text := "Study time started"
		if mode == domain.ModeBreak {
			text = "Break time started"
		}
		msg, err := c.systemMessage(ctx, r.ID, text)
		if err != nil {
			return err
		}

		c.broadcastToRoom(ctx, r.ID, "", EventTimerModeChanged, TimerEvent{Room: updated, Message: msg})
		c.emit(events.KindTimerModeChange, r.ID, u, string(mode))
		return nil
	})
}
