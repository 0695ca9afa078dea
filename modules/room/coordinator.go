package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	domain "github.com/example/study-rooms/domain/room"
	"github.com/example/study-rooms/events"
	"github.com/example/study-rooms/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
)

// handlerFunc processes one inbound message for a connection.
type handlerFunc func(ctx context.Context, connID string, payload json.RawMessage) error

type handler struct {
	fn      handlerFunc
	failure string // generic reply when the handler fails unexpectedly
}

// Coordinator applies protocol messages to room state and fans out the
// resulting events. Handlers touching the same room are serialized.
type Coordinator struct {
	store        domain.Store
	registry     *registry.Registry
	locks        *roomLocks
	handlers     map[string]handler
	newCode      CodeGenerator
	now          func() time.Time
	logger       types.Logger
	activity     func(events.RoomActivityEvent)
	historyLimit int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithCodeGenerator overrides the room code generator.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(c *Coordinator) {
		c.newCode = gen
	}
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithActivity registers a callback invoked after every successful transition.
func WithActivity(fn func(events.RoomActivityEvent)) Option {
	return func(c *Coordinator) {
		c.activity = fn
	}
}

// WithHistoryLimit sets how many messages a joining user receives.
func WithHistoryLimit(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// NewCoordinator creates a coordinator over the given store and registry.
func NewCoordinator(store domain.Store, reg *registry.Registry, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		store:        store,
		registry:     reg,
		locks:        newRoomLocks(),
		now:          time.Now,
		logger:       nopLogger{},
		historyLimit: domain.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newCode == nil {
		gen, err := NewCodeGenerator()
		if err != nil {
			return nil, err
		}
		c.newCode = gen
	}

	c.handlers = map[string]handler{
		TypeCreateRoom:      {c.handleCreateRoom, "Failed to create room"},
		TypeJoinRoom:        {c.handleJoinRoom, "Failed to join room"},
		TypeLeaveRoom:       {c.handleLeaveRoom, "Failed to leave room"},
		TypeChatMessage:     {c.handleChatMessage, "Failed to send message"},
		TypeStatusChange:    {c.handleStatusChange, "Failed to change status"},
		TypeTimerStart:      {c.handleTimerStart, "Failed to start timer"},
		TypeTimerPause:      {c.handleTimerPause, "Failed to pause timer"},
		TypeTimerReset:      {c.handleTimerReset, "Failed to reset timer"},
		TypeTimerToggleMode: {c.handleTimerToggleMode, "Failed to toggle timer mode"},
	}
	return c, nil
}

// Connect greets a freshly registered connection with its id.
func (c *Coordinator) Connect(_ context.Context, connID string) {
	c.send(connID, EventConnectionEstablished, ConnectionEstablished{SocketID: connID})
}

// Handle decodes and dispatches one inbound frame. Failures are reported to
// the sender and never escape.
func (c *Coordinator) Handle(ctx context.Context, connID string, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic while handling message",
				"connId", connID, "panic", r, "stack", string(debug.Stack()))
			c.send(connID, EventError, ErrorPayload{Message: "Error processing message"})
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reportError(connID, "", invalidFormat(err.Error()))
		return
	}
	h, ok := c.handlers[env.Type]
	if !ok {
		if env.Type == "" {
			c.reportError(connID, "", invalidFormat("missing message type"))
		} else {
			c.reportError(connID, "", invalidFormat(fmt.Sprintf("unknown message type %q", env.Type)))
		}
		return
	}

	if err := h.fn(ctx, connID, env.Payload); err != nil {
		c.reportError(connID, h.failure, err)
	}
}

// Disconnect drops the connection and runs the leave transition for it.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	c.registry.Unregister(connID)
	if err := c.leave(ctx, connID); err != nil {
		c.logger.Error("Failed to clean up after disconnect", "connId", connID, "error", err)
	}
}

// SendError replies to connID with an error event outside of a handler.
func (c *Coordinator) SendError(connID, message string) {
	c.send(connID, EventError, ErrorPayload{Message: message})
}

func (c *Coordinator) reportError(connID, failure string, err error) {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		c.logger.Debug("Rejected message", "connId", connID, "reason", perr.Message)
		c.send(connID, EventError, ErrorPayload{Message: perr.Message, Details: perr.Details})
		return
	}
	if failure == "" {
		failure = "Error processing message"
	}
	c.logger.Error(failure, "connId", connID, "error", err)
	c.send(connID, EventError, ErrorPayload{Message: failure})
}

// memberOf resolves the user bound to connID and requires room membership.
func (c *Coordinator) memberOf(ctx context.Context, connID string) (*domain.User, error) {
	u, err := c.store.GetUserBySocket(ctx, connID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrNotInRoom
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if !u.InRoom() {
		return nil, ErrNotInRoom
	}
	return u, nil
}

// withMember runs fn for the acting member while holding the room lock.
func (c *Coordinator) withMember(ctx context.Context, connID string, fn func(u *domain.User) error) error {
	u, err := c.memberOf(ctx, connID)
	if err != nil {
		return err
	}
	unlock := c.locks.Lock(*u.RoomID)
	defer unlock()

	// Re-read under the lock: the host flag may have moved while waiting.
	u, err = c.memberOf(ctx, connID)
	if err != nil {
		return err
	}
	return fn(u)
}

// withHost is withMember restricted to the room's host, with the room loaded.
func (c *Coordinator) withHost(ctx context.Context, connID string, fn func(u *domain.User, r *domain.Room) error) error {
	return c.withMember(ctx, connID, func(u *domain.User) error {
		if !u.IsHost {
			return ErrNotHost
		}
		r, err := c.store.GetRoom(ctx, *u.RoomID)
		if errors.Is(err, domain.ErrNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load room: %w", err)
		}
		return fn(u, r)
	})
}

func (c *Coordinator) systemMessage(ctx context.Context, roomID, text string) (*domain.Message, error) {
	msg, err := c.store.CreateMessage(ctx, domain.NewMessage{
		RoomID: roomID,
		Text:   text,
		Type:   domain.KindSystem,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create system message: %w", err)
	}
	return msg, nil
}

func (c *Coordinator) emit(kind string, roomID string, u *domain.User, detail string) {
	if c.activity == nil {
		return
	}
	event := events.RoomActivityEvent{
		Kind:      kind,
		RoomID:    roomID,
		Detail:    detail,
		Timestamp: c.now().UTC(),
	}
	if u != nil {
		event.UserID = u.ID
		event.Username = u.Username
	}
	c.activity(event)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)             {}
func (nopLogger) Info(string, ...any)              {}
func (nopLogger) Warn(string, ...any)              {}
func (nopLogger) Error(string, ...any)             {}
func (l nopLogger) With(...any) types.Logger       { return l }
func (l nopLogger) WithModule(string) types.Logger { return l }
func (l nopLogger) WithError(error) types.Logger   { return l }
