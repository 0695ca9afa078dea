package room

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	domain "github.com/example/study-rooms/domain/room"
)

// Inbound message types.
const (
	TypeCreateRoom      = "create_room"
	TypeJoinRoom        = "join_room"
	TypeLeaveRoom       = "leave_room"
	TypeChatMessage     = "chat_message"
	TypeStatusChange    = "status_change"
	TypeTimerStart      = "timer_start"
	TypeTimerPause      = "timer_pause"
	TypeTimerReset      = "timer_reset"
	TypeTimerToggleMode = "timer_toggle_mode"
)

// Outbound event types.
const (
	EventConnectionEstablished = "connection_established"
	EventRoomCreated           = "room_created"
	EventRoomJoined            = "room_joined"
	EventMemberJoined          = "member_joined"
	EventMemberLeft            = "member_left"
	EventHostChanged           = "host_changed"
	EventMessageSent           = "message_sent"
	EventNewMessage            = "new_message"
	EventStatusChanged         = "status_changed"
	EventTimerStarted          = "timer_started"
	EventTimerPaused           = "timer_paused"
	EventTimerReset            = "timer_reset"
	EventTimerModeChanged      = "timer_mode_changed"
	EventError                 = "error"
)

// Validation limits
const (
	MaxNicknameLength = 50
	MaxRoomNameLength = 100
	MaxTopicLength    = 100
	MaxMessageLength  = 5000
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is an event sent to a client.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// CreateRoomPayload is the payload of create_room.
type CreateRoomPayload struct {
	Nickname  string `json:"nickname"`
	RoomName  string `json:"roomName"`
	RoomTopic string `json:"roomTopic,omitempty"`
}

// JoinRoomPayload is the payload of join_room.
type JoinRoomPayload struct {
	Nickname string `json:"nickname"`
	RoomID   string `json:"roomId"`
}

// ChatMessagePayload is the payload of chat_message.
type ChatMessagePayload struct {
	Text string `json:"text"`
}

// StatusChangePayload is the payload of status_change.
type StatusChangePayload struct {
	Status domain.Status `json:"status"`
}

// ConnectionEstablished is sent once per connection.
type ConnectionEstablished struct {
	SocketID string `json:"socketId"`
}

// RoomCreated replies to create_room.
type RoomCreated struct {
	RoomID string       `json:"roomId"`
	Room   *domain.Room `json:"room"`
	User   *domain.User `json:"user"`
}

// RoomJoined replies to join_room.
type RoomJoined struct {
	Room     *domain.Room      `json:"room"`
	User     *domain.User      `json:"user"`
	Members  []*domain.User    `json:"members"`
	Messages []*domain.Message `json:"messages"`
}

// MemberJoined is broadcast when a user joins.
type MemberJoined struct {
	User    *domain.User    `json:"user"`
	Message *domain.Message `json:"message"`
}

// MemberLeft is broadcast when a user leaves.
type MemberLeft struct {
	UserID  int64           `json:"userId"`
	Message *domain.Message `json:"message"`
}

// HostChanged is broadcast when host duty passes to another member.
type HostChanged struct {
	NewHostID int64           `json:"newHostId"`
	Message   *domain.Message `json:"message"`
}

// MessageEvent carries a chat message (message_sent and new_message).
type MessageEvent struct {
	Message *domain.Message `json:"message"`
}

// StatusChanged is broadcast when a member changes status.
type StatusChanged struct {
	UserID int64         `json:"userId"`
	Status domain.Status `json:"status"`
}

// TimerEvent carries a room snapshot after a timer transition.
type TimerEvent struct {
	Room             *domain.Room    `json:"room"`
	Message          *domain.Message `json:"message"`
	RemainingSeconds *int            `json:"remainingSeconds,omitempty"`
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ProtocolError is an error reported verbatim to the sender.
type ProtocolError struct {
	Message string
	Details any
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// Precondition errors.
var (
	ErrNotInRoom     = &ProtocolError{Message: "You are not in a room"}
	ErrRoomNotFound  = &ProtocolError{Message: "Room not found"}
	ErrNotHost       = &ProtocolError{Message: "Only the host can control the timer"}
	ErrInvalidStatus = &ProtocolError{Message: "Invalid status"}
)

// Validation errors.
var (
	ErrNicknameEmpty    = errors.New("nickname cannot be empty")
	ErrNicknameTooLong  = errors.New("nickname exceeds maximum length")
	ErrRoomNameEmpty    = errors.New("room name cannot be empty")
	ErrRoomNameTooLong  = errors.New("room name exceeds maximum length")
	ErrTopicTooLong     = errors.New("room topic exceeds maximum length")
	ErrRoomCodeInvalid  = errors.New("room code must be 6 characters from A-Z and 0-9")
	ErrMessageEmpty     = errors.New("message cannot be empty")
	ErrMessageTooLong   = errors.New("message exceeds maximum length")
	ErrInvalidCharacter = errors.New("text contains invalid characters")
)

func invalidFormat(details any) *ProtocolError {
	return &ProtocolError{Message: "Invalid message format", Details: details}
}

// decodePayload unmarshals raw into dest. A missing payload decodes as an
// empty object.
func decodePayload(raw json.RawMessage, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return invalidFormat(err.Error())
	}
	return nil
}

func validateText(s string, max int, empty, tooLong error) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", empty
	}
	if !utf8.ValidString(s) {
		return "", ErrInvalidCharacter
	}
	if utf8.RuneCountInString(s) > max {
		return "", tooLong
	}
	return s, nil
}

// ValidateNickname trims and validates a nickname.
func ValidateNickname(nickname string) (string, error) {
	return validateText(nickname, MaxNicknameLength, ErrNicknameEmpty, ErrNicknameTooLong)
}

// ValidateRoomName trims and validates a room name.
func ValidateRoomName(name string) (string, error) {
	return validateText(name, MaxRoomNameLength, ErrRoomNameEmpty, ErrRoomNameTooLong)
}

// ValidateTopic trims a topic, substituting the default when blank.
func ValidateTopic(topic string) (string, error) {
	topic, err := validateText(topic, MaxTopicLength, nil, ErrTopicTooLong)
	if err != nil {
		return "", err
	}
	if topic == "" {
		return domain.DefaultTopic, nil
	}
	return topic, nil
}

// ValidateMessage trims and validates chat text.
func ValidateMessage(text string) (string, error) {
	return validateText(text, MaxMessageLength, ErrMessageEmpty, ErrMessageTooLong)
}
