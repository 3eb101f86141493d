package types

import (
	"encoding/json"
)

// MaxMessageLength bounds a chat message body in characters.
const MaxMessageLength = 4000

// Client -> server event types
const (
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "joinRoom"
	EventSendMessage  = "sendMessage"
	EventLeaveRoom    = "leaveRoom"
)

// Server -> client event types
const (
	EventAuthenticated = "authenticated"
	EventNewMessage    = "newMessage"
	EventRoomJoined    = "roomJoined"
	EventRoomLeft      = "roomLeft"
	EventError         = "error"
)

// Error codes carried by ErrorEvent
const (
	CodeAuthenticationFailed = "authentication_failed"
	CodeNotAuthorized        = "not_authorized"
	CodeNotJoined            = "not_joined"
	CodeInvalidRequest       = "invalid_request"
	CodeNotFound             = "not_found"
	CodePersistenceFailed    = "persistence_failed"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal"
)

// ClientEvent is the closed set of events a client may send.
// Only the types in this file implement it.
type ClientEvent interface {
	EventType() string
}

// AuthenticateEvent carries the credential when it was not presented
// on the upgrade request.
type AuthenticateEvent struct {
	Token string `json:"token" validate:"required"`
}

// JoinRoomEvent asks to join the room of a course.
type JoinRoomEvent struct {
	CourseID string `json:"courseId" validate:"required,entity_id"`
}

// SendMessageEvent posts a message to a joined room.
type SendMessageEvent struct {
	CourseID string `json:"courseId" validate:"required,entity_id"`
	Message  string `json:"message" validate:"required"`
}

// LeaveRoomEvent leaves a room. Leaving a room never joined is a no-op.
type LeaveRoomEvent struct {
	CourseID string `json:"courseId" validate:"required,entity_id"`
}

func (AuthenticateEvent) EventType() string { return EventAuthenticate }
func (JoinRoomEvent) EventType() string     { return EventJoinRoom }
func (SendMessageEvent) EventType() string  { return EventSendMessage }
func (LeaveRoomEvent) EventType() string    { return EventLeaveRoom }

type envelope struct {
	Type string `json:"type"`
}

// DecodeClientEvent parses one inbound frame into its concrete event type.
// Field validation is left to the caller.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformedEvent
	}

	var event ClientEvent
	var err error
	switch env.Type {
	case EventAuthenticate:
		var e AuthenticateEvent
		err = json.Unmarshal(data, &e)
		event = e
	case EventJoinRoom:
		var e JoinRoomEvent
		err = json.Unmarshal(data, &e)
		event = e
	case EventSendMessage:
		var e SendMessageEvent
		err = json.Unmarshal(data, &e)
		event = e
	case EventLeaveRoom:
		var e LeaveRoomEvent
		err = json.Unmarshal(data, &e)
		event = e
	default:
		return nil, ErrUnknownEventType
	}
	if err != nil {
		return nil, ErrMalformedEvent
	}
	return event, nil
}

// AuthenticatedEvent confirms the identity bound to the connection.
type AuthenticatedEvent struct {
	Type string    `json:"type"`
	User *Identity `json:"user"`
}

// NewMessageEvent is the fan-out payload for a persisted chat message.
type NewMessageEvent struct {
	Type    string       `json:"type"`
	Message *ChatMessage `json:"message"`
}

// RoomEvent acknowledges a join or leave to the acting connection.
type RoomEvent struct {
	Type     string `json:"type"`
	CourseID string `json:"courseId"`
}

// ErrorEvent is unicast to the connection whose action failed.
type ErrorEvent struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Error    string `json:"error"`
	CourseID string `json:"courseId,omitempty"`
}

func NewAuthenticatedEvent(identity *Identity) *AuthenticatedEvent {
	return &AuthenticatedEvent{Type: EventAuthenticated, User: identity}
}

func NewMessageBroadcast(message *ChatMessage) *NewMessageEvent {
	return &NewMessageEvent{Type: EventNewMessage, Message: message}
}

func NewRoomEvent(eventType, courseID string) *RoomEvent {
	return &RoomEvent{Type: eventType, CourseID: courseID}
}

func NewErrorEvent(code, reason, courseID string) *ErrorEvent {
	return &ErrorEvent{Type: EventError, Code: code, Error: reason, CourseID: courseID}
}
