package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the "type" discriminator shared by every realtime frame.
type EventType string

const (
	// client -> server
	CommandJoinRoom  EventType = "join_room"
	CommandLeaveRoom EventType = "leave_room"
	CommandPing      EventType = "ping"

	// server -> client
	EventJoined            EventType = "joined"
	EventNewMessage        EventType = "new_message"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventError             EventType = "error"
	EventPong              EventType = "pong"
)

// Event is a server-to-client realtime frame. The set of implementations is closed.
type Event interface {
	Type() EventType
	sealed()
}

// JoinedEvent acknowledges a join_room announcement.
type JoinedEvent struct {
	RoomID string
}

// NewMessageEvent carries a freshly persisted message.
type NewMessageEvent struct {
	Message Message
}

// ParticipantJoinedEvent reports a successful room join.
type ParticipantJoinedEvent struct {
	User Identity
}

// ParticipantLeftEvent reports an explicit room leave.
type ParticipantLeftEvent struct {
	User Identity
}

// ErrorEvent tells a client its last frame was rejected. The connection stays open.
type ErrorEvent struct {
	Message string
}

// PongEvent answers an application-level ping.
type PongEvent struct{}

func (JoinedEvent) Type() EventType            { return EventJoined }
func (NewMessageEvent) Type() EventType        { return EventNewMessage }
func (ParticipantJoinedEvent) Type() EventType { return EventParticipantJoined }
func (ParticipantLeftEvent) Type() EventType   { return EventParticipantLeft }
func (ErrorEvent) Type() EventType             { return EventError }
func (PongEvent) Type() EventType              { return EventPong }

func (JoinedEvent) sealed()            {}
func (NewMessageEvent) sealed()        {}
func (ParticipantJoinedEvent) sealed() {}
func (ParticipantLeftEvent) sealed()   {}
func (ErrorEvent) sealed()             {}
func (PongEvent) sealed()              {}

func (e JoinedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   EventType `json:"type"`
		RoomID string    `json:"roomId"`
	}{e.Type(), e.RoomID})
}

func (e NewMessageEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Message Message   `json:"message"`
	}{e.Type(), e.Message})
}

func (e ParticipantJoinedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		User Identity  `json:"user"`
	}{e.Type(), e.User})
}

func (e ParticipantLeftEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		User Identity  `json:"user"`
	}{e.Type(), e.User})
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Message string    `json:"message"`
	}{e.Type(), e.Message})
}

func (e PongEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
	}{e.Type()})
}

// wireFrame is the union of every field any frame can carry. "message" is an object
// for new_message and a string for error, so it is decoded lazily.
type wireFrame struct {
	Type    EventType       `json:"type"`
	RoomID  string          `json:"roomId"`
	User    *Identity       `json:"user"`
	Token   string          `json:"token"`
	Message json.RawMessage `json:"message"`
}

// DecodeEvent parses a server-to-client frame produced by one of the Event types.
func DecodeEvent(data []byte) (Event, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch f.Type {
	case EventJoined:
		return JoinedEvent{RoomID: f.RoomID}, nil
	case EventNewMessage:
		var msg Message
		if err := json.Unmarshal(f.Message, &msg); err != nil {
			return nil, fmt.Errorf("decode new_message payload: %w", err)
		}
		return NewMessageEvent{Message: msg}, nil
	case EventParticipantJoined, EventParticipantLeft:
		if f.User == nil {
			return nil, fmt.Errorf("decode %s: missing user", f.Type)
		}
		if f.Type == EventParticipantJoined {
			return ParticipantJoinedEvent{User: *f.User}, nil
		}
		return ParticipantLeftEvent{User: *f.User}, nil
	case EventError:
		var text string
		if len(f.Message) > 0 {
			if err := json.Unmarshal(f.Message, &text); err != nil {
				return nil, fmt.Errorf("decode error payload: %w", err)
			}
		}
		return ErrorEvent{Message: text}, nil
	case EventPong:
		return PongEvent{}, nil
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", f.Type)
	}
}

// ClientCommand is a client-to-server frame.
type ClientCommand struct {
	Type   EventType
	RoomID string
	User   *Identity
	Token  string
}

var (
	ErrMalformedCommand = errors.New("malformed message")
	ErrUnknownCommand   = errors.New("unknown message type")
)

// ParseClientCommand decodes and validates a client frame. join_room needs a roomId
// and either a user object with an id or a session token.
func ParseClientCommand(data []byte) (ClientCommand, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientCommand{}, ErrMalformedCommand
	}

	cmd := ClientCommand{Type: f.Type, RoomID: f.RoomID, User: f.User, Token: f.Token}
	switch f.Type {
	case CommandJoinRoom:
		if f.RoomID == "" {
			return ClientCommand{}, fmt.Errorf("%w: roomId is required", ErrMalformedCommand)
		}
		if f.Token == "" && (f.User == nil || f.User.ID == "") {
			return ClientCommand{}, fmt.Errorf("%w: user or token is required", ErrMalformedCommand)
		}
		return cmd, nil
	case CommandLeaveRoom, CommandPing:
		return cmd, nil
	case "":
		return ClientCommand{}, fmt.Errorf("%w: type is required", ErrMalformedCommand)
	default:
		return ClientCommand{}, fmt.Errorf("%w: %q", ErrUnknownCommand, f.Type)
	}
}
