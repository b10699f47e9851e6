package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Command is a decoded client-to-server event.
type Command interface {
	Name() string
	command()
}

const (
	CmdJoinChat     = "join-chat"
	CmdLeaveChat    = "leave-chat"
	CmdTypingStart  = "typing:start"
	CmdTypingStop   = "typing:stop"
	CmdMessagesRead = "messages-read"
	CmdCallStart    = "call:start"
	CmdCallAccept   = "call:accept"
	CmdCallReject   = "call:reject"
	CmdCallEnd      = "call:end"
	CmdCallMute     = "call:mute"
	CmdCallUnmute   = "call:unmute"
	CmdCallCamOn    = "call:camera-on"
	CmdCallCamOff   = "call:camera-off"
)

type JoinChat struct{ ChatID uuid.UUID }
type LeaveChat struct{ ChatID uuid.UUID }
type StartTyping struct{ ChatID uuid.UUID }
type StopTyping struct{ ChatID uuid.UUID }
type MarkRead struct{ ChatID uuid.UUID }

type StartCall struct {
	ReceiverID uuid.UUID
	Type       models.CallType
}

// CallAction covers accept, reject, end and the relay-only signals. Action
// is the command name.
type CallAction struct {
	Action string
	CallID uuid.UUID
}

func (JoinChat) Name() string     { return CmdJoinChat }
func (LeaveChat) Name() string    { return CmdLeaveChat }
func (StartTyping) Name() string  { return CmdTypingStart }
func (StopTyping) Name() string   { return CmdTypingStop }
func (MarkRead) Name() string     { return CmdMessagesRead }
func (StartCall) Name() string    { return CmdCallStart }
func (a CallAction) Name() string { return a.Action }

func (JoinChat) command()    {}
func (LeaveChat) command()   {}
func (StartTyping) command() {}
func (StopTyping) command()  {}
func (MarkRead) command()    {}
func (StartCall) command()   {}
func (CallAction) command()  {}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// chatRef accepts either a bare chat id string or {"chatId": "..."}.
func chatRef(data json.RawMessage) (uuid.UUID, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id uuid.UUID
		if err := json.Unmarshal(data, &id); err != nil {
			return uuid.Nil, err
		}
		return requireID(id, "chatId")
	}
	var v struct {
		ChatID uuid.UUID `json:"chatId"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return uuid.Nil, err
	}
	return requireID(v.ChatID, "chatId")
}

func requireID(id uuid.UUID, field string) (uuid.UUID, error) {
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("missing %s", field)
	}
	return id, nil
}

// Decode parses one inbound frame. Unknown event names and payloads that do
// not match the event's schema are rejected, never passed through.
func Decode(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	cmd, err := decodeData(env.Event, env.Data)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	return cmd, nil
}

// EventName extracts the event name of a frame that failed to decode, so
// the error reply can say which command was rejected.
func EventName(raw []byte) string {
	var env envelope
	_ = json.Unmarshal(raw, &env)
	return env.Event
}

func decodeData(name string, data json.RawMessage) (Command, error) {
	switch name {
	case CmdJoinChat, CmdLeaveChat, CmdTypingStart, CmdTypingStop, CmdMessagesRead:
		id, err := chatRef(data)
		if err != nil {
			return nil, err
		}
		switch name {
		case CmdJoinChat:
			return JoinChat{ChatID: id}, nil
		case CmdLeaveChat:
			return LeaveChat{ChatID: id}, nil
		case CmdTypingStart:
			return StartTyping{ChatID: id}, nil
		case CmdTypingStop:
			return StopTyping{ChatID: id}, nil
		default:
			return MarkRead{ChatID: id}, nil
		}

	case CmdCallStart:
		var v struct {
			ReceiverID uuid.UUID       `json:"receiverId"`
			Type       models.CallType `json:"type"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		if _, err := requireID(v.ReceiverID, "receiverId"); err != nil {
			return nil, err
		}
		return StartCall{ReceiverID: v.ReceiverID, Type: v.Type}, nil

	case CmdCallAccept, CmdCallReject, CmdCallEnd, CmdCallMute, CmdCallUnmute, CmdCallCamOn, CmdCallCamOff:
		var v struct {
			CallID uuid.UUID `json:"callId"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		if _, err := requireID(v.CallID, "callId"); err != nil {
			return nil, err
		}
		return CallAction{Action: name, CallID: v.CallID}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, name)
}
