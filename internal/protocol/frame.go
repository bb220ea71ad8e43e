// Package protocol defines the duplex chat envelope shared by the chat core
// and the relay: one JSON object per websocket text message, discriminated
// on the "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeSendMessage     = "send_message"
	TypeGroupMessage    = "group_message"
	TypeTyping          = "typing"
	TypeTypingIndicator = "typing_indicator"
	TypeOnlineMembers   = "online_members"
	TypeError           = "error"
)

// CloseMembershipRevoked is the close code a server uses when the caller was
// removed from the conversation. Clients must not reconnect after it.
const CloseMembershipRevoked = 4003

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the wire envelope. Only the fields relevant to Type are set.
type Frame struct {
	Type     string   `json:"type"`
	Content  string   `json:"content,omitempty"`
	Data     *Message `json:"data,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	IsTyping *bool    `json:"is_typing,omitempty"`
	Members  []string `json:"members,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

func SendMessage(content string) Frame {
	return Frame{Type: TypeSendMessage, Content: content}
}

func Typing(isTyping bool) Frame {
	return Frame{Type: TypeTyping, IsTyping: &isTyping}
}

func GroupMessage(m Message) Frame {
	return Frame{Type: TypeGroupMessage, Data: &m}
}

func TypingIndicator(userID string, isTyping bool) Frame {
	return Frame{Type: TypeTypingIndicator, UserID: userID, IsTyping: &isTyping}
}

func OnlineMembers(members []string) Frame {
	return Frame{Type: TypeOnlineMembers, Members: members}
}

func Error(detail string) Frame {
	return Frame{Type: TypeError, Detail: detail}
}

// Typing reports the is_typing flag, false when absent.
func (f Frame) Typing() bool {
	return f.IsTyping != nil && *f.IsTyping
}

func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses one envelope and checks that the payload required by its
// type is present. Every failure wraps ErrMalformedFrame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Type {
	case TypeSendMessage, TypeOnlineMembers, TypeError:
	case TypeGroupMessage:
		if f.Data == nil || f.Data.ID == "" {
			return Frame{}, fmt.Errorf("%w: group_message without data", ErrMalformedFrame)
		}
	case TypeTyping:
		if f.IsTyping == nil {
			return Frame{}, fmt.Errorf("%w: typing without is_typing", ErrMalformedFrame)
		}
	case TypeTypingIndicator:
		if f.UserID == "" || f.IsTyping == nil {
			return Frame{}, fmt.Errorf("%w: typing_indicator without user_id", ErrMalformedFrame)
		}
	case "":
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}
	return f, nil
}
