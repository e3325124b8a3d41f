package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

type MessageType string

const (
	MessageTypeChat       MessageType = "message"
	MessageTypeUserJoined MessageType = "user_joined"
	MessageTypeUserLeft   MessageType = "user_left"
	MessageTypeHistory    MessageType = "message_history"
)

const (
	MinContentsChars = 1
	MaxContentsChars = 2000
)

var ErrContentsLength = errors.New("contents must be between 1 and 2000 characters")

// Message is one chat event as it travels through the log, the fanout bus and
// the client connections. Messages are immutable once constructed.
type Message struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id,omitempty"`
	Username  string      `json:"username"`
	Contents  string      `json:"contents,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MessageHistory is the snapshot sent to a client right after joining.
// Username is the display name assigned to the joining client itself.
type MessageHistory struct {
	Type     MessageType `json:"type"`
	Messages []Message   `json:"messages"`
	Username string      `json:"username"`
}

// InboundPayload is what clients send over the wire.
type InboundPayload struct {
	Contents string `json:"contents"`
}

func ValidateContents(contents string) error {
	n := utf8.RuneCountInString(contents)
	if n < MinContentsChars || n > MaxContentsChars {
		return ErrContentsLength
	}
	return nil
}

func NewChatMessage(id, username, contents string) *Message {
	return &Message{
		Type:      MessageTypeChat,
		ID:        id,
		Username:  username,
		Contents:  contents,
		Timestamp: time.Now().UTC(),
	}
}

func NewUserJoined(username string) *Message {
	return &Message{
		Type:      MessageTypeUserJoined,
		Username:  username,
		Timestamp: time.Now().UTC(),
	}
}

func NewUserLeft(username string) *Message {
	return &Message{
		Type:      MessageTypeUserLeft,
		Username:  username,
		Timestamp: time.Now().UTC(),
	}
}

func NewHistory(messages []Message, username string) *MessageHistory {
	if messages == nil {
		messages = []Message{}
	}
	return &MessageHistory{
		Type:     MessageTypeHistory,
		Messages: messages,
		Username: username,
	}
}
