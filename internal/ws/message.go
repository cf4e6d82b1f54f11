package ws

import (
	"time"

	"github.com/linguachat/internal/model"
)

type EventType string

const (
	// Client -> server
	EventJoinChat   EventType = "join_chat"
	EventLeaveChat  EventType = "leave_chat"
	EventNewMessage EventType = "new_message"

	// Server -> client
	EventChatJoined     EventType = "chat_joined"
	EventChatLeft       EventType = "chat_left"
	EventDeliveryFailed EventType = "delivery_failed"
	EventError          EventType = "error"
)

// IncomingMessage is what the client sends to the server.
// LanguageCode may be empty; the router then detects the source language.
type IncomingMessage struct {
	Type         EventType `json:"type"`
	ChatID       string    `json:"chat_id,omitempty"`
	Content      string    `json:"content,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// MessagePayload is a per-recipient rendering of a chat message. Content is
// in RenderedLanguage, which equals SourceLanguage unless the message was
// translated for this recipient.
type MessagePayload struct {
	ID               string            `json:"id"`
	ChatID           string            `json:"chat_id"`
	SenderID         string            `json:"sender_id"`
	Content          string            `json:"content"`
	SourceLanguage   string            `json:"source_language"`
	RenderedLanguage string            `json:"rendered_language"`
	Translated       bool              `json:"translated"`
	Seq              int64             `json:"seq"`
	CreatedAt        time.Time         `json:"created_at"`
	Sender           *model.UserPublic `json:"sender,omitempty"`
}

// ChatMembershipPayload acknowledges join/leave.
type ChatMembershipPayload struct {
	ChatID string `json:"chat_id"`
}

// DeliveryFailedPayload tells the sender their message was not persisted.
type DeliveryFailedPayload struct {
	ChatID string `json:"chat_id"`
	Reason string `json:"reason"`
}

// ErrorPayload carries a per-operation rejection. The connection stays open.
type ErrorPayload struct {
	Operation string `json:"operation"`
	ChatID    string `json:"chat_id,omitempty"`
	Error     string `json:"error"`
}
