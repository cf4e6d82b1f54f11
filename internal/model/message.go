package model

import "time"

// ChatMessage is immutable once Seq is assigned. Seq is strictly increasing
// per chat with no gaps or duplicates, even under concurrent senders.
type ChatMessage struct {
	ID           string      `json:"id"`
	ChatID       string      `json:"chat_id"`
	SenderID     string      `json:"sender_id"`
	Content      string      `json:"content"`
	LanguageCode string      `json:"language_code"`
	Seq          int64       `json:"seq"`
	CreatedAt    time.Time   `json:"created_at"`
	Sender       *UserPublic `json:"sender,omitempty"`
}
