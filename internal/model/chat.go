package model

import "time"

type ChatMode string

// Режимы чата фиксируются при создании и дальше не меняются.
const (
	ChatModeOneOnOne ChatMode = "oneOnOne"
	ChatModeGroup    ChatMode = "group"
	ChatModeAI       ChatMode = "ai"
)

// Valid reports whether m is one of the known chat modes.
func (m ChatMode) Valid() bool {
	switch m {
	case ChatModeOneOnOne, ChatModeGroup, ChatModeAI:
		return true
	}
	return false
}

type Chat struct {
	ID           string    `json:"id"`
	Mode         ChatMode  `json:"mode"`
	LanguageCode string    `json:"language_code"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type ChatParticipant struct {
	ChatID   string    `json:"chat_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}
