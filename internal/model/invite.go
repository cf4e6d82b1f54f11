package model

import "time"

// InviteToken is a capability granting join rights to one chat.
// For oneOnOne chats at most one distinct joiner is admitted.
type InviteToken struct {
	Token      string    `json:"token"`
	ChatID     string    `json:"chat_id"`
	Mode       ChatMode  `json:"mode"`
	SingleUse  bool      `json:"single_use"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	ConsumedBy []string  `json:"consumed_by,omitempty"`
}

// Expired reports whether the token has an expiry in the past.
func (t *InviteToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// WasConsumedBy reports whether userID already joined through this token.
func (t *InviteToken) WasConsumedBy(userID string) bool {
	for _, id := range t.ConsumedBy {
		if id == userID {
			return true
		}
	}
	return false
}
