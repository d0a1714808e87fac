package models

import "strings"

// Message roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// IDs of transcript entries that exist only locally and are never part of
// the history sent upstream.
const (
	WelcomeMessageID      = "welcome"
	NoticeMessageIDPrefix = "notice-"
)

// Message is one transcript entry, user prompt or model reply.
type Message struct {
	ID          string `json:"id"`                    // Unique message ID.
	Role        string `json:"role"`                  // RoleUser or RoleModel.
	Content     string `json:"content"`               // Message text.
	Timestamp   int64  `json:"timestamp"`             // Epoch millis.
	IsStreaming bool   `json:"isStreaming,omitempty"` // Reply still being streamed.
}

// Sendable reports whether the message belongs in the upstream conversation
// history. Welcome lines and synthetic notices do not.
func (m Message) Sendable() bool {
	return m.ID != WelcomeMessageID && !strings.HasPrefix(m.ID, NoticeMessageIDPrefix)
}
