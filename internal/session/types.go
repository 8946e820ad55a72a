// Package session provides durable per-user conversation state.
//
// A Session owns its ordered message history and the user's active
// knowledge-base selection. Sessions are persisted as whole records
// through a pluggable Backend; the Store facade layers ownership checks,
// lazy expiry, and history trimming on top.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
	StatusArchived Status = "archived"
)

// MessageType identifies which side of the conversation produced a message.
type MessageType string

const (
	TypeUser      MessageType = "user"
	TypeAssistant MessageType = "assistant"
	TypeAgent     MessageType = "agent"
	TypeSystem    MessageType = "system"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeUser, TypeAssistant, TypeAgent, TypeSystem:
		return true
	}
	return false
}

const (
	// MaxContentLength caps message content size in characters.
	MaxContentLength = 10000

	// DefaultHistoryCap is the default number of messages retained per
	// session. Oldest messages are evicted first when the cap is hit.
	DefaultHistoryCap = 100

	// DefaultExpiry is the default inactivity window after which a
	// session lazily transitions to expired on read.
	DefaultExpiry = 24 * time.Hour
)

// Message is one immutable conversation turn.
type Message struct {
	ID        string         `json:"message_id"`
	SessionID string         `json:"session_id"`
	Content   string         `json:"content"`
	Type      MessageType    `json:"message_type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage constructs a validated message for a session.
// Content must be non-blank after trimming and at most MaxContentLength
// characters. The message ID and timestamp are generated here.
func NewMessage(sessionID string, mt MessageType, content string, metadata map[string]any) (Message, error) {
	if err := validateContent(content); err != nil {
		return Message{}, err
	}
	if !mt.Valid() {
		return Message{}, ErrInvalidMessageType
	}

	return Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Type:      mt,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}, nil
}

// Session is a durable conversation context owned by one user.
type Session struct {
	ID              string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
	KnowledgeBaseID string    `json:"knowledge_base_id,omitempty"`
	Status          Status    `json:"status"`
	Messages        []Message `json:"messages"`
}

// New creates an active session for a user. kbID may be empty.
func New(userID, kbID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		CreatedAt:       now,
		LastActivity:    now,
		KnowledgeBaseID: kbID,
		Status:          StatusActive,
		Messages:        []Message{},
	}
}

// Touch bumps the last-activity timestamp.
func (s *Session) Touch() {
	s.LastActivity = time.Now().UTC()
}

// ExpiredAfter reports whether the session has been inactive longer than
// the given window.
func (s *Session) ExpiredAfter(window time.Duration) bool {
	return time.Since(s.LastActivity) > window
}

// Append adds a message and evicts the oldest messages beyond cap.
func (s *Session) Append(msg Message, cap int) {
	s.Messages = append(s.Messages, msg)
	if cap > 0 && len(s.Messages) > cap {
		s.Messages = s.Messages[len(s.Messages)-cap:]
	}
	s.Touch()
}

// Recent returns up to n of the most recent messages in chronological order.
func (s *Session) Recent(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if n > len(s.Messages) {
		n = len(s.Messages)
	}
	out := make([]Message, n)
	copy(out, s.Messages[len(s.Messages)-n:])
	return out
}
