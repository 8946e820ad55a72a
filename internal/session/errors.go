package session

import (
	"errors"
	"strings"
)

// Sentinel errors for session construction and backend operations.
// Check with errors.Is().
var (
	// ErrNotFound indicates the backend has no record for the session ID.
	// Backends must return this (possibly wrapped) for missing records so
	// the Store can distinguish absence from storage failure.
	ErrNotFound = errors.New("session not found")

	// ErrEmptyContent indicates message content is blank after trimming.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrContentTooLong indicates message content exceeds MaxContentLength.
	ErrContentTooLong = errors.New("message content too long")

	// ErrInvalidMessageType indicates an unknown message type.
	ErrInvalidMessageType = errors.New("invalid message type")
)

// validateContent checks message content constraints.
func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len([]rune(content)) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}
