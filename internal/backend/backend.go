// Package backend defines the uniform contract shared by the three AI
// backend adapters (chat model, knowledge base, tool agent) and the
// error taxonomy their failures are normalized into.
package backend

import "context"

// StreamFunc receives one text fragment from a streaming adapter.
// Returning an error aborts the stream; adapters must stop producing
// and propagate the error.
type StreamFunc func(ctx context.Context, text string) error

// Backend identities used for circuit breakers and metrics keys.
const (
	ChatID      = "chat"
	KnowledgeID = "knowledge_base"
	AgentID     = "birmingham-agent"
)
