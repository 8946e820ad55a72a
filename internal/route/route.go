// Package route classifies incoming user messages to one of the three
// backend targets: tool agent, knowledge base, or general AI chat.
//
// Classification is pure and deterministic. It never fails and has no
// side effects, which keeps it trivially testable.
package route

import "strings"

// Target identifies which backend handles a message.
type Target int

const (
	// GeneralAI routes to the chat model. This is the default.
	GeneralAI Target = iota
	// Agent routes to the tool agent (time/date/weather commands).
	Agent
	// KnowledgeBase routes to the RAG knowledge-base backend.
	KnowledgeBase
)

// String returns the string representation of the target.
func (t Target) String() string {
	switch t {
	case GeneralAI:
		return "general_ai"
	case Agent:
		return "agent"
	case KnowledgeBase:
		return "knowledge_base"
	default:
		return "unknown"
	}
}

// agentTerms is the fixed vocabulary recognized as tool-agent commands.
// Matched case-insensitively as substrings anywhere in the message.
var agentTerms = []string{
	"time", "current_time", "get_time",
	"date", "current_date", "get_date",
	"weather", "current_weather", "get_weather",
	"all", "all_info", "everything",
}

// kbIndicators mark a message as a knowledge-base query.
var kbIndicators = []string{"kb:", "knowledge:", "search:", "find:", "lookup:"}

// Classify maps raw user text to a backend target.
//
// An agent-vocabulary match always wins, even when a knowledge-base
// indicator is also present ("kb: what time is it" routes to the agent).
// A knowledge-base indicator wins over the default. Everything else is
// general AI chat.
func Classify(text string) Target {
	lower := strings.ToLower(text)

	for _, term := range agentTerms {
		if strings.Contains(lower, term) {
			return Agent
		}
	}

	for _, ind := range kbIndicators {
		if strings.Contains(lower, ind) {
			return KnowledgeBase
		}
	}

	return GeneralAI
}

// CleanQuery strips the first knowledge-base indicator from the text and
// returns the remainder, trimmed. Text without an indicator is returned
// trimmed but otherwise unchanged, so the function is safe to call on any
// classified message.
func CleanQuery(text string) string {
	lower := strings.ToLower(text)
	for _, ind := range kbIndicators {
		if i := strings.Index(lower, ind); i >= 0 {
			return strings.TrimSpace(text[i+len(ind):])
		}
	}
	return strings.TrimSpace(text)
}
