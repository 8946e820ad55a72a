package integration

import "time"

// FragmentType tags one streamed fragment.
type FragmentType string

const (
	FragmentStatus        FragmentType = "status"
	FragmentResponse      FragmentType = "response"
	FragmentAgentResponse FragmentType = "agent_response"
	FragmentError         FragmentType = "error"
)

// Error tags carried in an error fragment's metadata under "error_type".
const (
	ErrTagAgent        = "agent_error"
	ErrTagNoKnowledge  = "no_knowledge_bases"
	ErrTagBreakerOpen  = "circuit_breaker_open"
	ErrTagSessionWrite = "session_error"
	ErrTagBackend      = "backend_error"
	ErrTagInvalid      = "invalid_request"
	ErrTagInternal     = "internal_error"
)

// Fragment is one unit of the streamed reply. Fragments are emitted
// strictly in production order; status and error fragments are never
// persisted.
type Fragment struct {
	Type      FragmentType   `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Streaming bool           `json:"streaming,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func statusFragment(content string) Fragment {
	return Fragment{
		Type:      FragmentStatus,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func statusFragmentWith(content string, metadata map[string]any) Fragment {
	f := statusFragment(content)
	f.Metadata = metadata
	return f
}

func responseFragment(content string) Fragment {
	return Fragment{
		Type:      FragmentResponse,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Streaming: true,
	}
}

func agentFragment(content string, metadata map[string]any) Fragment {
	return Fragment{
		Type:      FragmentAgentResponse,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

func errorFragment(tag, content string) Fragment {
	return Fragment{
		Type:      FragmentError,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]any{"error_type": tag},
	}
}
