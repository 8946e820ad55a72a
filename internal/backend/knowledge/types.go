package knowledge

import "time"

// Status of a knowledge base in its lifecycle.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusCreating Status = "CREATING"
	StatusDeleting Status = "DELETING"
	StatusFailed   Status = "FAILED"
)

// KnowledgeBase is one catalog entry. Only ACTIVE bases are eligible
// for retrieval.
type KnowledgeBase struct {
	ID          string    `json:"knowledge_base_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Document is one stored knowledge document.
type Document struct {
	ID              string            `json:"document_id"`
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	Content         string            `json:"content"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Result is one retrieval hit with its cosine similarity score (0-1).
type Result struct {
	Document   Document
	Similarity float32
}

// Bounds for the retrieval result count.
const (
	DefaultMaxResults = 5
	MinMaxResults     = 1
	MaxMaxResults     = 20
)

// ClampMaxResults normalizes a caller-supplied result bound. Zero means
// unset and takes the default; out-of-range values are pulled to the
// nearest bound.
func ClampMaxResults(n int) int {
	switch {
	case n == 0:
		return DefaultMaxResults
	case n < MinMaxResults:
		return MinMaxResults
	case n > MaxMaxResults:
		return MaxMaxResults
	default:
		return n
	}
}
