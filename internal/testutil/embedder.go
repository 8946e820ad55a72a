package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// EmbedderDim is the vector dimension of MockEmbedder. It matches the
// documents.embedding column so mock vectors round-trip through pgvector.
const EmbedderDim = 768

// MockEmbedder implements ai.Embedder with deterministic bag-of-words
// vectors: each lowercased token bumps one hashed dimension. Texts that
// share tokens come out cosine-similar, so retrieval tests can assert
// ranking without a live embedding model.
type MockEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
}

// NewMockEmbedder creates a mock embedder.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// FailWith makes every subsequent Embed call fail with err.
// Pass nil to restore normal behavior.
func (m *MockEmbedder) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Embed calls made.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Name implements ai.Embedder.
func (*MockEmbedder) Name() string { return "mock-embedder" }

// Register implements ai.Embedder. No-op for testing.
func (*MockEmbedder) Register(api.Registry) {}

// Embed implements ai.Embedder.
func (m *MockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.mu.Lock()
	m.calls++
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text strings.Builder
		for _, part := range doc.Content {
			text.WriteString(part.Text)
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: embedText(text.String()),
		})
	}
	return resp, nil
}

func embedText(text string) []float32 {
	vec := make([]float32, EmbedderDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%EmbedderDim]++
	}
	return vec
}
