// Package knowledge implements the knowledge-base backend: a catalog of
// per-user knowledge bases, a pgvector document store, and a streaming
// retrieval-augmented generation adapter over both.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/vulcanlabs/vulcan/internal/backend"
	"github.com/vulcanlabs/vulcan/internal/log"
)

// Generation defaults for grounded answers. A lower temperature than the
// general chat path keeps answers close to the retrieved context.
const (
	DefaultModelMaxTokens   = 2048
	DefaultModelTemperature = 0.3
)

const systemPrompt = `You are a retrieval assistant. Answer the question using only the
numbered context documents provided. Cite nothing outside them. If the
context does not contain the answer, say so plainly instead of guessing.`

// Retriever returns the most similar documents for a query.
// *Store satisfies this; tests substitute stubs.
type Retriever interface {
	Retrieve(ctx context.Context, kbID, query string, limit int) ([]Result, error)
}

// Config configures the retrieval-augmented generation adapter.
type Config struct {
	Genkit    *genkit.Genkit
	Logger    log.Logger
	Retriever Retriever

	// ModelName is the provider-qualified generation model.
	ModelName string

	// Generation parameters. Zero values use the defaults above.
	MaxTokens   int
	Temperature float32
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Adapter streams grounded answers from a knowledge base.
// Stateless and safe for concurrent use.
type Adapter struct {
	g           *genkit.Genkit
	logger      log.Logger
	retriever   Retriever
	modelName   string
	maxTokens   int
	temperature float32
}

// New creates the knowledge-base adapter.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultModelMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultModelTemperature
	}

	a := &Adapter{
		g:           cfg.Genkit,
		logger:      cfg.Logger,
		retriever:   cfg.Retriever,
		modelName:   cfg.ModelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}

	a.logger.Info("knowledge adapter initialized", "model", a.modelName)
	return a, nil
}

// Metadata returns the retrieval metadata recorded on persisted
// assistant messages for a knowledge-base turn.
func (*Adapter) Metadata(kbID, originalQuery string) map[string]any {
	return map[string]any{
		"knowledge_base_id": kbID,
		"query_type":        "rag",
		"original_query":    originalQuery,
	}
}

// Stream retrieves up to maxResults documents from the knowledge base,
// generates a grounded answer, and forwards each text delta to fn.
// maxResults is clamped via ClampMaxResults. Citations (document ids and
// similarity scores) are logged, not streamed.
//
// Errors are normalized into the backend taxonomy. An fn error aborts
// the stream and is returned unclassified.
func (a *Adapter) Stream(ctx context.Context, kbID, query string, maxResults int, fn backend.StreamFunc) error {
	if kbID == "" {
		return fmt.Errorf("%w: missing knowledge base id", backend.ErrInvalidRequest)
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: empty query", backend.ErrInvalidRequest)
	}

	limit := ClampMaxResults(maxResults)

	results, err := a.retriever.Retrieve(ctx, kbID, query, limit)
	if err != nil {
		return backend.Classify(fmt.Errorf("retrieve from %s: %w", kbID, err))
	}

	a.logCitations(kbID, results)

	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(buildPrompt(query, results)),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(a.temperature),
			MaxOutputTokens: int32(a.maxTokens),
		}),
	}

	var aborted error
	if fn != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			if err := fn(ctx, text); err != nil {
				aborted = err
				return err
			}
			return nil
		}))
	}

	if _, err := genkit.Generate(ctx, a.g, opts...); err != nil {
		if aborted != nil {
			return aborted
		}
		return backend.Classify(err)
	}
	return nil
}

// buildPrompt assembles the numbered context block and the question.
func buildPrompt(query string, results []Result) string {
	var b strings.Builder
	b.WriteString("Context documents:\n")
	if len(results) == 0 {
		b.WriteString("(no documents matched the query)\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Document.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

// logCitations records which documents grounded the answer. This is the
// citation channel: metadata stays in the logs, never in the stream.
func (a *Adapter) logCitations(kbID string, results []Result) {
	if len(results) == 0 {
		a.logger.Debug("no documents retrieved", "knowledge_base_id", kbID)
		return
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = fmt.Sprintf("%s(%.2f)", r.Document.ID, r.Similarity)
	}
	a.logger.Debug("retrieved citations",
		"knowledge_base_id", kbID,
		"documents", strings.Join(ids, ","),
	)
}
