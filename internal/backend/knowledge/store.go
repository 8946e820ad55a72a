package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/vulcanlabs/vulcan/internal/log"
)

// ErrNotFound indicates the referenced knowledge base does not exist.
var ErrNotFound = errors.New("knowledge base not found")

// retrieveTimeout bounds vector search queries so a slow index cannot
// stall the request.
const retrieveTimeout = 10 * time.Second

// Store manages the knowledge-base catalog and its documents in
// PostgreSQL, with pgvector similarity search over document embeddings.
//
// Store is safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   log.Logger
}

// NewStore creates a Store over an existing connection pool. The
// embedder generates document and query vectors; it is required for
// AddDocument and Retrieve.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("connection pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Store{
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// ListForUser returns the user's ACTIVE knowledge bases, oldest first.
// The first entry is the fallback target when a session has no stored
// knowledge base.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]KnowledgeBase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, status, created_at, updated_at
		FROM knowledge_bases
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at`,
		userID, string(StatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	defer rows.Close()

	var bases []KnowledgeBase
	for rows.Next() {
		var kb KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.Name, &kb.Description, &kb.Status, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge base: %w", err)
		}
		bases = append(bases, kb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge bases: %w", err)
	}
	return bases, nil
}

// Get returns one knowledge base by id regardless of status.
func (s *Store) Get(ctx context.Context, id string) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, status, created_at, updated_at
		FROM knowledge_bases
		WHERE id = $1`,
		id,
	).Scan(&kb.ID, &kb.Name, &kb.Description, &kb.Status, &kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get knowledge base %s: %w", id, err)
	}
	return &kb, nil
}

// AddDocument embeds and upserts one document into its knowledge base.
func (s *Store) AddDocument(ctx context.Context, doc Document) error {
	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, knowledge_base_id, content, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE(NULLIF($6::timestamptz, '0001-01-01'::timestamptz), now()))
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		doc.ID, doc.KnowledgeBaseID, doc.Content, metadataJSON, embedding, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document",
		"id", doc.ID,
		"knowledge_base_id", doc.KnowledgeBaseID,
		"content_length", len(doc.Content),
	)
	return nil
}

// Retrieve returns the limit most similar documents in the knowledge
// base, best match first. The caller clamps limit; Retrieve trusts it.
func (s *Store) Retrieve(ctx context.Context, kbID, query string, limit int) ([]Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, retrieveTimeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.pool.Query(queryCtx, `
		SELECT id, knowledge_base_id, content, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE knowledge_base_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		embedding, kbID, limit,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			doc          Document
			metadataJSON []byte
			similarity   float32
		)
		if err := rows.Scan(&doc.ID, &doc.KnowledgeBaseID, &doc.Content, &metadataJSON, &doc.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				s.logger.Warn("unreadable document metadata", "id", doc.ID, "error", err)
				doc.Metadata = nil
			}
		}
		results = append(results, Result{Document: doc, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return results, nil
}

// DeleteDocument removes one document.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("delete document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// embed generates one embedding vector.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	if s.embedder == nil {
		return pgvector.Vector{}, errors.New("embedder is required")
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("empty embedding returned")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
