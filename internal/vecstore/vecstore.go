// Package vecstore stores and searches item embeddings in PostgreSQL
// with pgvector.
//
// Every search is scoped to an owner so one user's question can never
// retrieve another user's content. The stored metadata carries a text
// excerpt for each item, so result rows double as LLM context and no
// second content fetch is needed at query time.
package vecstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/secondbrain/internal/log"
)

// ContentType classifies the source of a saved item.
type ContentType string

// Known content types.
const (
	TypeDocument ContentType = "document"
	TypeTweet    ContentType = "tweet"
	TypeVideo    ContentType = "video"
	TypeLink     ContentType = "link"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case TypeDocument, TypeTweet, TypeVideo, TypeLink:
		return true
	}
	return false
}

// ExcerptLimit caps the stored text excerpt, in runes.
const ExcerptLimit = 1500

// Metadata is stored alongside each item vector.
type Metadata struct {
	OwnerID     string
	ContentType ContentType
	Excerpt     string
}

// Candidate is a single similarity-search hit.
type Candidate struct {
	ID          string
	Similarity  float32
	OwnerID     string
	ContentType ContentType
	Excerpt     string
}

// Querier is the subset of database operations Store needs. *Queries
// implements it against pgx; tests substitute a mock.
type Querier interface {
	UpsertItem(ctx context.Context, arg UpsertItemParams) error
	SearchItems(ctx context.Context, arg SearchItemsParams) ([]ItemRow, error)
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context, limit int32) ([]ItemRow, error)
}

// Store provides owner-scoped vector search over saved items.
// Safe for concurrent use.
type Store struct {
	queries Querier
	logger  log.Logger
}

// New creates a Store on top of the given querier.
func New(queries Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{queries: queries, logger: logger}
}

// Upsert stores one item vector with its metadata. The excerpt is
// truncated to ExcerptLimit runes before storage.
func (s *Store) Upsert(ctx context.Context, itemID string, vector []float32, meta Metadata) error {
	if itemID == "" {
		return fmt.Errorf("item id must not be empty")
	}
	if !meta.ContentType.Valid() {
		return fmt.Errorf("invalid content type %q", meta.ContentType)
	}

	err := s.queries.UpsertItem(ctx, UpsertItemParams{
		ID:          itemID,
		OwnerID:     meta.OwnerID,
		ContentType: string(meta.ContentType),
		Excerpt:     truncateExcerpt(meta.Excerpt),
		Embedding:   pgvector.NewVector(vector),
	})
	if err != nil {
		return fmt.Errorf("upserting item %q: %w", itemID, err)
	}

	s.logger.Debug("upserted item embedding", "id", itemID, "owner", meta.OwnerID, "type", meta.ContentType)
	return nil
}

// Search returns up to topK candidates owned by ownerID, ordered by
// descending cosine similarity. No local re-ranking is applied.
func (s *Store) Search(ctx context.Context, queryVector []float32, ownerID string, topK int32) ([]Candidate, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.queries.SearchItems(ctx, SearchItemsParams{
		QueryEmbedding: pgvector.NewVector(queryVector),
		OwnerID:        ownerID,
		ResultLimit:    topK,
	})
	if err != nil {
		return nil, fmt.Errorf("searching items for owner %q: %w", ownerID, err)
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, Candidate{
			ID:          row.ID,
			Similarity:  row.Similarity,
			OwnerID:     row.OwnerID,
			ContentType: ContentType(row.ContentType),
			Excerpt:     row.Excerpt,
		})
	}
	return candidates, nil
}

// Delete removes one item's embedding.
func (s *Store) Delete(ctx context.Context, itemID string) error {
	if err := s.queries.DeleteItem(ctx, itemID); err != nil {
		return fmt.Errorf("deleting item %q: %w", itemID, err)
	}
	s.logger.Debug("deleted item embedding", "id", itemID)
	return nil
}

// ListAll returns up to limit stored items, newest first. Used by the
// reindex command to re-embed stored excerpts.
func (s *Store) ListAll(ctx context.Context, limit int32) ([]Candidate, error) {
	const maxListLimit = 10000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.queries.ListItems(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	items := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		items = append(items, Candidate{
			ID:          row.ID,
			OwnerID:     row.OwnerID,
			ContentType: ContentType(row.ContentType),
			Excerpt:     row.Excerpt,
		})
	}
	return items, nil
}

func truncateExcerpt(text string) string {
	runes := []rune(text)
	if len(runes) > ExcerptLimit {
		return string(runes[:ExcerptLimit])
	}
	return text
}
