// Package ingest saves content items and keeps the vector index in step
// with them.
//
// Adding an item is persist, fetch, embed, index. Fetch failures do not
// lose the item: the title is always indexable, so the pipeline falls back
// to embedding title and link alone.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/koopa0/secondbrain/internal/log"
	"github.com/koopa0/secondbrain/internal/store"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

// ContentStore persists content rows. *store.Store implements it.
type ContentStore interface {
	CreateContent(ctx context.Context, p store.CreateContentParams) (store.Content, error)
	ListContents(ctx context.Context, ownerID uuid.UUID) ([]store.Content, error)
	DeleteContent(ctx context.Context, ownerID, contentID uuid.UUID) error
}

// TextFetcher extracts indexable text from a link. *fetch.Fetcher
// implements it.
type TextFetcher interface {
	ForType(ctx context.Context, t vecstore.ContentType, link string) (string, error)
}

// Embedder produces embedding vectors. *embedding.Service implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// Indexer maintains the vector index. *vecstore.Store implements it.
type Indexer interface {
	Upsert(ctx context.Context, itemID string, vector []float32, meta vecstore.Metadata) error
	Delete(ctx context.Context, itemID string) error
	ListAll(ctx context.Context, limit int32) ([]vecstore.Candidate, error)
}

// Ingestor coordinates content persistence and vector indexing.
type Ingestor struct {
	contents ContentStore
	fetcher  TextFetcher
	embedder Embedder
	index    Indexer
	logger   log.Logger
}

// New creates an ingestor.
func New(contents ContentStore, fetcher TextFetcher, embedder Embedder, index Indexer, logger log.Logger) *Ingestor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{
		contents: contents,
		fetcher:  fetcher,
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// AddParams describes a content item to add.
type AddParams struct {
	OwnerID uuid.UUID
	Link    string
	Type    vecstore.ContentType
	Title   string
	Tags    []string
}

// Add saves a content item and indexes its text.
//
// The row exists before the fetch happens, so a slow or failing external
// site cannot lose the save. When fetching fails, the item is indexed from
// its title and link, which is enough for it to appear in searches.
func (i *Ingestor) Add(ctx context.Context, p AddParams) (store.Content, error) {
	content, err := i.contents.CreateContent(ctx, store.CreateContentParams{
		OwnerID: p.OwnerID,
		Link:    p.Link,
		Type:    p.Type,
		Title:   p.Title,
		Tags:    p.Tags,
	})
	if err != nil {
		return store.Content{}, fmt.Errorf("saving content: %w", err)
	}

	text, err := i.fetcher.ForType(ctx, p.Type, p.Link)
	if err != nil {
		i.logger.Warn("content fetch failed, indexing title only",
			"content_id", content.ID,
			"type", p.Type,
			"error", err)
		text = ""
	}

	indexText := buildIndexText(p.Title, p.Link, text)
	vector := i.embedder.Embed(ctx, indexText)

	if err := i.index.Upsert(ctx, content.ID.String(), vector, vecstore.Metadata{
		OwnerID:     p.OwnerID.String(),
		ContentType: p.Type,
		Excerpt:     indexText,
	}); err != nil {
		return store.Content{}, fmt.Errorf("indexing content: %w", err)
	}

	return content, nil
}

// Remove deletes a content item and its index entry. Returns
// store.ErrNotFound when the item does not exist or belongs to someone
// else.
func (i *Ingestor) Remove(ctx context.Context, ownerID, contentID uuid.UUID) error {
	if err := i.contents.DeleteContent(ctx, ownerID, contentID); err != nil {
		return err
	}

	if err := i.index.Delete(ctx, contentID.String()); err != nil {
		// Row is gone; a stale vector only wastes a search slot until the
		// next reindex.
		i.logger.Warn("removing index entry failed", "content_id", contentID, "error", err)
	}
	return nil
}

// List returns a user's saved contents.
func (i *Ingestor) List(ctx context.Context, ownerID uuid.UUID) ([]store.Content, error) {
	return i.contents.ListContents(ctx, ownerID)
}

// reindexBatchSize is how many items are re-embedded per API call.
const reindexBatchSize = 16

// Reindex re-embeds every indexed item from its stored excerpt, up to
// limit items. Used after changing the embedder model, where old and new
// vectors would not be comparable.
func (i *Ingestor) Reindex(ctx context.Context, limit int32) (int, error) {
	items, err := i.index.ListAll(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing indexed items: %w", err)
	}

	done := 0
	for start := 0; start < len(items); start += reindexBatchSize {
		end := min(start+reindexBatchSize, len(items))
		batch := items[start:end]

		texts := make([]string, len(batch))
		for j, item := range batch {
			texts[j] = item.Excerpt
		}
		vectors := i.embedder.EmbedBatch(ctx, texts)

		for j, item := range batch {
			err := i.index.Upsert(ctx, item.ID, vectors[j], vecstore.Metadata{
				OwnerID:     item.OwnerID,
				ContentType: item.ContentType,
				Excerpt:     item.Excerpt,
			})
			if err != nil {
				return done, fmt.Errorf("reindexing item %s: %w", item.ID, err)
			}
			done++
		}
	}

	return done, nil
}

// buildIndexText combines title, extracted text and link into the excerpt
// that gets embedded and stored.
func buildIndexText(title, link, text string) string {
	if text == "" {
		return fmt.Sprintf("%s (%s)", title, link)
	}
	return fmt.Sprintf("%s: %s", title, text)
}
