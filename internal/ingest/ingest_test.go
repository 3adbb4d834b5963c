package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/koopa0/secondbrain/internal/store"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

type fakeContents struct {
	created   []store.CreateContentParams
	createErr error
	deleteErr error
	listed    []store.Content
}

func (f *fakeContents) CreateContent(ctx context.Context, p store.CreateContentParams) (store.Content, error) {
	if f.createErr != nil {
		return store.Content{}, f.createErr
	}
	f.created = append(f.created, p)
	return store.Content{
		ID:      uuid.New(),
		OwnerID: p.OwnerID,
		Link:    p.Link,
		Type:    p.Type,
		Title:   p.Title,
		Tags:    p.Tags,
	}, nil
}

func (f *fakeContents) ListContents(ctx context.Context, ownerID uuid.UUID) ([]store.Content, error) {
	return f.listed, nil
}

func (f *fakeContents) DeleteContent(ctx context.Context, ownerID, contentID uuid.UUID) error {
	return f.deleteErr
}

type fakeFetcher struct {
	text string
	err  error
}

func (f *fakeFetcher) ForType(ctx context.Context, t vecstore.ContentType, link string) (string, error) {
	return f.text, f.err
}

type fakeEmbedder struct {
	embedded []string
	batches  [][]string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) []float32 {
	f.embedded = append(f.embedded, text)
	return []float32{1, 0, 0}
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0, 1, 0}
	}
	return out
}

type fakeIndex struct {
	upserts   map[string]vecstore.Metadata
	deleted   []string
	items     []vecstore.Candidate
	upsertErr error
	deleteErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserts: make(map[string]vecstore.Metadata)}
}

func (f *fakeIndex) Upsert(ctx context.Context, itemID string, vector []float32, meta vecstore.Metadata) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts[itemID] = meta
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, itemID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, itemID)
	return nil
}

func (f *fakeIndex) ListAll(ctx context.Context, limit int32) ([]vecstore.Candidate, error) {
	return f.items, nil
}

func TestAddPersistsAndIndexes(t *testing.T) {
	contents := &fakeContents{}
	embedder := &fakeEmbedder{}
	index := newFakeIndex()
	ing := New(contents, &fakeFetcher{text: "A goroutine is a lightweight thread."}, embedder, index, nil)

	owner := uuid.New()
	content, err := ing.Add(context.Background(), AddParams{
		OwnerID: owner,
		Link:    "https://go.dev/tour",
		Type:    vecstore.TypeDocument,
		Title:   "Go Tour",
		Tags:    []string{"go"},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if len(contents.created) != 1 {
		t.Fatalf("created %d rows", len(contents.created))
	}

	meta, ok := index.upserts[content.ID.String()]
	if !ok {
		t.Fatal("content not indexed")
	}
	if meta.OwnerID != owner.String() {
		t.Errorf("indexed owner = %q", meta.OwnerID)
	}
	if !strings.Contains(meta.Excerpt, "Go Tour: A goroutine is a lightweight thread.") {
		t.Errorf("excerpt = %q", meta.Excerpt)
	}
	if len(embedder.embedded) != 1 || !strings.HasPrefix(embedder.embedded[0], "Go Tour:") {
		t.Errorf("embedded texts = %v", embedder.embedded)
	}
}

func TestAddFetchFailureIndexesTitle(t *testing.T) {
	index := newFakeIndex()
	ing := New(&fakeContents{}, &fakeFetcher{err: errors.New("connection refused")}, &fakeEmbedder{}, index, nil)

	content, err := ing.Add(context.Background(), AddParams{
		OwnerID: uuid.New(),
		Link:    "https://unreachable.example.com",
		Type:    vecstore.TypeLink,
		Title:   "Unreachable page",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	meta := index.upserts[content.ID.String()]
	if meta.Excerpt != "Unreachable page (https://unreachable.example.com)" {
		t.Errorf("fallback excerpt = %q", meta.Excerpt)
	}
}

func TestAddStoreErrorPropagates(t *testing.T) {
	ing := New(&fakeContents{createErr: errors.New("db down")}, &fakeFetcher{}, &fakeEmbedder{}, newFakeIndex(), nil)

	if _, err := ing.Add(context.Background(), AddParams{
		OwnerID: uuid.New(),
		Type:    vecstore.TypeDocument,
		Title:   "x",
	}); err == nil {
		t.Fatal("expected error")
	}
}

func TestAddIndexErrorPropagates(t *testing.T) {
	index := newFakeIndex()
	index.upsertErr = errors.New("index down")
	ing := New(&fakeContents{}, &fakeFetcher{text: "text"}, &fakeEmbedder{}, index, nil)

	if _, err := ing.Add(context.Background(), AddParams{
		OwnerID: uuid.New(),
		Type:    vecstore.TypeDocument,
		Title:   "x",
	}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRemoveDeletesRowAndIndex(t *testing.T) {
	index := newFakeIndex()
	ing := New(&fakeContents{}, &fakeFetcher{}, &fakeEmbedder{}, index, nil)

	contentID := uuid.New()
	if err := ing.Remove(context.Background(), uuid.New(), contentID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(index.deleted) != 1 || index.deleted[0] != contentID.String() {
		t.Errorf("index deletions = %v", index.deleted)
	}
}

func TestRemoveNotFound(t *testing.T) {
	ing := New(&fakeContents{deleteErr: store.ErrNotFound}, &fakeFetcher{}, &fakeEmbedder{}, newFakeIndex(), nil)

	err := ing.Remove(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Remove = %v, want ErrNotFound", err)
	}
}

func TestRemoveIndexErrorSwallowed(t *testing.T) {
	index := newFakeIndex()
	index.deleteErr = errors.New("index down")
	ing := New(&fakeContents{}, &fakeFetcher{}, &fakeEmbedder{}, index, nil)

	if err := ing.Remove(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Remove = %v, want nil (row already deleted)", err)
	}
}

func TestReindexBatchesAllItems(t *testing.T) {
	index := newFakeIndex()
	for i := 0; i < reindexBatchSize+3; i++ {
		index.items = append(index.items, vecstore.Candidate{
			ID:          uuid.NewString(),
			OwnerID:     "owner",
			ContentType: vecstore.TypeDocument,
			Excerpt:     "excerpt",
		})
	}
	embedder := &fakeEmbedder{}
	ing := New(&fakeContents{}, &fakeFetcher{}, embedder, index, nil)

	n, err := ing.Reindex(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if n != reindexBatchSize+3 {
		t.Errorf("reindexed %d items, want %d", n, reindexBatchSize+3)
	}
	if len(embedder.batches) != 2 {
		t.Errorf("embed batches = %d, want 2", len(embedder.batches))
	}
	if len(index.upserts) != reindexBatchSize+3 {
		t.Errorf("upserts = %d", len(index.upserts))
	}
}
