package vecstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// UpsertItemParams carries one item embedding row.
type UpsertItemParams struct {
	ID          string
	OwnerID     string
	ContentType string
	Excerpt     string
	Embedding   pgvector.Vector
}

// SearchItemsParams configures an owner-scoped similarity search.
type SearchItemsParams struct {
	QueryEmbedding pgvector.Vector
	OwnerID        string
	ResultLimit    int32
}

// ItemRow is one row of the item_embeddings table as read back by
// search and list queries. Similarity is zero for plain listings.
type ItemRow struct {
	ID          string
	OwnerID     string
	ContentType string
	Excerpt     string
	Similarity  float32
}

// Queries implements Querier against a pgx connection pool.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries creates a Queries bound to pool.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const upsertItemSQL = `
INSERT INTO item_embeddings (id, owner_id, content_type, excerpt, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
	owner_id = EXCLUDED.owner_id,
	content_type = EXCLUDED.content_type,
	excerpt = EXCLUDED.excerpt,
	embedding = EXCLUDED.embedding`

// UpsertItem inserts or replaces one item embedding.
func (q *Queries) UpsertItem(ctx context.Context, arg UpsertItemParams) error {
	_, err := q.pool.Exec(ctx, upsertItemSQL,
		arg.ID, arg.OwnerID, arg.ContentType, arg.Excerpt, arg.Embedding)
	return err
}

// Cosine distance via the pgvector <=> operator; similarity = 1 - distance.
const searchItemsSQL = `
SELECT id, owner_id, content_type, excerpt, 1 - (embedding <=> $1) AS similarity
FROM item_embeddings
WHERE owner_id = $2
ORDER BY embedding <=> $1
LIMIT $3`

// SearchItems returns the owner's nearest items by cosine distance.
func (q *Queries) SearchItems(ctx context.Context, arg SearchItemsParams) ([]ItemRow, error) {
	rows, err := q.pool.Query(ctx, searchItemsSQL,
		arg.QueryEmbedding, arg.OwnerID, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItemRows(rows, true)
}

const deleteItemSQL = `DELETE FROM item_embeddings WHERE id = $1`

// DeleteItem removes one item embedding by ID.
func (q *Queries) DeleteItem(ctx context.Context, id string) error {
	_, err := q.pool.Exec(ctx, deleteItemSQL, id)
	return err
}

const listItemsSQL = `
SELECT id, owner_id, content_type, excerpt
FROM item_embeddings
ORDER BY created_at DESC
LIMIT $1`

// ListItems returns up to limit rows, newest first.
func (q *Queries) ListItems(ctx context.Context, limit int32) ([]ItemRow, error) {
	rows, err := q.pool.Query(ctx, listItemsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItemRows(rows, false)
}

func scanItemRows(rows pgx.Rows, withSimilarity bool) ([]ItemRow, error) {
	var out []ItemRow
	for rows.Next() {
		var r ItemRow
		var err error
		if withSimilarity {
			err = rows.Scan(&r.ID, &r.OwnerID, &r.ContentType, &r.Excerpt, &r.Similarity)
		} else {
			err = rows.Scan(&r.ID, &r.OwnerID, &r.ContentType, &r.Excerpt)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
