// Package store persists users, saved contents, tags and share links in
// PostgreSQL.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/secondbrain/internal/log"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername indicates the username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// shareHashBytes is the entropy of a share link hash (hex-encoded, so the
// hash itself is twice this length).
const shareHashBytes = 16

// User is a registered account.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Content is a saved item in a user's knowledge base.
type Content struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Link      string
	Type      vecstore.ContentType
	Title     string
	Tags      []string
	CreatedAt time.Time
}

// CreateContentParams describes a content item to save.
type CreateContentParams struct {
	OwnerID uuid.UUID
	Link    string
	Type    vecstore.ContentType
	Title   string
	Tags    []string
}

// Store provides persistence operations backed by a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a store.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// CreateUser inserts a new user. Returns ErrDuplicateUsername if the
// username is taken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash)
		 VALUES ($1, $2)
		 RETURNING id, username, password_hash, created_at`,
		username, passwordHash,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrDuplicateUsername
		}
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetUserByUsername looks up a user by username. Returns ErrNotFound if no
// such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// CreateContent saves a content item with its tags in one transaction.
// Tags are normalized to lowercase and created on first use.
func (s *Store) CreateContent(ctx context.Context, p CreateContentParams) (Content, error) {
	if !p.Type.Valid() {
		return Content{}, fmt.Errorf("invalid content type %q", p.Type)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Content{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
	}()

	c := Content{
		OwnerID: p.OwnerID,
		Link:    p.Link,
		Type:    p.Type,
		Title:   p.Title,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO contents (owner_id, link, content_type, title)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		p.OwnerID, p.Link, string(p.Type), p.Title,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Content{}, fmt.Errorf("inserting content: %w", err)
	}

	for _, raw := range p.Tags {
		title := strings.ToLower(strings.TrimSpace(raw))
		if title == "" {
			continue
		}

		// DO UPDATE instead of DO NOTHING so RETURNING always yields a row.
		var tagID uuid.UUID
		err = tx.QueryRow(ctx,
			`INSERT INTO tags (title) VALUES ($1)
			 ON CONFLICT (title) DO UPDATE SET title = EXCLUDED.title
			 RETURNING id`,
			title,
		).Scan(&tagID)
		if err != nil {
			return Content{}, fmt.Errorf("upserting tag %q: %w", title, err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO content_tags (content_id, tag_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			c.ID, tagID,
		)
		if err != nil {
			return Content{}, fmt.Errorf("linking tag %q: %w", title, err)
		}
		c.Tags = append(c.Tags, title)
	}

	if err := tx.Commit(ctx); err != nil {
		return Content{}, fmt.Errorf("committing content: %w", err)
	}
	return c, nil
}

// ListContents returns all contents owned by a user, newest first, with
// their tags.
func (s *Store) ListContents(ctx context.Context, ownerID uuid.UUID) ([]Content, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.owner_id, c.link, c.content_type, c.title, c.created_at,
		        COALESCE(array_agg(t.title ORDER BY t.title) FILTER (WHERE t.title IS NOT NULL), '{}')
		 FROM contents c
		 LEFT JOIN content_tags ct ON ct.content_id = c.id
		 LEFT JOIN tags t ON t.id = ct.tag_id
		 WHERE c.owner_id = $1
		 GROUP BY c.id
		 ORDER BY c.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing contents: %w", err)
	}
	defer rows.Close()

	var out []Content
	for rows.Next() {
		var c Content
		var typ string
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Link, &typ, &c.Title, &c.CreatedAt, &c.Tags); err != nil {
			return nil, fmt.Errorf("scanning content: %w", err)
		}
		c.Type = vecstore.ContentType(typ)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contents: %w", err)
	}
	return out, nil
}

// DeleteContent removes a content item. The owner scoping makes deleting
// someone else's content indistinguishable from a missing row.
func (s *Store) DeleteContent(ctx context.Context, ownerID, contentID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM contents WHERE id = $1 AND owner_id = $2`,
		contentID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("deleting content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureShareLink returns the user's share hash, creating one if none exists.
func (s *Store) EnsureShareLink(ctx context.Context, ownerID uuid.UUID) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT hash FROM share_links WHERE owner_id = $1`, ownerID,
	).Scan(&hash)
	if err == nil {
		return hash, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("getting share link: %w", err)
	}

	buf := make([]byte, shareHashBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating share hash: %w", err)
	}
	hash = hex.EncodeToString(buf)

	// A concurrent request may have won the insert; keep whichever hash landed.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO share_links (owner_id, hash) VALUES ($1, $2)
		 ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, hash,
	)
	if err != nil {
		return "", fmt.Errorf("creating share link: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT hash FROM share_links WHERE owner_id = $1`, ownerID,
	).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("rereading share link: %w", err)
	}
	return hash, nil
}

// DisableShareLink removes the user's share link if one exists.
func (s *Store) DisableShareLink(ctx context.Context, ownerID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM share_links WHERE owner_id = $1`, ownerID,
	); err != nil {
		return fmt.Errorf("disabling share link: %w", err)
	}
	return nil
}

// ResolveShareLink maps a share hash to its owner. Returns ErrNotFound for
// unknown or disabled links.
func (s *Store) ResolveShareLink(ctx context.Context, hash string) (uuid.UUID, string, error) {
	var ownerID uuid.UUID
	var username string
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username
		 FROM share_links sl
		 JOIN users u ON u.id = sl.owner_id
		 WHERE sl.hash = $1`,
		hash,
	).Scan(&ownerID, &username)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", ErrNotFound
	}
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("resolving share link: %w", err)
	}
	return ownerID, username, nil
}
