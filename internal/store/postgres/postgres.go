// Package postgres implements store.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Options struct {
	MaxConns int32
}

type Store struct {
	pool *pgxpool.Pool
}

var schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id CHAR(24) PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL,
	password TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id CHAR(24) PRIMARY KEY,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	content TEXT NOT NULL,
	cover TEXT,
	category TEXT NOT NULL,
	slug TEXT NOT NULL DEFAULT '',
	author_id CHAR(24) NOT NULL REFERENCES accounts(id),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);
CREATE INDEX IF NOT EXISTS idx_posts_category ON posts(category);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
`

func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateAccount(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = store.NewID()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO accounts (id, username, email, password, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, account.ID, account.Username, account.Email, account.PasswordHash, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicateUsername
		}
		return err
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	if !store.ValidID(id) {
		return model.Account{}, store.ErrInvalidID
	}
	row := s.pool.QueryRow(ctx, `
SELECT id, username, email, password, created_at, updated_at FROM accounts WHERE id = $1
`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, username, email, password, created_at, updated_at FROM accounts WHERE username = $1
`, username)
	return scanAccount(row)
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	if post.ID == "" {
		post.ID = store.NewID()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	var cover *string
	if post.Cover != "" {
		cover = &post.Cover
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO posts (id, title, summary, content, cover, category, slug, author_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, post.ID, post.Title, post.Summary, post.Content, cover, post.Category, post.Slug, post.Author.ID, post.CreatedAt, post.UpdatedAt)
	return err
}

const selectPosts = `
SELECT p.id, p.title, p.summary, p.content, COALESCE(p.cover, ''), p.category, p.slug, p.author_id, COALESCE(a.username, ''), p.created_at, p.updated_at
FROM posts p
LEFT JOIN accounts a ON a.id = p.author_id
`

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	if !store.ValidID(id) {
		return model.Post{}, store.ErrInvalidID
	}
	row := s.pool.QueryRow(ctx, selectPosts+`WHERE p.id = $1`, id)
	return scanPost(row)
}

func (s *Store) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	limit := store.Limit(opts.Limit)
	var rows pgx.Rows
	var err error
	if opts.Category != "" {
		rows, err = s.pool.Query(ctx, selectPosts+`WHERE p.category = $1 ORDER BY p.created_at DESC, p.id DESC LIMIT $2`, opts.Category, limit)
	} else {
		rows, err = s.pool.Query(ctx, selectPosts+`ORDER BY p.created_at DESC, p.id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *Store) UpdatePost(ctx context.Context, id string, patch model.PostPatch) error {
	if !store.ValidID(id) {
		return store.ErrInvalidID
	}
	if patch.Empty() {
		_, err := s.GetPost(ctx, id)
		return err
	}
	query, args := buildUpdate(id, patch)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// buildUpdate renders an UPDATE touching only the fields present in patch.
func buildUpdate(id string, patch model.PostPatch) (string, []any) {
	var sets []string
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Summary != nil {
		add("summary", *patch.Summary)
	}
	if patch.Content != nil {
		add("content", *patch.Content)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Slug != nil {
		add("slug", *patch.Slug)
	}
	if patch.Cover != nil {
		if *patch.Cover == "" {
			add("cover", nil)
		} else {
			add("cover", *patch.Cover)
		}
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	add("updated_at", updatedAt.UTC())

	args = append(args, id)
	return "UPDATE posts SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args)), args
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, store.ErrNotFound
		}
		return model.Account{}, err
	}
	return a, nil
}

func scanPost(row pgx.Row) (model.Post, error) {
	var p model.Post
	if err := row.Scan(&p.ID, &p.Title, &p.Summary, &p.Content, &p.Cover, &p.Category, &p.Slug, &p.Author.ID, &p.Author.Username, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	return p, nil
}
