package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	password TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	content TEXT NOT NULL,
	cover TEXT,
	category TEXT NOT NULL,
	slug TEXT NOT NULL DEFAULT '',
	author_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(author_id) REFERENCES accounts(id)
);
CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);
CREATE INDEX IF NOT EXISTS idx_posts_category ON posts(category);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = store.NewID()
	}
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO accounts (id, username, email, password, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, account.ID, account.Username, account.Email, account.PasswordHash, account.CreatedAt.UnixNano(), account.UpdatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
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
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, email, password, created_at, updated_at
FROM accounts
WHERE id = ?
`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, email, password, created_at, updated_at
FROM accounts
WHERE username = ?
`, username)
	return scanAccount(row)
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	if post.ID == "" {
		post.ID = store.NewID()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO posts (id, title, summary, content, cover, category, slug, author_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, post.ID, post.Title, post.Summary, post.Content, nullIfEmpty(post.Cover), post.Category, post.Slug, post.Author.ID, post.CreatedAt.UnixNano(), post.UpdatedAt.UnixNano())
	return err
}

const postColumns = `p.id, p.title, p.summary, p.content, p.cover, p.category, p.slug, p.author_id, a.username, p.created_at, p.updated_at`

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	if !store.ValidID(id) {
		return model.Post{}, store.ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+postColumns+`
FROM posts p
LEFT JOIN accounts a ON a.id = p.author_id
WHERE p.id = ?
LIMIT 1
`, id)
	return scanPost(row)
}

func (s *Store) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	limit := store.Limit(opts.Limit)

	var rows *sql.Rows
	var err error
	if opts.Category != "" {
		rows, err = s.db.QueryContext(ctx, `
SELECT `+postColumns+`
FROM posts p
LEFT JOIN accounts a ON a.id = p.author_id
WHERE p.category = ?
ORDER BY p.created_at DESC, p.id DESC
LIMIT ?
`, opts.Category, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
SELECT `+postColumns+`
FROM posts p
LEFT JOIN accounts a ON a.id = p.author_id
ORDER BY p.created_at DESC, p.id DESC
LIMIT ?
`, limit)
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

	var sets []string
	var args []any
	add := func(column string, v *string) {
		if v == nil {
			return
		}
		sets = append(sets, column+" = ?")
		args = append(args, *v)
	}
	add("title", patch.Title)
	add("summary", patch.Summary)
	add("content", patch.Content)
	add("category", patch.Category)
	add("slug", patch.Slug)
	if patch.Cover != nil {
		sets = append(sets, "cover = ?")
		args = append(args, nullIfEmpty(*patch.Cover))
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, updatedAt.UnixNano(), id)

	res, err := s.db.ExecContext(ctx, `UPDATE posts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanAccount(scanner interface{ Scan(dest ...any) error }) (model.Account, error) {
	var a model.Account
	var created, updated int64
	if err := scanner.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, store.ErrNotFound
		}
		return model.Account{}, err
	}
	a.CreatedAt = time.Unix(0, created)
	a.UpdatedAt = time.Unix(0, updated)
	return a, nil
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (model.Post, error) {
	var p model.Post
	var cover sql.NullString
	var username sql.NullString
	var created, updated int64
	if err := scanner.Scan(&p.ID, &p.Title, &p.Summary, &p.Content, &cover, &p.Category, &p.Slug, &p.Author.ID, &username, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	if cover.Valid {
		p.Cover = cover.String
	}
	if username.Valid {
		p.Author.Username = username.String
	}
	p.CreatedAt = time.Unix(0, created)
	p.UpdatedAt = time.Unix(0, updated)
	return p, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed")
}
