package store

import (
	"context"
	"errors"

	"github.com/inkpost/inkpost/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrInvalidID         = errors.New("invalid id")
)

const DefaultPostLimit = 20

type PostListOpts struct {
	// Category filters by exact, case-sensitive match when non-empty.
	Category string
	Limit    int
}

type Store interface {
	AccountStore
	PostStore
	Ping(ctx context.Context) error
	Close() error
}

type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id string) (model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (model.Account, error)
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (model.Post, error)
	ListPosts(ctx context.Context, opts PostListOpts) ([]model.Post, error)
	UpdatePost(ctx context.Context, id string, patch model.PostPatch) error
}

// NewID returns a fresh object id in its 24-char hex form. Every backend uses
// this format so that id validation behaves the same everywhere.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

func ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// Limit clamps a requested page size to [1, DefaultPostLimit].
func Limit(n int) int {
	if n <= 0 || n > DefaultPostLimit {
		return DefaultPostLimit
	}
	return n
}
