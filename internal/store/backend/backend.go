// Package backend picks a store implementation from a database URL.
package backend

import (
	"context"
	"strings"

	"github.com/inkpost/inkpost/internal/store"
	"github.com/inkpost/inkpost/internal/store/mongo"
	"github.com/inkpost/inkpost/internal/store/postgres"
	"github.com/inkpost/inkpost/internal/store/sqlite"
)

type Kind string

const (
	Mongo    Kind = "mongo"
	Postgres Kind = "postgres"
	SQLite   Kind = "sqlite"
)

func Detect(dsn string) Kind {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return Mongo
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres
	default:
		return SQLite
	}
}

// Open returns the store for dsn. maxPool caps the driver's connection pool
// where the driver has one.
func Open(ctx context.Context, dsn string, maxPool int) (store.Store, error) {
	switch Detect(dsn) {
	case Mongo:
		return mongo.Open(ctx, dsn, mongo.Options{MaxPoolSize: uint64(max(maxPool, 0))})
	case Postgres:
		return postgres.Open(ctx, dsn, postgres.Options{MaxConns: int32(max(maxPool, 0))})
	default:
		return sqlite.Open(dsn)
	}
}
