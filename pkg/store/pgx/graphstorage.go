package pgx

import (
	"context"

	"github.com/plmforge/copilot/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements store.GraphStorage on PostgreSQL with pgvector
// for similarity search. Concurrency control is left to Postgres: upserts
// take row locks, so concurrent merges touching the same entity serialize
// while disjoint records proceed in parallel.
type GraphDBStorage struct {
	conn pgxIConn
	pool *pgxpool.Pool

	embeddingDim int
}

var _ store.GraphStorage = (*GraphDBStorage)(nil)

// NewGraphDBStorageParams configures a GraphDBStorage. EmbeddingDim pins the
// vector dimensionality accepted by PutEmbedding and SearchEntities.
type NewGraphDBStorageParams struct {
	Pool         *pgxpool.Pool
	EmbeddingDim int
}

// NewGraphDBStorage creates a Postgres-backed graph store over an existing
// pool. The pool must register pgvector types in its AfterConnect hook.
func NewGraphDBStorage(params NewGraphDBStorageParams) *GraphDBStorage {
	return &GraphDBStorage{
		conn:         params.Pool,
		pool:         params.Pool,
		embeddingDim: params.EmbeddingDim,
	}
}

// Close releases the underlying pool.
func (s *GraphDBStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
