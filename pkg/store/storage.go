package store

import (
	"context"

	"github.com/plmforge/copilot/pkg/common"
)

// GraphStorage is the persistence contract for the PLM knowledge graph:
// entity/relationship upserts, raw record provenance, and the embedding
// index used for vector seeding.
//
// MergeRecord is transactional: either every entity, relationship and the
// record row commit together, or nothing from that record is visible.
// Entities merge by natural key, relationships by (type, source, target)
// with provenance unioned. Everything else is read-only.
type GraphStorage interface {
	// MergeRecord commits one record's extraction output atomically.
	// Relationship endpoints must exist after the entity upserts of the
	// same call (or from earlier records); a dangling edge fails the whole
	// record with common.ErrGraphTransactionFailed.
	MergeRecord(
		ctx context.Context,
		record common.Record,
		entities []common.Entity,
		rels []common.Relationship,
	) (common.CommitResult, error)

	// GetEntities returns the entities for the given natural keys, in key
	// order. Unknown keys are skipped.
	GetEntities(ctx context.Context, keys []string) ([]common.Entity, error)

	// Neighbors returns every relationship touching any of the given keys.
	Neighbors(ctx context.Context, keys []string) ([]common.Relationship, error)

	// GetRecords returns stored source records by id, in id order.
	GetRecords(ctx context.Context, ids []string) ([]common.Record, error)

	// GetEmbedding returns the cached embedding for an entity key, or nil
	// when none is stored.
	GetEmbedding(ctx context.Context, key string) (*common.EmbeddingRecord, error)

	// PutEmbedding stores or replaces the embedding for an entity key.
	PutEmbedding(ctx context.Context, rec common.EmbeddingRecord) error

	// SearchEntities returns up to k entities nearest to the query vector
	// with cosine similarity >= minSimilarity, nearest first, ties broken
	// by natural key.
	SearchEntities(
		ctx context.Context,
		vector []float32,
		k int,
		minSimilarity float64,
	) ([]common.ScoredEntity, error)

	Close()
}
