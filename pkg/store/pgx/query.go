package pgx

import (
	"context"
	"fmt"

	"github.com/plmforge/copilot/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// GetEntities returns entities by natural key, in key order.
func (s *GraphDBStorage) GetEntities(ctx context.Context, keys []string) ([]common.Entity, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT key, type, name, description, props
		FROM entities
		WHERE key = ANY($1)
		ORDER BY key
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// Neighbors returns every relationship whose source or target is in keys.
func (s *GraphDBStorage) Neighbors(ctx context.Context, keys []string) ([]common.Relationship, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT type, source_key, target_key, description, props, provenance
		FROM relationships
		WHERE source_key = ANY($1) OR target_key = ANY($1)
		ORDER BY type, source_key, target_key
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	out := []common.Relationship{}
	for rows.Next() {
		var r common.Relationship
		if err := rows.Scan(&r.Type, &r.SourceKey, &r.TargetKey, &r.Description, &r.Props, &r.Provenance); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRecords returns stored source records by id, in id order.
func (s *GraphDBStorage) GetRecords(ctx context.Context, ids []string) ([]common.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, kind, source, text, fields
		FROM records
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	out := []common.Record{}
	for rows.Next() {
		var r common.Record
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.Source, &r.Text, &r.Fields); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Kind = common.RecordKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetEmbedding returns the cached embedding row for an entity key, or nil.
func (s *GraphDBStorage) GetEmbedding(ctx context.Context, key string) (*common.EmbeddingRecord, error) {
	var rec common.EmbeddingRecord
	var vec pgvector.Vector
	err := s.conn.QueryRow(ctx, `
		SELECT key, content_hash, model, dim, vector
		FROM embeddings
		WHERE key = $1
	`, key).Scan(&rec.Key, &rec.ContentHash, &rec.Model, &rec.Dim, &vec)
	if err == pgxv5.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying embedding %s: %w", key, err)
	}
	rec.Vector = vec.Slice()
	return &rec, nil
}

// PutEmbedding stores or replaces the embedding for an entity key. A vector
// whose size differs from the configured dimensionality is rejected.
func (s *GraphDBStorage) PutEmbedding(ctx context.Context, rec common.EmbeddingRecord) error {
	if len(rec.Vector) != s.embeddingDim || rec.Dim != s.embeddingDim {
		return &common.DimensionMismatchError{
			Expected: s.embeddingDim,
			Actual:   len(rec.Vector),
		}
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO embeddings (key, content_hash, model, dim, vector)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			content_hash = excluded.content_hash,
			model = excluded.model,
			dim = excluded.dim,
			vector = excluded.vector
	`, rec.Key, rec.ContentHash, rec.Model, rec.Dim, pgvector.NewVector(rec.Vector))
	if err != nil {
		return fmt.Errorf("storing embedding %s: %w", rec.Key, err)
	}
	return nil
}

// SearchEntities runs a cosine similarity search over the embedding index
// and returns up to k entities above minSimilarity, nearest first, ties
// broken by natural key.
func (s *GraphDBStorage) SearchEntities(
	ctx context.Context,
	vector []float32,
	k int,
	minSimilarity float64,
) ([]common.ScoredEntity, error) {
	if len(vector) != s.embeddingDim {
		return nil, &common.DimensionMismatchError{
			Expected: s.embeddingDim,
			Actual:   len(vector),
		}
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT key, type, name, description, props, similarity FROM (
			SELECT e.key, e.type, e.name, e.description, e.props,
			       1 - (emb.vector <=> $1) AS similarity
			FROM embeddings emb
			JOIN entities e ON e.key = emb.key
			WHERE emb.dim = $2
		) sub
		WHERE similarity >= $3
		ORDER BY similarity DESC, key
		LIMIT $4
	`, pgvector.NewVector(vector), s.embeddingDim, minSimilarity, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	out := []common.ScoredEntity{}
	for rows.Next() {
		var e common.Entity
		var etype string
		var sim float64
		if err := rows.Scan(&e.Key, &etype, &e.Name, &e.Description, &e.Props, &sim); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		e.Type = common.EntityType(etype)
		out = append(out, common.ScoredEntity{
			Entity:     e,
			Score:      sim,
			Similarity: sim,
		})
	}
	return out, rows.Err()
}

func scanEntities(rows pgxv5.Rows) ([]common.Entity, error) {
	out := []common.Entity{}
	for rows.Next() {
		var e common.Entity
		var etype string
		if err := rows.Scan(&e.Key, &etype, &e.Name, &e.Description, &e.Props); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.Type = common.EntityType(etype)
		out = append(out, e)
	}
	return out, rows.Err()
}
