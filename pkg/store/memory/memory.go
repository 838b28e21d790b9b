package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/store"
)

// GraphMemoryStorage implements store.GraphStorage fully in memory: flat maps
// for the graph, linear-scan cosine search for vectors. It backs unit tests
// and local single-process mode; merge semantics match the Postgres store so
// both pass the same contract tests.
type GraphMemoryStorage struct {
	mu sync.RWMutex

	entities   map[string]common.Entity
	rels       map[string]common.Relationship
	records    map[string]common.Record
	embeddings map[string]common.EmbeddingRecord

	embeddingDim int
}

var _ store.GraphStorage = (*GraphMemoryStorage)(nil)

// NewGraphMemoryStorage creates an empty in-memory graph store with the
// given embedding dimensionality.
func NewGraphMemoryStorage(embeddingDim int) *GraphMemoryStorage {
	return &GraphMemoryStorage{
		entities:     map[string]common.Entity{},
		rels:         map[string]common.Relationship{},
		records:      map[string]common.Record{},
		embeddings:   map[string]common.EmbeddingRecord{},
		embeddingDim: embeddingDim,
	}
}

func relKey(t common.RelationType, src, dst string) string {
	return string(t) + "|" + src + "|" + dst
}

// MergeRecord applies one record's extraction output atomically. Validation
// runs before any mutation, so a rejected record leaves the graph untouched.
func (s *GraphMemoryStorage) MergeRecord(
	ctx context.Context,
	record common.Record,
	entities []common.Entity,
	rels []common.Relationship,
) (common.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := map[string]bool{}
	for key := range s.entities {
		known[key] = true
	}
	for _, e := range entities {
		if e.Key == "" {
			return common.CommitResult{}, fmt.Errorf("%w: record %s: entity with empty key",
				common.ErrGraphTransactionFailed, record.ID)
		}
		known[e.Key] = true
	}
	for _, r := range rels {
		if !known[r.SourceKey] || !known[r.TargetKey] {
			return common.CommitResult{}, fmt.Errorf("%w: record %s: dangling edge %s %s->%s",
				common.ErrGraphTransactionFailed, record.ID, r.Type, r.SourceKey, r.TargetKey)
		}
	}

	s.records[record.ID] = record

	for _, e := range entities {
		s.entities[e.Key] = mergeEntity(s.entities[e.Key], e)
	}
	for _, r := range rels {
		key := relKey(r.Type, r.SourceKey, r.TargetKey)
		s.rels[key] = mergeRelationship(s.rels[key], r)
	}

	return common.CommitResult{
		RecordID:         record.ID,
		EntitiesUpserted: len(entities),
		RelationsMerged:  len(rels),
	}, nil
}

// mergeEntity folds an incoming entity into the stored one: stub names are
// upgraded, the longer description wins, props union with incoming values
// taking precedence.
func mergeEntity(old, in common.Entity) common.Entity {
	if old.Key == "" {
		if in.Props != nil {
			in.Props = cloneProps(in.Props)
		}
		return in
	}

	out := old
	if in.Name != "" && (old.Name == "" || old.Name == old.Key) {
		out.Name = in.Name
	}
	if len(in.Description) > len(old.Description) {
		out.Description = in.Description
	}
	if len(in.Props) > 0 {
		out.Props = cloneProps(old.Props)
		for k, v := range in.Props {
			out.Props[k] = v
		}
	}
	return out
}

// mergeRelationship unions provenance (sorted, deduplicated) and keeps the
// longer description.
func mergeRelationship(old, in common.Relationship) common.Relationship {
	if old.SourceKey == "" {
		in.Provenance = dedupe(in.Provenance)
		return in
	}

	out := old
	if len(in.Description) > len(old.Description) {
		out.Description = in.Description
	}
	if len(in.Props) > 0 {
		out.Props = cloneProps(old.Props)
		for k, v := range in.Props {
			out.Props[k] = v
		}
	}
	out.Provenance = dedupe(append(append([]string{}, old.Provenance...), in.Provenance...))
	return out
}

func cloneProps(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func (s *GraphMemoryStorage) GetEntities(ctx context.Context, keys []string) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := append([]string{}, keys...)
	sort.Strings(sorted)

	out := []common.Entity{}
	for _, key := range sorted {
		if e, ok := s.entities[key]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *GraphMemoryStorage) Neighbors(ctx context.Context, keys []string) ([]common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := map[string]bool{}
	for _, k := range keys {
		want[k] = true
	}

	out := []common.Relationship{}
	for _, r := range s.rels {
		if want[r.SourceKey] || want[r.TargetKey] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.SourceKey != b.SourceKey {
			return a.SourceKey < b.SourceKey
		}
		return a.TargetKey < b.TargetKey
	})
	return out, nil
}

func (s *GraphMemoryStorage) GetRecords(ctx context.Context, ids []string) ([]common.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := append([]string{}, ids...)
	sort.Strings(sorted)

	out := []common.Record{}
	for _, id := range sorted {
		if r, ok := s.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *GraphMemoryStorage) GetEmbedding(ctx context.Context, key string) (*common.EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.embeddings[key]
	if !ok {
		return nil, nil
	}
	out := rec
	out.Vector = append([]float32{}, rec.Vector...)
	return &out, nil
}

func (s *GraphMemoryStorage) PutEmbedding(ctx context.Context, rec common.EmbeddingRecord) error {
	if len(rec.Vector) != s.embeddingDim || rec.Dim != s.embeddingDim {
		return &common.DimensionMismatchError{
			Expected: s.embeddingDim,
			Actual:   len(rec.Vector),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Vector = append([]float32{}, rec.Vector...)
	s.embeddings[rec.Key] = rec
	return nil
}

// SearchEntities linearly scans all stored vectors, scoring by cosine
// similarity. Results are nearest first, ties broken by entity key.
func (s *GraphMemoryStorage) SearchEntities(
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := []common.ScoredEntity{}
	for key, emb := range s.embeddings {
		entity, ok := s.entities[key]
		if !ok {
			continue
		}
		sim := cosineSimilarity(vector, emb.Vector)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, common.ScoredEntity{
			Entity:     entity,
			Score:      sim,
			Similarity: sim,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Entity.Key < hits[j].Entity.Key
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *GraphMemoryStorage) Close() {}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
