package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/store"
)

// Indexer maintains the embedding index over graph entities. Embeddings are
// cached by content hash in the store and in an in-process map, so re-indexing
// an unchanged entity never calls the embedding model.
type Indexer struct {
	aiClient ai.GraphAIClient
	storage  store.GraphStorage

	mu     sync.RWMutex
	hashes map[string]string
}

// NewIndexerParams configures an Indexer.
type NewIndexerParams struct {
	AIClient ai.GraphAIClient
	Storage  store.GraphStorage
}

// NewIndexer creates an indexer over the given store and embedding client.
func NewIndexer(params NewIndexerParams) *Indexer {
	return &Indexer{
		aiClient: params.AIClient,
		storage:  params.Storage,
		hashes:   map[string]string{},
	}
}

// ContentHash returns the sha256 hex digest used for embedding cache checks.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EntityText renders the embedding surface for an entity: type, identifier,
// name and description in one line so vector search matches on any of them.
func EntityText(e common.Entity) string {
	parts := []string{string(e.Type), e.Key}
	if e.Name != "" && e.Name != e.Key {
		parts = append(parts, e.Name)
	}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	return strings.Join(parts, " | ")
}

// Index ensures the entity key has a current embedding for the given text.
// The model is only called when the content hash or embedding model changed;
// a model returning the wrong dimensionality fails with
// *common.DimensionMismatchError and stores nothing.
func (ix *Indexer) Index(ctx context.Context, key, text string) (common.EmbeddingRecord, error) {
	hash := ContentHash(text)
	model := ix.aiClient.EmbeddingModel()

	ix.mu.RLock()
	cached := ix.hashes[key]
	ix.mu.RUnlock()
	if cached == hash {
		if existing, err := ix.storage.GetEmbedding(ctx, key); err == nil && existing != nil {
			return *existing, nil
		}
	}

	existing, err := ix.storage.GetEmbedding(ctx, key)
	if err != nil {
		return common.EmbeddingRecord{}, err
	}
	if existing != nil && existing.ContentHash == hash && existing.Model == model {
		ix.remember(key, hash)
		return *existing, nil
	}

	vector, err := ix.aiClient.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return common.EmbeddingRecord{}, err
	}
	if len(vector) != ix.aiClient.EmbeddingDim() {
		return common.EmbeddingRecord{}, &common.DimensionMismatchError{
			Expected: ix.aiClient.EmbeddingDim(),
			Actual:   len(vector),
		}
	}

	rec := common.EmbeddingRecord{
		Key:         key,
		ContentHash: hash,
		Model:       model,
		Dim:         len(vector),
		Vector:      vector,
	}
	if err := ix.storage.PutEmbedding(ctx, rec); err != nil {
		return common.EmbeddingRecord{}, err
	}
	ix.remember(key, hash)
	return rec, nil
}

// IndexEntities indexes a batch of entities in order, returning on the first
// failure.
func (ix *Indexer) IndexEntities(ctx context.Context, entities []common.Entity) error {
	for _, e := range entities {
		if _, err := ix.Index(ctx, e.Key, EntityText(e)); err != nil {
			return err
		}
	}
	return nil
}

// Search embeds the query text and returns the nearest entities above
// minSimilarity, nearest first, ties broken by natural key (the store
// guarantees the ordering).
func (ix *Indexer) Search(
	ctx context.Context,
	queryText string,
	k int,
	minSimilarity float64,
) ([]common.ScoredEntity, error) {
	vector, err := ix.aiClient.GenerateEmbedding(ctx, []byte(queryText))
	if err != nil {
		return nil, err
	}
	return ix.storage.SearchEntities(ctx, vector, k, minSimilarity)
}

func (ix *Indexer) remember(key, hash string) {
	ix.mu.Lock()
	ix.hashes[key] = hash
	ix.mu.Unlock()
}
