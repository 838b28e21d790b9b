package index

import (
	"context"
	"errors"
	"testing"

	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/store/memory"
)

// embedClient counts embedding calls and returns a fixed-direction vector
// derived from the input length so distinct texts get distinct vectors.
type embedClient struct {
	dim   int
	calls int
}

func (c *embedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	c.calls++
	vec := make([]float32, c.dim)
	vec[len(input)%c.dim] = 1
	return vec, nil
}

func (c *embedClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec, err := c.GenerateEmbedding(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (c *embedClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (c *embedClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (c *embedClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (c *embedClient) EmbeddingModel() string      { return "test-embed" }
func (c *embedClient) EmbeddingDim() int           { return c.dim }
func (c *embedClient) ResetMetrics()               {}
func (c *embedClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func setup(t *testing.T, dim int) (*Indexer, *embedClient, *memory.GraphMemoryStorage) {
	t.Helper()
	client := &embedClient{dim: dim}
	storage := memory.NewGraphMemoryStorage(dim)
	ix := NewIndexer(NewIndexerParams{AIClient: client, Storage: storage})
	return ix, client, storage
}

func seedEntity(t *testing.T, storage *memory.GraphMemoryStorage, key string) {
	t.Helper()
	_, err := storage.MergeRecord(context.Background(),
		common.Record{ID: "rec-" + key},
		[]common.Entity{{Key: key, Type: common.EntityTypePart, Name: key}},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
}

func TestIndexCachesByContentHash(t *testing.T) {
	ix, client, storage := setup(t, 4)
	ctx := context.Background()
	seedEntity(t, storage, "P-100")

	rec, err := ix.Index(ctx, "P-100", "Part P-100 Hex Bolt")
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if rec.Dim != 4 || rec.Model != "test-embed" {
		t.Errorf("unexpected embedding record: %+v", rec)
	}
	if client.calls != 1 {
		t.Fatalf("model called %d times, want 1", client.calls)
	}

	// Same text again: served from cache.
	if _, err := ix.Index(ctx, "P-100", "Part P-100 Hex Bolt"); err != nil {
		t.Fatal(err)
	}
	if client.calls != 1 {
		t.Errorf("unchanged text re-embedded (calls = %d)", client.calls)
	}

	// Changed text: re-embedded.
	if _, err := ix.Index(ctx, "P-100", "Part P-100 Hex Bolt M4"); err != nil {
		t.Fatal(err)
	}
	if client.calls != 2 {
		t.Errorf("changed text not re-embedded (calls = %d)", client.calls)
	}
}

func TestIndexUsesStoreCacheAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	client := &embedClient{dim: 4}
	storage := memory.NewGraphMemoryStorage(4)
	seedEntity(t, storage, "P-100")

	first := NewIndexer(NewIndexerParams{AIClient: client, Storage: storage})
	if _, err := first.Index(ctx, "P-100", "Part P-100"); err != nil {
		t.Fatal(err)
	}

	// Fresh indexer, same store: hash matches, no new model call.
	second := NewIndexer(NewIndexerParams{AIClient: client, Storage: storage})
	if _, err := second.Index(ctx, "P-100", "Part P-100"); err != nil {
		t.Fatal(err)
	}
	if client.calls != 1 {
		t.Errorf("store-cached embedding re-generated (calls = %d)", client.calls)
	}
}

func TestIndexEntitiesAndSearch(t *testing.T) {
	ix, _, storage := setup(t, 4)
	ctx := context.Background()

	entities := []common.Entity{
		{Key: "P-100", Type: common.EntityTypePart, Name: "Hex Bolt"},
		{Key: "S-017", Type: common.EntityTypeSupplier, Name: "Acme Fasteners"},
	}
	if _, err := storage.MergeRecord(ctx, common.Record{ID: "rec-1"}, entities, nil); err != nil {
		t.Fatal(err)
	}

	if err := ix.IndexEntities(ctx, entities); err != nil {
		t.Fatalf("IndexEntities() error = %v", err)
	}

	hits, err := ix.Search(ctx, EntityText(entities[0]), 5, 0.9)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) == 0 || hits[0].Entity.Key != "P-100" {
		t.Errorf("search did not return the indexed entity: %+v", hits)
	}
}

// shrinkingClient returns vectors one element short of its declared
// dimensionality.
type shrinkingClient struct{ embedClient }

func (c *shrinkingClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return make([]float32, c.dim-1), nil
}

func TestIndexRejectsDimensionMismatch(t *testing.T) {
	client := &shrinkingClient{embedClient{dim: 4}}
	storage := memory.NewGraphMemoryStorage(4)
	ix := NewIndexer(NewIndexerParams{AIClient: client, Storage: storage})
	seedEntity(t, storage, "P-100")

	_, err := ix.Index(context.Background(), "P-100", "Part P-100")
	var mismatch *common.DimensionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Index() error = %v, want DimensionMismatchError", err)
	}

	// Nothing was stored for the failed key.
	rec, err := storage.GetEmbedding(context.Background(), "P-100")
	if err != nil || rec != nil {
		t.Errorf("failed index stored an embedding: (%v, %v)", rec, err)
	}
}

func TestEntityText(t *testing.T) {
	tests := []struct {
		name   string
		entity common.Entity
		want   string
	}{
		{
			name: "full entity",
			entity: common.Entity{
				Key: "P-100", Type: common.EntityTypePart,
				Name: "Hex Bolt", Description: "M3 stainless bolt",
			},
			want: "Part | P-100 | Hex Bolt | M3 stainless bolt",
		},
		{
			name:   "stub entity",
			entity: common.Entity{Key: "P-100", Type: common.EntityTypePart, Name: "P-100"},
			want:   "Part | P-100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EntityText(tt.entity); got != tt.want {
				t.Errorf("EntityText() = %q, want %q", got, tt.want)
			}
		})
	}
}
