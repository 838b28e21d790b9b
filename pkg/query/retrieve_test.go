package query

import (
	"context"
	"testing"

	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/store/memory"
)

// fakeAIClient returns a fixed vector for every embedding call and a canned
// chat response. Chat calls bump the accumulated metrics so the token diff in
// Synthesize has something to measure.
type fakeAIClient struct {
	dim       int
	queryVec  []float32
	chatText  string
	chatErr   error
	chatCalls int
	metrics   ai.ModelMetrics
}

func (c *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (c *fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (c *fakeAIClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	c.chatCalls++
	if c.chatErr != nil {
		return "", c.chatErr
	}
	c.metrics.InputTokens += 120
	c.metrics.OutputTokens += 40
	c.metrics.TotalTokens += 160
	return c.chatText, nil
}

func (c *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	vec := make([]float32, len(c.queryVec))
	copy(vec, c.queryVec)
	return vec, nil
}

func (c *fakeAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		vec, err := c.GenerateEmbedding(ctx, inputs[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (c *fakeAIClient) EmbeddingModel() string      { return "test-embed" }
func (c *fakeAIClient) EmbeddingDim() int           { return c.dim }
func (c *fakeAIClient) ResetMetrics()               { c.metrics = ai.ModelMetrics{} }
func (c *fakeAIClient) GetMetrics() ai.ModelMetrics { return c.metrics }

// seedGraph builds a dependency chain P-100 -> P-200 -> P-300 -> P-400 plus
// the Drivetrain product line, with only P-100 embedded near the query
// vector.
func seedGraph(t *testing.T, storage *memory.GraphMemoryStorage) {
	t.Helper()
	ctx := context.Background()

	record := common.Record{
		ID:   "rec-parts-0001",
		Kind: common.RecordKindPart,
		Text: "Part P-100 (Hex Bolt) belongs to product line Drivetrain.",
	}
	entities := []common.Entity{
		{Key: "P-100", Type: common.EntityTypePart, Name: "Hex Bolt"},
		{Key: "P-200", Type: common.EntityTypePart, Name: "Washer"},
		{Key: "P-300", Type: common.EntityTypePart, Name: "Spring"},
		{Key: "P-400", Type: common.EntityTypePart, Name: "Pin"},
		{Key: "Drivetrain", Type: common.EntityTypeProductLine, Name: "Drivetrain"},
	}
	rels := []common.Relationship{
		{Type: common.RelationContainsPart, SourceKey: "Drivetrain", TargetKey: "P-100", Provenance: []string{"rec-parts-0001"}},
		{Type: common.RelationDependsOn, SourceKey: "P-100", TargetKey: "P-200", Provenance: []string{"rec-parts-0001"}},
		{Type: common.RelationDependsOn, SourceKey: "P-200", TargetKey: "P-300", Provenance: []string{"rec-parts-0001"}},
		{Type: common.RelationDependsOn, SourceKey: "P-300", TargetKey: "P-400", Provenance: []string{"rec-parts-0001"}},
	}
	if _, err := storage.MergeRecord(ctx, record, entities, rels); err != nil {
		t.Fatal(err)
	}

	vectors := map[string][]float32{
		"P-100":      {1, 0, 0, 0},
		"P-200":      {0, 1, 0, 0},
		"P-300":      {0, 0, 1, 0},
		"P-400":      {0, 0, 0, 1},
		"Drivetrain": {0, 1, 0, 0},
	}
	for key, vec := range vectors {
		err := storage.PutEmbedding(ctx, common.EmbeddingRecord{
			Key:         key,
			ContentHash: "hash-" + key,
			Model:       "test-embed",
			Dim:         4,
			Vector:      vec,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func newTestQueryClient(t *testing.T, client *fakeAIClient, storage *memory.GraphMemoryStorage, options QueryOptions) *QueryClient {
	t.Helper()
	qc, err := NewQueryClient(NewQueryClientParams{
		AIClient: client,
		Storage:  storage,
		Options:  options,
	})
	if err != nil {
		t.Fatal(err)
	}
	return qc
}

func TestRetrieveExpandsWithinHopLimit(t *testing.T) {
	client := &fakeAIClient{dim: 4, queryVec: []float32{1, 0, 0, 0}}
	storage := memory.NewGraphMemoryStorage(4)
	seedGraph(t, storage)

	opts := DefaultQueryOptions()
	opts.HopLimit = 2
	qc := newTestQueryClient(t, client, storage, opts)

	rctx, err := qc.Retrieve(context.Background(), "who supplies the hex bolt?")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if rctx.Empty() {
		t.Fatal("context is empty, want P-100 seed")
	}
	if len(rctx.Seeds) != 1 || rctx.Seeds[0].Entity.Key != "P-100" {
		t.Fatalf("seeds = %+v, want only P-100", rctx.Seeds)
	}

	keys := map[string]int{}
	for _, e := range rctx.Entities {
		keys[e.Entity.Key] = e.Hops
	}
	want := map[string]int{"P-100": 0, "P-200": 1, "Drivetrain": 1, "P-300": 2}
	for key, hops := range want {
		got, ok := keys[key]
		if !ok || got != hops {
			t.Errorf("entity %s: hops = %d, present = %v, want %d", key, got, ok, hops)
		}
	}
	if _, ok := keys["P-400"]; ok {
		t.Error("P-400 is beyond the hop limit but was retrieved")
	}

	if rctx.Entities[0].Entity.Key != "P-100" {
		t.Errorf("top entity = %s, want seed P-100", rctx.Entities[0].Entity.Key)
	}
	for _, e := range rctx.Entities[1:] {
		if e.Score > rctx.Entities[0].Score {
			t.Errorf("entity %s outscores the seed", e.Entity.Key)
		}
	}

	if len(rctx.Relationships) != 3 {
		t.Errorf("got %d relationships, want 3 (edge to P-400 excluded): %+v",
			len(rctx.Relationships), rctx.Relationships)
	}

	if len(rctx.Snippets) != 1 || rctx.Snippets[0].RecordID != "rec-parts-0001" {
		t.Errorf("snippets = %+v, want the source record", rctx.Snippets)
	}
}

func TestRetrieveHopLimitZeroReturnsSeedsOnly(t *testing.T) {
	client := &fakeAIClient{dim: 4, queryVec: []float32{1, 0, 0, 0}}
	storage := memory.NewGraphMemoryStorage(4)
	seedGraph(t, storage)

	opts := DefaultQueryOptions()
	opts.HopLimit = 0
	qc := newTestQueryClient(t, client, storage, opts)

	rctx, err := qc.Retrieve(context.Background(), "hex bolt")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(rctx.Entities) != 1 || rctx.Entities[0].Entity.Key != "P-100" {
		t.Errorf("entities = %+v, want only the seed", rctx.Entities)
	}
	if len(rctx.Relationships) != 0 {
		t.Errorf("relationships = %+v, want none without expansion", rctx.Relationships)
	}
}

func TestRetrieveNoSeedsYieldsEmptyContext(t *testing.T) {
	// Query vector orthogonal to every stored embedding.
	client := &fakeAIClient{dim: 4, queryVec: []float32{0, 0, 0, 0}}
	storage := memory.NewGraphMemoryStorage(4)
	seedGraph(t, storage)

	qc := newTestQueryClient(t, client, storage, DefaultQueryOptions())

	rctx, err := qc.Retrieve(context.Background(), "unrelated question")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !rctx.Empty() {
		t.Errorf("context = %+v, want empty", rctx)
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	client := &fakeAIClient{dim: 4, queryVec: []float32{1, 0, 0, 0}}
	storage := memory.NewGraphMemoryStorage(4)
	seedGraph(t, storage)

	qc := newTestQueryClient(t, client, storage, DefaultQueryOptions())

	first, err := qc.Retrieve(context.Background(), "hex bolt")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := qc.Retrieve(context.Background(), "hex bolt")
		if err != nil {
			t.Fatal(err)
		}
		if len(again.Entities) != len(first.Entities) {
			t.Fatalf("run %d: %d entities, want %d", i, len(again.Entities), len(first.Entities))
		}
		for j := range first.Entities {
			if again.Entities[j].Entity.Key != first.Entities[j].Entity.Key {
				t.Fatalf("run %d: entity order diverged at %d: %s vs %s",
					i, j, again.Entities[j].Entity.Key, first.Entities[j].Entity.Key)
			}
		}
		for j := range first.Relationships {
			if again.Relationships[j].SourceKey != first.Relationships[j].SourceKey {
				t.Fatalf("run %d: relationship order diverged at %d", i, j)
			}
		}
	}
}

func TestRetrieveSharedNeighborInheritsBestSeedSimilarity(t *testing.T) {
	client := &fakeAIClient{dim: 4, queryVec: []float32{1, 0, 0, 0}}
	storage := memory.NewGraphMemoryStorage(4)
	ctx := context.Background()

	// Two seeds share a neighbor; the weaker seed sorts first and discovers
	// the neighbor before the stronger one does.
	record := common.Record{
		ID:   "rec-parts-0001",
		Kind: common.RecordKindPart,
		Text: "Part Z-100 and part A-900 both depend on M-500.",
	}
	entities := []common.Entity{
		{Key: "A-900", Type: common.EntityTypePart, Name: "Bracket"},
		{Key: "Z-100", Type: common.EntityTypePart, Name: "Hex Bolt"},
		{Key: "M-500", Type: common.EntityTypePart, Name: "Mount"},
	}
	rels := []common.Relationship{
		{Type: common.RelationDependsOn, SourceKey: "A-900", TargetKey: "M-500", Provenance: []string{"rec-parts-0001"}},
		{Type: common.RelationDependsOn, SourceKey: "Z-100", TargetKey: "M-500", Provenance: []string{"rec-parts-0001"}},
	}
	if _, err := storage.MergeRecord(ctx, record, entities, rels); err != nil {
		t.Fatal(err)
	}
	vectors := map[string][]float32{
		"A-900": {0.8, 0.6, 0, 0},
		"Z-100": {1, 0, 0, 0},
	}
	for key, vec := range vectors {
		err := storage.PutEmbedding(ctx, common.EmbeddingRecord{
			Key:         key,
			ContentHash: "hash-" + key,
			Model:       "test-embed",
			Dim:         4,
			Vector:      vec,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	opts := DefaultQueryOptions()
	opts.HopLimit = 1
	qc := newTestQueryClient(t, client, storage, opts)

	rctx, err := qc.Retrieve(ctx, "what depends on the mount?")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	var mount *common.ScoredEntity
	for i := range rctx.Entities {
		if rctx.Entities[i].Entity.Key == "M-500" {
			mount = &rctx.Entities[i]
		}
	}
	if mount == nil {
		t.Fatalf("M-500 not retrieved: %+v", rctx.Entities)
	}
	if mount.Hops != 1 {
		t.Errorf("M-500 hops = %d, want 1", mount.Hops)
	}
	if mount.Similarity != 1.0 {
		t.Errorf("M-500 similarity = %v, want 1.0 from the stronger seed", mount.Similarity)
	}
}

func TestRetrieveMaxSubgraphCapsNodes(t *testing.T) {
	client := &fakeAIClient{dim: 4, queryVec: []float32{1, 0, 0, 0}}
	storage := memory.NewGraphMemoryStorage(4)
	seedGraph(t, storage)

	opts := DefaultQueryOptions()
	opts.MaxSubgraph = 2
	qc := newTestQueryClient(t, client, storage, opts)

	rctx, err := qc.Retrieve(context.Background(), "hex bolt")
	if err != nil {
		t.Fatal(err)
	}
	if len(rctx.Entities) > 2 {
		t.Errorf("got %d entities, want at most 2", len(rctx.Entities))
	}
	kept := map[string]bool{}
	for _, e := range rctx.Entities {
		kept[e.Entity.Key] = true
	}
	for _, r := range rctx.Relationships {
		if !kept[r.SourceKey] || !kept[r.TargetKey] {
			t.Errorf("relationship %+v references a node outside the capped subgraph", r)
		}
	}
}
