package extract

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
)

func TestRuleExtractorPart(t *testing.T) {
	record := common.Record{
		ID:   "rec-parts-0001",
		Kind: common.RecordKindPart,
		Fields: map[string]string{
			"part_id":      "P-100",
			"part_name":    "Hex Bolt",
			"product_line": "Drivetrain",
		},
	}

	entities, rels, err := NewRuleExtractor().Extract(context.Background(), record)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(entities))
	}
	if entities[0].Key != "P-100" || entities[0].Type != common.EntityTypePart {
		t.Errorf("unexpected part entity: %+v", entities[0])
	}
	if entities[1].Key != "Drivetrain" || entities[1].Type != common.EntityTypeProductLine {
		t.Errorf("unexpected product line entity: %+v", entities[1])
	}

	wantRel := common.Relationship{
		Type:       common.RelationContainsPart,
		SourceKey:  "Drivetrain",
		TargetKey:  "P-100",
		Provenance: []string{"rec-parts-0001"},
	}
	if len(rels) != 1 || !reflect.DeepEqual(rels[0], wantRel) {
		t.Errorf("rels = %+v, want [%+v]", rels, wantRel)
	}
}

func TestRuleExtractorSupplyChain(t *testing.T) {
	record := common.Record{
		ID:   "rec-supply_chain-0002",
		Kind: common.RecordKindSupplyChain,
		Fields: map[string]string{
			"part_id":     "P-100",
			"supplier_id": "S-017",
		},
	}

	entities, rels, err := NewRuleExtractor().Extract(context.Background(), record)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2 endpoint stubs", len(entities))
	}
	if len(rels) != 1 || rels[0].Type != common.RelationSuppliedBy {
		t.Fatalf("rels = %+v, want one SUPPLIED_BY", rels)
	}
	if rels[0].SourceKey != "P-100" || rels[0].TargetKey != "S-017" {
		t.Errorf("edge direction wrong: %+v", rels[0])
	}
}

func TestRuleExtractorChangeOrder(t *testing.T) {
	record := common.Record{
		ID:   "rec-change_orders-0001",
		Kind: common.RecordKindChangeOrder,
		Fields: map[string]string{
			"change_order_id": "CO-2024-031",
			"title":           "Fastener torque update",
			"status":          "Approved",
			"supersedes":      "CO-2024-007",
			"affected_parts":  "P-100; P-200",
		},
	}

	entities, rels, err := NewRuleExtractor().Extract(context.Background(), record)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(entities) != 4 {
		t.Fatalf("got %d entities, want 4", len(entities))
	}

	types := map[common.RelationType]int{}
	for _, r := range rels {
		types[r.Type]++
	}
	if types[common.RelationSupersedes] != 1 {
		t.Errorf("want one SUPERSEDES edge, got %d", types[common.RelationSupersedes])
	}
	if types[common.RelationDependsOn] != 2 {
		t.Errorf("want two DEPENDS_ON edges, got %d", types[common.RelationDependsOn])
	}
}

func TestRuleExtractorUnknownKind(t *testing.T) {
	_, _, err := NewRuleExtractor().Extract(context.Background(), common.Record{
		ID:   "rec-x",
		Kind: common.RecordKind("mystery"),
	})
	if err == nil {
		t.Fatal("expected error for unmapped record kind")
	}
}

// fakeAIClient returns canned structured output and satisfies ai.GraphAIClient.
type fakeAIClient struct {
	payload string
	err     error
	calls   int
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return f.payload, f.err
}

func (f *fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.payload), out)
}

func (f *fakeAIClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return f.payload, f.err
}

func (f *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, f.err
}

func (f *fakeAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	return nil, f.err
}

func (f *fakeAIClient) EmbeddingModel() string       { return "test-embed" }
func (f *fakeAIClient) EmbeddingDim() int            { return 4 }
func (f *fakeAIClient) ResetMetrics()                {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics  { return ai.ModelMetrics{} }

func TestLLMExtractor(t *testing.T) {
	payload := `{
		"entities": [
			{"key": "P-100", "type": "Part", "name": "Hex Bolt", "description": "M3 bolt"},
			{"key": "P-200", "type": "Part", "name": "Washer", "description": ""},
			{"key": "X-1", "type": "Widget", "name": "bogus", "description": ""}
		],
		"relationships": [
			{"type": "DEPENDS_ON", "source_key": "P-100", "target_key": "P-200", "description": "torque retention"},
			{"type": "LINKED_TO", "source_key": "P-100", "target_key": "P-200", "description": "bad type"},
			{"type": "DEPENDS_ON", "source_key": "P-100", "target_key": "X-1", "description": "dropped endpoint"}
		]
	}`

	e := NewLLMExtractor(NewLLMExtractorParams{AIClient: &fakeAIClient{payload: payload}})
	record := common.Record{
		ID:   "rec-doc-spec",
		Kind: common.RecordKindDocument,
		Text: "P-100 depends on P-200.",
	}

	entities, rels, err := e.Extract(context.Background(), record)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2 (unknown type dropped)", len(entities))
	}
	if len(rels) != 1 {
		t.Fatalf("got %d relationships, want 1", len(rels))
	}
	want := common.Relationship{
		Type:        common.RelationDependsOn,
		SourceKey:   "P-100",
		TargetKey:   "P-200",
		Description: "torque retention",
		Provenance:  []string{"rec-doc-spec"},
	}
	if !reflect.DeepEqual(rels[0], want) {
		t.Errorf("rel = %+v, want %+v", rels[0], want)
	}
}

func TestLLMExtractorRejected(t *testing.T) {
	client := &fakeAIClient{err: errors.New("model unavailable")}
	e := NewLLMExtractor(NewLLMExtractorParams{AIClient: client, MaxRetries: 2})

	_, _, err := e.Extract(context.Background(), common.Record{
		ID:   "rec-doc-bad",
		Kind: common.RecordKindDocument,
		Text: "unparseable",
	})
	if !errors.Is(err, common.ErrExtractionRejected) {
		t.Fatalf("Extract() error = %v, want ErrExtractionRejected", err)
	}
	if client.calls != 2 {
		t.Errorf("model called %d times, want 2 retries", client.calls)
	}
}

func TestGraphExtractorDispatch(t *testing.T) {
	payload := `{"entities": [], "relationships": []}`
	client := &fakeAIClient{payload: payload}
	e := NewGraphExtractor(NewGraphExtractorParams{AIClient: client})

	_, _, err := e.Extract(context.Background(), common.Record{
		ID:   "rec-parts-0001",
		Kind: common.RecordKindPart,
		Fields: map[string]string{
			"part_id":      "P-100",
			"part_name":    "Hex Bolt",
			"product_line": "Drivetrain",
		},
	})
	if err != nil {
		t.Fatalf("structured Extract() error = %v", err)
	}
	if client.calls != 0 {
		t.Errorf("rule path called the model %d times", client.calls)
	}

	_, _, err = e.Extract(context.Background(), common.Record{
		ID:   "rec-doc-spec",
		Kind: common.RecordKindDocument,
		Text: "text",
	})
	if err != nil {
		t.Fatalf("document Extract() error = %v", err)
	}
	if client.calls != 1 {
		t.Errorf("document path called the model %d times, want 1", client.calls)
	}
}
