package query

import (
	"context"
	"strings"
	"testing"

	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/store/memory"
)

func testContext() *common.RetrievalContext {
	return &common.RetrievalContext{
		Query: "who supplies P-100?",
		Seeds: []common.ScoredEntity{
			{Entity: common.Entity{Key: "P-100", Type: common.EntityTypePart, Name: "Hex Bolt"}, Score: 1, Similarity: 1},
		},
		Entities: []common.ScoredEntity{
			{Entity: common.Entity{Key: "P-100", Type: common.EntityTypePart, Name: "Hex Bolt"}, Score: 1, Similarity: 1},
			{Entity: common.Entity{Key: "S-017", Type: common.EntityTypeSupplier, Name: "Acme Fasteners"}, Score: 0.5, Hops: 1},
		},
		Relationships: []common.Relationship{
			{Type: common.RelationSuppliedBy, SourceKey: "P-100", TargetKey: "S-017", Provenance: []string{"rec-supply_chain-0001"}},
		},
		Snippets: []common.Snippet{
			{RecordID: "rec-supply_chain-0001", Text: "Part P-100 is supplied by supplier S-017.", Score: 1},
		},
	}
}

func TestSynthesizeEmptyContextShortCircuits(t *testing.T) {
	client := &fakeAIClient{dim: 4}
	storage := memory.NewGraphMemoryStorage(4)
	qc := newTestQueryClient(t, client, storage, DefaultQueryOptions())

	answer, err := qc.Synthesize(context.Background(), "anything", &common.RetrievalContext{Query: "anything"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if answer.Text != ai.InsufficientContextAnswer {
		t.Errorf("answer = %q, want the insufficient-context answer", answer.Text)
	}
	if !answer.LowConfidence {
		t.Error("LowConfidence = false, want true for empty context")
	}
	if client.chatCalls != 0 {
		t.Errorf("chat calls = %d, want 0 for empty context", client.chatCalls)
	}
}

func TestSynthesizeCitedAnswer(t *testing.T) {
	client := &fakeAIClient{
		dim:      4,
		chatText: "P-100 is supplied by S-017 [[rec-supply_chain-0001]].",
	}
	storage := memory.NewGraphMemoryStorage(4)
	qc := newTestQueryClient(t, client, storage, DefaultQueryOptions())

	answer, err := qc.Synthesize(context.Background(), "who supplies P-100?", testContext())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if answer.LowConfidence {
		t.Error("LowConfidence = true for a cited answer")
	}
	if len(answer.Citations) != 1 || answer.Citations[0] != "rec-supply_chain-0001" {
		t.Errorf("citations = %v", answer.Citations)
	}
	if answer.PromptTokens != 120 || answer.OutputTokens != 40 {
		t.Errorf("token usage = %d/%d, want 120/40", answer.PromptTokens, answer.OutputTokens)
	}
}

func TestSynthesizeUncitedAnswerLowConfidence(t *testing.T) {
	client := &fakeAIClient{dim: 4, chatText: "P-100 is supplied by S-017."}
	storage := memory.NewGraphMemoryStorage(4)
	qc := newTestQueryClient(t, client, storage, DefaultQueryOptions())

	answer, err := qc.Synthesize(context.Background(), "who supplies P-100?", testContext())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !answer.LowConfidence {
		t.Error("LowConfidence = false, want true when citations are required and missing")
	}
	if len(answer.Citations) != 0 {
		t.Errorf("citations = %v, want none", answer.Citations)
	}
}

func TestSynthesizeFiltersUnknownCitations(t *testing.T) {
	client := &fakeAIClient{
		dim:      4,
		chatText: "P-100 is supplied by S-017 [[rec-supply_chain-0001]] [[rec-made-up]].",
	}
	storage := memory.NewGraphMemoryStorage(4)
	qc := newTestQueryClient(t, client, storage, DefaultQueryOptions())

	answer, err := qc.Synthesize(context.Background(), "who supplies P-100?", testContext())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(answer.Citations) != 1 || answer.Citations[0] != "rec-supply_chain-0001" {
		t.Errorf("citations = %v, want only the record that was in the prompt", answer.Citations)
	}
}

func TestSynthesizeAcceptsProvenanceCitationWithoutSnippet(t *testing.T) {
	client := &fakeAIClient{
		dim:      4,
		chatText: "P-100 is supplied by S-017 [[rec-supply_chain-0001]].",
	}
	storage := memory.NewGraphMemoryStorage(4)
	qc := newTestQueryClient(t, client, storage, DefaultQueryOptions())

	// The snippet fell out of the token budget but the relationship line
	// still shows [[rec-supply_chain-0001]] in the prompt.
	rctx := testContext()
	rctx.Snippets = nil

	answer, err := qc.Synthesize(context.Background(), "who supplies P-100?", rctx)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(answer.Citations) != 1 || answer.Citations[0] != "rec-supply_chain-0001" {
		t.Errorf("citations = %v, want the provenance id from the relationship line", answer.Citations)
	}
	if answer.LowConfidence {
		t.Error("LowConfidence = true for an answer citing an id present in the prompt")
	}
}

func TestSerializeContextCarriesCitationTags(t *testing.T) {
	got := serializeContext(testContext())

	for _, want := range []string{
		"Part P-100 (Hex Bolt)",
		"P-100 SUPPLIED_BY S-017",
		"[[rec-supply_chain-0001]]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("serialized context missing %q:\n%s", want, got)
		}
	}
}
