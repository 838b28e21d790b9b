package extract

import (
	"context"

	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
)

// Extractor turns one loaded record into typed entities and relationships.
// Implementations never touch the graph; the builder owns persistence.
type Extractor interface {
	Extract(ctx context.Context, record common.Record) ([]common.Entity, []common.Relationship, error)
}

// GraphExtractor dispatches by record kind: structured CSV rows go through
// the deterministic rule extractor, free-text documents through the LLM
// extractor.
type GraphExtractor struct {
	rules *RuleExtractor
	llm   *LLMExtractor
}

// NewGraphExtractorParams configures a GraphExtractor.
type NewGraphExtractorParams struct {
	AIClient   ai.GraphAIClient
	MaxRetries int
}

// NewGraphExtractor creates the default extractor stack.
func NewGraphExtractor(params NewGraphExtractorParams) *GraphExtractor {
	return &GraphExtractor{
		rules: NewRuleExtractor(),
		llm: NewLLMExtractor(NewLLMExtractorParams{
			AIClient:   params.AIClient,
			MaxRetries: params.MaxRetries,
		}),
	}
}

func (e *GraphExtractor) Extract(
	ctx context.Context,
	record common.Record,
) ([]common.Entity, []common.Relationship, error) {
	if record.Kind == common.RecordKindDocument {
		return e.llm.Extract(ctx, record)
	}
	return e.rules.Extract(ctx, record)
}
