package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/plmforge/copilot/internal/util"
	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/logger"
)

// ExtractedEntity is the schema the model fills per entity.
type ExtractedEntity struct {
	Key         string `json:"key" jsonschema_description:"Stable identifier of the entity (part number, supplier id, change order id, product line name, compliance doc id)"`
	Type        string `json:"type" jsonschema_description:"One of the provided entity types"`
	Name        string `json:"name" jsonschema_description:"Display name as written in the text"`
	Description string `json:"description" jsonschema_description:"Concise description of the facts the text states about the entity"`
}

// ExtractedRelationship is the schema the model fills per relationship.
type ExtractedRelationship struct {
	Type        string `json:"type" jsonschema_description:"One of the provided relationship types"`
	SourceKey   string `json:"source_key" jsonschema_description:"Key of the source entity"`
	TargetKey   string `json:"target_key" jsonschema_description:"Key of the target entity"`
	Description string `json:"description" jsonschema_description:"Why the text supports this relationship"`
}

// ExtractionResult is the structured output contract for one record.
type ExtractionResult struct {
	Entities      []ExtractedEntity      `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// LLMExtractor extracts entities and relationships from free-text records via
// schema-constrained model output. Temperature is pinned to 0 so repeated
// runs over the same record stay stable; items outside the closed
// vocabularies are dropped, never reinterpreted.
type LLMExtractor struct {
	aiClient   ai.GraphAIClient
	maxRetries int
}

// NewLLMExtractorParams configures an LLMExtractor.
type NewLLMExtractorParams struct {
	AIClient   ai.GraphAIClient
	MaxRetries int
}

// NewLLMExtractor creates an LLM-backed extractor.
func NewLLMExtractor(params NewLLMExtractorParams) *LLMExtractor {
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &LLMExtractor{
		aiClient:   params.AIClient,
		maxRetries: maxRetries,
	}
}

func (e *LLMExtractor) Extract(
	ctx context.Context,
	record common.Record,
) ([]common.Entity, []common.Relationship, error) {
	prompt := buildExtractPrompt(record)

	var out ExtractionResult
	err := util.RetryErrWithContext(ctx, e.maxRetries, func(ctx context.Context) error {
		out = ExtractionResult{}
		return e.aiClient.GenerateCompletionWithFormat(
			ctx,
			"extraction",
			"Entities and relationships extracted from a PLM record",
			prompt,
			&out,
			ai.WithTemperature(0.0),
		)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: record %s: %v", common.ErrExtractionRejected, record.ID, err)
	}

	entities, rels := sanitizeExtraction(record, out)
	return entities, rels, nil
}

// buildExtractPrompt fills the extraction system prompt with the closed
// vocabularies and appends the record text.
func buildExtractPrompt(record common.Record) string {
	entityTypes := make([]string, len(common.EntityTypes))
	for i, t := range common.EntityTypes {
		entityTypes[i] = string(t)
	}
	relationTypes := make([]string, len(common.RelationTypes))
	for i, t := range common.RelationTypes {
		relationTypes[i] = string(t)
	}

	header := fmt.Sprintf(
		ai.ExtractPrompt,
		strings.Join(entityTypes, ", "),
		strings.Join(relationTypes, ", "),
		record.Source,
	)
	return header + "\n# Record Text\n" + record.Text
}

// sanitizeExtraction enforces the closed vocabularies and endpoint
// integrity. Invalid items are dropped with a warning; valid items pass
// through with the record id as provenance.
func sanitizeExtraction(
	record common.Record,
	out ExtractionResult,
) ([]common.Entity, []common.Relationship) {
	entities := make([]common.Entity, 0, len(out.Entities))
	keys := map[string]bool{}
	for _, e := range out.Entities {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			continue
		}
		t := common.EntityType(e.Type)
		if !common.ValidEntityType(t) {
			logger.Warn("[Extract] dropping entity with unknown type",
				"record", record.ID, "key", key, "type", e.Type)
			continue
		}
		if keys[key] {
			continue
		}
		keys[key] = true
		entities = append(entities, common.Entity{
			Key:         key,
			Type:        t,
			Name:        strings.TrimSpace(e.Name),
			Description: strings.TrimSpace(e.Description),
		})
	}

	rels := make([]common.Relationship, 0, len(out.Relationships))
	for _, r := range out.Relationships {
		t := common.RelationType(r.Type)
		if !common.ValidRelationType(t) {
			logger.Warn("[Extract] dropping relationship with unknown type",
				"record", record.ID, "type", r.Type)
			continue
		}
		src := strings.TrimSpace(r.SourceKey)
		dst := strings.TrimSpace(r.TargetKey)
		if !keys[src] || !keys[dst] || src == dst {
			logger.Warn("[Extract] dropping relationship with unresolved endpoints",
				"record", record.ID, "type", r.Type, "source", src, "target", dst)
			continue
		}
		rels = append(rels, common.Relationship{
			Type:        t,
			SourceKey:   src,
			TargetKey:   dst,
			Description: strings.TrimSpace(r.Description),
			Provenance:  []string{record.ID},
		})
	}

	return entities, rels
}
