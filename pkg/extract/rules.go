package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/plmforge/copilot/pkg/common"
)

// RuleExtractor maps structured CSV rows onto the graph vocabulary without
// any model call. The mapping mirrors the PLM export schema: parts anchor
// product lines, supply chain rows become SUPPLIED_BY edges, compliance rows
// become HAS_COMPLIANCE edges, change orders carry SUPERSEDES chains.
type RuleExtractor struct{}

// NewRuleExtractor creates a rule-based extractor.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

func (e *RuleExtractor) Extract(
	ctx context.Context,
	record common.Record,
) ([]common.Entity, []common.Relationship, error) {
	v := record.Fields

	switch record.Kind {
	case common.RecordKindPart:
		return []common.Entity{
				{
					Key:  v["part_id"],
					Type: common.EntityTypePart,
					Name: v["part_name"],
					Props: map[string]string{
						"product_line": v["product_line"],
					},
				},
				{
					Key:  v["product_line"],
					Type: common.EntityTypeProductLine,
					Name: v["product_line"],
				},
			}, []common.Relationship{
				{
					Type:       common.RelationContainsPart,
					SourceKey:  v["product_line"],
					TargetKey:  v["part_id"],
					Provenance: []string{record.ID},
				},
			}, nil

	case common.RecordKindSupplier:
		return []common.Entity{
			{
				Key:  v["supplier_id"],
				Type: common.EntityTypeSupplier,
				Name: v["supplier_name"],
				Props: map[string]string{
					"region": v["region"],
				},
			},
		}, nil, nil

	case common.RecordKindSupplyChain:
		return []common.Entity{
				stub(v["part_id"], common.EntityTypePart),
				stub(v["supplier_id"], common.EntityTypeSupplier),
			}, []common.Relationship{
				{
					Type:       common.RelationSuppliedBy,
					SourceKey:  v["part_id"],
					TargetKey:  v["supplier_id"],
					Provenance: []string{record.ID},
				},
			}, nil

	case common.RecordKindCompliance:
		return []common.Entity{
				stub(v["part_id"], common.EntityTypePart),
				{
					Key:  v["doc_id"],
					Type: common.EntityTypeCompliance,
					Name: v["doc_id"],
					Props: map[string]string{
						"status":   v["status"],
						"standard": v["standard"],
					},
				},
			}, []common.Relationship{
				{
					Type:       common.RelationHasCompliance,
					SourceKey:  v["part_id"],
					TargetKey:  v["doc_id"],
					Provenance: []string{record.ID},
				},
			}, nil

	case common.RecordKindChangeOrder:
		entities := []common.Entity{
			{
				Key:  v["change_order_id"],
				Type: common.EntityTypeChangeOrder,
				Name: v["title"],
				Props: map[string]string{
					"status": v["status"],
				},
				Description: v["description"],
			},
		}
		rels := []common.Relationship{}

		if sup := v["supersedes"]; sup != "" {
			entities = append(entities, stub(sup, common.EntityTypeChangeOrder))
			rels = append(rels, common.Relationship{
				Type:       common.RelationSupersedes,
				SourceKey:  v["change_order_id"],
				TargetKey:  sup,
				Provenance: []string{record.ID},
			})
		}

		// Affected parts are modeled as the change order depending on the
		// part, keeping the edge vocabulary closed.
		for _, partID := range splitList(v["affected_parts"]) {
			entities = append(entities, stub(partID, common.EntityTypePart))
			rels = append(rels, common.Relationship{
				Type:       common.RelationDependsOn,
				SourceKey:  v["change_order_id"],
				TargetKey:  partID,
				Provenance: []string{record.ID},
			})
		}

		return entities, rels, nil
	}

	return nil, nil, fmt.Errorf("no rule mapping for record kind %q", record.Kind)
}

// stub creates a minimal endpoint entity so relationship inserts never
// dangle. Merging keeps richer data from other records.
func stub(key string, t common.EntityType) common.Entity {
	return common.Entity{Key: key, Type: t, Name: key}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
