package common

import "time"

// RecordKind identifies the shape of a raw PLM source record.
type RecordKind string

const (
	RecordKindPart        RecordKind = "part"
	RecordKindSupplier    RecordKind = "supplier"
	RecordKindSupplyChain RecordKind = "supply_chain"
	RecordKindCompliance  RecordKind = "compliance"
	RecordKindChangeOrder RecordKind = "change_order"
	RecordKindDocument    RecordKind = "document"
)

// Record is the raw ingested unit produced by the loader. It is immutable once
// produced: the extractor reads it, the graph builder stores its id as
// provenance, but nothing mutates it after loading.
type Record struct {
	ID     string            `json:"id"`
	Kind   RecordKind        `json:"kind"`
	Source string            `json:"source"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
}

// EntityType is the closed vocabulary of graph node types. Extraction output
// carrying any other type tag is rejected at the extractor boundary.
type EntityType string

const (
	EntityTypePart        EntityType = "Part"
	EntityTypeSupplier    EntityType = "Supplier"
	EntityTypeProductLine EntityType = "ProductLine"
	EntityTypeCompliance  EntityType = "ComplianceDoc"
	EntityTypeChangeOrder EntityType = "ChangeOrder"
	EntityTypeRequirement EntityType = "Requirement"
)

// EntityTypes lists the closed entity vocabulary in stable order.
var EntityTypes = []EntityType{
	EntityTypePart,
	EntityTypeSupplier,
	EntityTypeProductLine,
	EntityTypeCompliance,
	EntityTypeChangeOrder,
	EntityTypeRequirement,
}

// ValidEntityType reports whether t is part of the closed vocabulary.
func ValidEntityType(t EntityType) bool {
	for _, v := range EntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// RelationType is the closed vocabulary of graph edge types.
type RelationType string

const (
	RelationSuppliedBy    RelationType = "SUPPLIED_BY"
	RelationContainsPart  RelationType = "CONTAINS_PART"
	RelationHasCompliance RelationType = "HAS_COMPLIANCE"
	RelationDependsOn     RelationType = "DEPENDS_ON"
	RelationSupersedes    RelationType = "SUPERSEDES"
	RelationSatisfies     RelationType = "SATISFIES"
)

// RelationTypes lists the closed relationship vocabulary in stable order.
var RelationTypes = []RelationType{
	RelationSuppliedBy,
	RelationContainsPart,
	RelationHasCompliance,
	RelationDependsOn,
	RelationSupersedes,
	RelationSatisfies,
}

// ValidRelationType reports whether t is part of the closed vocabulary.
func ValidRelationType(t RelationType) bool {
	for _, v := range RelationTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Entity is a typed node in the PLM graph. Key is the natural key (part number,
// supplier id, product line name, compliance doc id, change order id) used for
// upsert identity, so re-ingesting the same record never duplicates a node.
type Entity struct {
	Key         string            `json:"key"`
	Type        EntityType        `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Props       map[string]string `json:"props,omitempty"`
}

// Relationship is a typed directed edge between two entities, identified by
// (Type, SourceKey, TargetKey). Provenance holds the ids of every record the
// edge was derived from; merging the same edge twice unions provenance and
// never drops an id.
type Relationship struct {
	Type        RelationType      `json:"type"`
	SourceKey   string            `json:"source_key"`
	TargetKey   string            `json:"target_key"`
	Description string            `json:"description,omitempty"`
	Props       map[string]string `json:"props,omitempty"`
	Provenance  []string          `json:"provenance"`
}

// EmbeddingRecord associates a vector with the text it was computed from.
// ContentHash is the sha256 of the source text; the indexer re-embeds only
// when the hash changes. Model and Dim pin the producing model so version
// skew is detectable.
type EmbeddingRecord struct {
	Key         string    `json:"key"`
	ContentHash string    `json:"content_hash"`
	Model       string    `json:"model"`
	Dim         int       `json:"dim"`
	Vector      []float32 `json:"vector"`
}

// ScoredEntity is an entity together with its retrieval score and the hop
// distance from the nearest seed.
type ScoredEntity struct {
	Entity     Entity  `json:"entity"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Hops       int     `json:"hops"`
}

// Snippet is a supporting text fragment carried into the prompt, tagged with
// the record id it cites.
type Snippet struct {
	RecordID string  `json:"record_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// RetrievalContext is the per-query result of hybrid retrieval: seed entities,
// the bounded expansion subgraph, and ranked supporting snippets. It lives for
// one query turn and is never persisted.
type RetrievalContext struct {
	Query         string         `json:"query"`
	Seeds         []ScoredEntity `json:"seeds"`
	Entities      []ScoredEntity `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Snippets      []Snippet      `json:"snippets"`
}

// Empty reports whether retrieval found no grounded context.
func (c *RetrievalContext) Empty() bool {
	return c == nil || len(c.Seeds) == 0
}

// Answer is the synthesized response for one query turn. Citations holds the
// record ids the model referenced; LowConfidence is set when citations were
// required but none of the supplied ids appear in the answer.
type Answer struct {
	Text          string        `json:"text"`
	Citations     []string      `json:"citations"`
	LowConfidence bool          `json:"low_confidence"`
	PromptTokens  int           `json:"prompt_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	Latency       time.Duration `json:"latency"`
}

// CommitResult summarizes one record's merge into the graph.
type CommitResult struct {
	RecordID         string `json:"record_id"`
	EntitiesUpserted int    `json:"entities_upserted"`
	RelationsMerged  int    `json:"relations_merged"`
}

// IngestSummary aggregates a whole ingestion run.
type IngestSummary struct {
	RecordsProcessed int           `json:"records_processed"`
	RecordsFailed    int           `json:"records_failed"`
	EntitiesUpserted int           `json:"entities_upserted"`
	RelationsMerged  int           `json:"relations_merged"`
	Failures         []RecordError `json:"failures,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// RecordError ties an ingestion failure to the record that caused it.
type RecordError struct {
	RecordID string `json:"record_id"`
	Err      string `json:"error"`
}
