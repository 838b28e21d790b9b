package graph

import (
	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/extract"
	"github.com/plmforge/copilot/pkg/index"
	"github.com/plmforge/copilot/pkg/store"
)

// GraphClient orchestrates knowledge-graph construction: extraction, merge
// and embedding indexing for batches of loaded records.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	aiClient  ai.GraphAIClient
	storage   store.GraphStorage
	extractor extract.Extractor
	indexer   *index.Indexer

	parallelRecords int
	maxRetries      int
}

// NewGraphClientParams defines the configuration for creating a GraphClient.
// Extractor defaults to the standard rule+LLM stack when nil.
type NewGraphClientParams struct {
	AIClient  ai.GraphAIClient
	Storage   store.GraphStorage
	Extractor extract.Extractor

	ParallelRecords int
	MaxRetries      int
}

// NewGraphClient creates a client for building the PLM knowledge graph.
func NewGraphClient(params NewGraphClientParams) *GraphClient {
	parallel := params.ParallelRecords
	if parallel <= 0 {
		parallel = 4
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	extractor := params.Extractor
	if extractor == nil {
		extractor = extract.NewGraphExtractor(extract.NewGraphExtractorParams{
			AIClient:   params.AIClient,
			MaxRetries: maxRetries,
		})
	}

	return &GraphClient{
		aiClient:  params.AIClient,
		storage:   params.Storage,
		extractor: extractor,
		indexer: index.NewIndexer(index.NewIndexerParams{
			AIClient: params.AIClient,
			Storage:  params.Storage,
		}),

		parallelRecords: parallel,
		maxRetries:      maxRetries,
	}
}

// Indexer exposes the embedding indexer, shared with the query path.
func (c *GraphClient) Indexer() *index.Indexer {
	return c.indexer
}
