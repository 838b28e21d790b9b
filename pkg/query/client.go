package query

import (
	"time"

	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/index"
	"github.com/plmforge/copilot/pkg/store"

	"github.com/pkoukk/tiktoken-go"
)

// QueryOptions tunes hybrid retrieval and answer synthesis. Start from
// DefaultQueryOptions and override fields; unset numeric fields fall back to
// the defaults, except HopLimit where 0 (seeds only, no expansion) is
// honored as set.
type QueryOptions struct {
	SeedK            int     // vector seeds per query
	HopLimit         int     // BFS expansion depth from seeds
	MinSimilarity    float64 // seed similarity floor
	HopDecay         float64 // per-hop score decay factor
	CentralityWeight float64 // weight of subgraph degree in the score
	MaxSubgraph      int     // node cap for the expansion
	ContextTokens    int     // token budget for the serialized context

	MaxTokens        int           // answer completion cap
	Temperature      float64       // answer sampling temperature
	CitationRequired bool          // uncited answers get LowConfidence
	Timeout          time.Duration // synthesis call timeout
}

// DefaultQueryOptions returns the standard retrieval tuning.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		SeedK:            8,
		HopLimit:         2,
		MinSimilarity:    0.4,
		HopDecay:         0.5,
		CentralityWeight: 0.15,
		MaxSubgraph:      64,
		ContextTokens:    3000,

		MaxTokens:        1024,
		Temperature:      0.2,
		CitationRequired: true,
		Timeout:          2 * time.Minute,
	}
}

func (o QueryOptions) withDefaults() QueryOptions {
	def := DefaultQueryOptions()
	if o.SeedK <= 0 {
		o.SeedK = def.SeedK
	}
	if o.HopLimit < 0 {
		o.HopLimit = def.HopLimit
	}
	if o.MinSimilarity <= 0 {
		o.MinSimilarity = def.MinSimilarity
	}
	if o.HopDecay <= 0 {
		o.HopDecay = def.HopDecay
	}
	if o.CentralityWeight < 0 {
		o.CentralityWeight = def.CentralityWeight
	}
	if o.MaxSubgraph <= 0 {
		o.MaxSubgraph = def.MaxSubgraph
	}
	if o.ContextTokens <= 0 {
		o.ContextTokens = def.ContextTokens
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	return o
}

// QueryClient answers questions over the PLM knowledge graph: hybrid
// retrieval (vector seeds plus bounded graph expansion) followed by grounded
// answer synthesis with citations.
//
// A QueryClient should be created using NewQueryClient.
type QueryClient struct {
	aiClient ai.GraphAIClient
	storage  store.GraphStorage
	indexer  *index.Indexer
	options  QueryOptions
	encoder  *tiktoken.Tiktoken
}

// NewQueryClientParams defines the configuration for creating a QueryClient.
// Indexer may be shared with a GraphClient; when nil a fresh one is created
// over the same store.
type NewQueryClientParams struct {
	AIClient ai.GraphAIClient
	Storage  store.GraphStorage
	Indexer  *index.Indexer
	Options  QueryOptions
}

// NewQueryClient creates a query client over the given store and AI client.
func NewQueryClient(params NewQueryClientParams) (*QueryClient, error) {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return nil, err
	}

	indexer := params.Indexer
	if indexer == nil {
		indexer = index.NewIndexer(index.NewIndexerParams{
			AIClient: params.AIClient,
			Storage:  params.Storage,
		})
	}

	return &QueryClient{
		aiClient: params.AIClient,
		storage:  params.Storage,
		indexer:  indexer,
		options:  params.Options.withDefaults(),
		encoder:  enc,
	}, nil
}

func (c *QueryClient) countTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}
