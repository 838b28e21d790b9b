package openai

import (
	"sync"

	"github.com/plmforge/copilot/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// GraphOpenAIClient implements ai.GraphAIClient against OpenAI-compatible
// endpoints. Separate clients are kept for embeddings and chat so the two
// concerns can point at different deployments.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel  string
	answerModel     string
	extractionModel string
	embeddingDim    int

	chatURL      string
	chatKey      string
	embeddingURL string
	embeddingKey string

	timeoutMin    int
	reqLock       *semaphore.Weighted
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration for creating a
// GraphOpenAIClient.
//
// EmbeddingDim pins the dimensionality the rest of the system expects;
// vectors of any other size are rejected, not adjusted.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel  string
	AnswerModel     string
	ExtractionModel string
	EmbeddingDim    int

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	TimeoutMin            int
	MaxConcurrentRequests int64
}

// NewGraphOpenAIClient creates a client for the configured OpenAI-compatible
// endpoints. Chat and embedding requests each go through a weighted semaphore
// so a large ingestion run cannot overload the provider.
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}
	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 15
	}

	return &GraphOpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		answerModel:     params.AnswerModel,
		extractionModel: params.ExtractionModel,
		embeddingDim:    params.EmbeddingDim,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin:    timeoutMin,
		reqLock:       semaphore.NewWeighted(maxReq),
		embeddingLock: semaphore.NewWeighted(maxReq),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

// EmbeddingModel returns the configured embedding model identifier.
func (c *GraphOpenAIClient) EmbeddingModel() string {
	return c.embeddingModel
}

// EmbeddingDim returns the configured embedding dimensionality.
func (c *GraphOpenAIClient) EmbeddingDim() int {
	return c.embeddingDim
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
