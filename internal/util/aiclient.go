package util

import (
	"github.com/plmforge/copilot/pkg/ai"
	oai "github.com/plmforge/copilot/pkg/ai/ollama"
	gai "github.com/plmforge/copilot/pkg/ai/openai"
	"github.com/plmforge/copilot/pkg/logger"
)

// NewAIClientFromEnv builds the provider client selected by AI_ADAPTER.
// Anything other than "ollama" gets the OpenAI-compatible client.
func NewAIClientFromEnv() ai.GraphAIClient {
	adapter := GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  GetEnv("AI_EMBED_MODEL"),
			AnswerModel:     GetEnv("AI_CHAT_ANSWER_MODEL"),
			ExtractionModel: GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingDim:    int(GetEnvNumeric("AI_EMBED_DIM", 1536)),

			BaseURL: GetEnv("AI_CHAT_URL"),
			ApiKey:  GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  GetEnv("AI_EMBED_MODEL"),
			AnswerModel:     GetEnv("AI_CHAT_ANSWER_MODEL"),
			ExtractionModel: GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingDim:    int(GetEnvNumeric("AI_EMBED_DIM", 1536)),

			EmbeddingURL: GetEnv("AI_EMBED_URL"),
			EmbeddingKey: GetEnv("AI_EMBED_KEY"),
			ChatURL:      GetEnv("AI_CHAT_URL"),
			ChatKey:      GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
	}
}
