// internal/nodes/insight-generation/models.go
package insightgeneration

import (
	"context"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/models"
)

// LLMClient is satisfied by *llm.Client.
type LLMClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type Input struct {
	Query     string                  `json:"query"`
	Retrieval *models.RetrievalResult `json:"retrieval"`
}

type Output struct {
	Insights *models.Insights `json:"insights"`
	Response string           `json:"response"`
}
