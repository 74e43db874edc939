// internal/nodes/sql-modifier/models.go
package sqlmodifier

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
	Query   string                   `json:"query"`
	Period  string                   `json:"period"`
	History []models.SQLHistoryEntry `json:"history"`
}

type Output struct {
	SQL       string `json:"sql"`
	Validated bool   `json:"validated"`
}
