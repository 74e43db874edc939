// internal/nodes/orchestrator/models.go
package orchestrator

import (
	"context"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/models"
)

// Routing decisions.
const (
	DecisionDirectReply     = "DIRECT_REPLY"
	DecisionDataAnalysis    = "DATA_ANALYSIS"
	DecisionSQLModification = "SQL_MODIFICATION"
)

// LLMClient is the completion surface this node needs. *llm.Client satisfies it.
type LLMClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type Input struct {
	UserQuery  string                   `json:"userQuery"`
	Messages   []models.Message         `json:"messages,omitempty"`
	SQLHistory []models.SQLHistoryEntry `json:"sqlHistory,omitempty"`
}

type Output struct {
	Decision string `json:"decision"`
	Period   string `json:"period,omitempty"` // set for SQL_MODIFICATION
	Reply    string `json:"reply,omitempty"`  // set for DIRECT_REPLY
	Complete bool   `json:"complete"`
}
