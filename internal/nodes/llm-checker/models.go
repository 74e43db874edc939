// internal/nodes/llm-checker/models.go
package llmchecker

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
	Query   string                  `json:"query"`
	TopKPI  *models.KPI             `json:"topKpi,omitempty"`
	Columns []models.MetadataColumn `json:"columns,omitempty"`
}

type Output struct {
	Scope   *models.ScopeCheck `json:"scope,omitempty"`
	Match   *models.KPIMatch   `json:"match,omitempty"`
	Blocked bool               `json:"blocked"`
	Refusal string             `json:"refusal,omitempty"`
}
