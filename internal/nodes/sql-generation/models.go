// internal/nodes/sql-generation/models.go
package sqlgeneration

import (
	"context"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/models"
)

// LLMClient is satisfied by *llm.Client.
type LLMClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// EntityValues is satisfied by *entitymap.Tool.
type EntityValues interface {
	ColumnValues(ctx context.Context, column string) ([]string, error)
}

type Input struct {
	Query   string                  `json:"query"`
	Columns []models.MetadataColumn `json:"columns"`
}

type Output struct {
	SQL       string `json:"sql"`
	Validated bool   `json:"validated"`
}
