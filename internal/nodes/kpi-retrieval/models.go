// internal/nodes/kpi-retrieval/models.go
package kpiretrieval

import (
	"context"

	"riskintel-assistant/internal/models"
	"riskintel-assistant/internal/search"
)

// Embedder is satisfied by *llm.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorSearcher is satisfied by *search.Client.
type VectorSearcher interface {
	KNNSearch(ctx context.Context, index string, vector []float64, k int, fields []string) ([]search.Hit, error)
}

type Input struct {
	Query string `json:"query"`
}

type Output struct {
	TopKPI *models.KPI `json:"topKpi,omitempty"`
	Hits   int         `json:"hits"`
}
