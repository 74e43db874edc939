// internal/nodes/metadata-retrieval/models.go
package metadataretrieval

import (
	"context"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/models"
	"riskintel-assistant/internal/search"
)

// LLMClient is satisfied by *llm.Client.
type LLMClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

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
	Columns []models.MetadataColumn          `json:"columns"`
	Lookup  map[string]models.MetadataColumn `json:"lookup"`
}

// queryRequirements are the aspects of the question that decide which column
// descriptions to search for.
type queryRequirements struct {
	NeedsCounting   bool `json:"needs_counting"`
	NeedsGrouping   bool `json:"needs_grouping"`
	NeedsFiltering  bool `json:"needs_filtering"`
	NeedsAmounts    bool `json:"needs_amounts"`
	NeedsDates      bool `json:"needs_dates"`
	NeedsLocations  bool `json:"needs_locations"`
	NeedsStatus     bool `json:"needs_status"`
	NeedsPeople     bool `json:"needs_people"`
	NeedsCategories bool `json:"needs_categories"`
}
