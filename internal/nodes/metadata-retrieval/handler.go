package metadataretrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
	"riskintel-assistant/internal/search"
)

const (
	TaskType = "metadata-retrieval"
)

var (
	ErrSearchFailed  = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout = errors.New("SEARCH_TIMEOUT")
)

var metadataFields = []string{
	"id", "content", "column_name", "description",
	"data_type", "table_name", "primary_key", "foreign_key",
}

const requirementsSystem = `You analyze a question about transportation claims data.
Return ONLY a JSON object with boolean fields:
{"needs_counting": ..., "needs_grouping": ..., "needs_filtering": ..., "needs_amounts": ...,
"needs_dates": ..., "needs_locations": ..., "needs_status": ..., "needs_people": ..., "needs_categories": ...}`

const descriptionsSystem = `You translate a question about claims data into short search descriptions
of the database columns it needs. Output one description per line, nothing else.
Example descriptions: "date when the incident occurred", "dollar amount paid on the claim",
"state or location where the incident happened".`

// occurrenceDateColumn is always surfaced so date filtering is possible even
// when the targeted searches missed it.
var occurrenceDateColumn = models.MetadataColumn{
	ID:          "guaranteed_occurrence_date",
	ColumnName:  "Occurrence Date",
	TableName:   "claims_summary",
	DataType:    "date",
	Description: "Date when the accident or incident actually occurred. Primary field for time-based analysis.",
}

type Handler struct {
	config   *Config
	llm      LLMClient
	embedder Embedder
	search   VectorSearcher
	logger   logger.Logger
}

func NewHandler(config *Config, client LLMClient, embedder Embedder, searcher VectorSearcher, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		llm:      client,
		embedder: embedder,
		search:   searcher,
		logger: log.With(map[string]interface{}{
			"node": TaskType,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	requirements := h.analyzeRequirements(ctx, input.Query)
	descriptions := h.searchDescriptions(ctx, input.Query, requirements)

	var collected []models.MetadataColumn

	if len(descriptions) == 0 {
		// No targeted descriptions; fall back to one direct search.
		hits, err := h.retrieveWithRetry(ctx, input.Query, h.config.FallbackTopK)
		if err != nil {
			return nil, err
		}
		collected = append(collected, hits...)
	} else {
		for _, desc := range descriptions {
			hits, err := h.retrieveWithRetry(ctx, desc, h.config.TopK)
			if err != nil {
				// One failed description should not sink the rest.
				h.logger.Warn("metadata search failed for description", map[string]interface{}{
					"description": desc,
					"error":       err.Error(),
				})
				continue
			}
			collected = append(collected, hits...)
		}
	}

	columns := deduplicateColumns(collected)
	columns = ensureOccurrenceDate(columns)

	lookup := make(map[string]models.MetadataColumn, len(columns))
	for _, c := range columns {
		lookup[c.ColumnName] = c
	}

	h.logger.Info("metadata retrieved", map[string]interface{}{
		"descriptions": len(descriptions),
		"columns":      len(columns),
	})

	return &Output{Columns: columns, Lookup: lookup}, nil
}

// analyzeRequirements classifies the question. Any failure falls open to a
// counting-only requirement set.
func (h *Handler) analyzeRequirements(ctx context.Context, query string) queryRequirements {
	fallback := queryRequirements{NeedsCounting: true}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      requirementsSystem,
		Prompt:      fmt.Sprintf("Question: %s", query),
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("requirements analysis failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallback
	}

	var req queryRequirements
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &req); err != nil {
		h.logger.Warn("requirements response malformed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallback
	}

	return req
}

// searchDescriptions asks the LLM for targeted column descriptions, one per
// line. Failures yield nil so the caller falls back to a direct search.
func (h *Handler) searchDescriptions(ctx context.Context, query string, req queryRequirements) []string {
	aspects := requirementAspects(req)

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System: descriptionsSystem,
		Prompt: fmt.Sprintf("Question: %s\nThe question involves: %s\nList the column descriptions to search for.",
			query, strings.Join(aspects, ", ")),
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("description generation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	var descriptions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			descriptions = append(descriptions, line)
		}
	}
	return descriptions
}

func requirementAspects(req queryRequirements) []string {
	aspects := []string{}
	if req.NeedsCounting {
		aspects = append(aspects, "counting records")
	}
	if req.NeedsGrouping {
		aspects = append(aspects, "grouping")
	}
	if req.NeedsFiltering {
		aspects = append(aspects, "filtering")
	}
	if req.NeedsAmounts {
		aspects = append(aspects, "monetary amounts")
	}
	if req.NeedsDates {
		aspects = append(aspects, "dates")
	}
	if req.NeedsLocations {
		aspects = append(aspects, "locations")
	}
	if req.NeedsStatus {
		aspects = append(aspects, "status values")
	}
	if req.NeedsPeople {
		aspects = append(aspects, "people")
	}
	if req.NeedsCategories {
		aspects = append(aspects, "categories")
	}
	if len(aspects) == 0 {
		aspects = append(aspects, "counting records")
	}
	return aspects
}

// retrieveWithRetry embeds a description and searches the metadata index,
// retrying transient failures with a linearly growing pause.
func (h *Handler) retrieveWithRetry(ctx context.Context, text string, k int) ([]models.MetadataColumn, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			pause := time.Duration(500*attempt) * time.Millisecond
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return nil, ErrSearchTimeout
			}
		}

		hits, err := h.retrieveOnce(ctx, text, k)

		if ctx.Err() != nil ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return nil, ErrSearchTimeout
		}

		if err == nil {
			return hits, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrSearchFailed, lastErr)
}

func (h *Handler) retrieveOnce(ctx context.Context, text string, k int) ([]models.MetadataColumn, error) {
	vector, err := h.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	hits, err := h.search.KNNSearch(ctx, h.config.Index, vector, k, metadataFields)
	if err != nil {
		return nil, err
	}

	columns := make([]models.MetadataColumn, 0, len(hits))
	for _, hit := range hits {
		columns = append(columns, hitToColumn(hit))
	}
	return columns, nil
}

func hitToColumn(hit search.Hit) models.MetadataColumn {
	return models.MetadataColumn{
		ID:          hit.ID,
		ColumnName:  asString(hit.Source["column_name"]),
		Description: asString(hit.Source["description"]),
		DataType:    asString(hit.Source["data_type"]),
		TableName:   asString(hit.Source["table_name"]),
		PrimaryKey:  asString(hit.Source["primary_key"]),
		ForeignKey:  asString(hit.Source["foreign_key"]),
		Content:     asString(hit.Source["content"]),
		Score:       hit.Score,
	}
}

// deduplicateColumns keeps the highest-scoring entry per column name.
func deduplicateColumns(columns []models.MetadataColumn) []models.MetadataColumn {
	best := make(map[string]models.MetadataColumn)
	order := make([]string, 0, len(columns))

	for _, c := range columns {
		if c.ColumnName == "" {
			continue
		}
		existing, seen := best[c.ColumnName]
		if !seen {
			order = append(order, c.ColumnName)
			best[c.ColumnName] = c
			continue
		}
		if c.Score > existing.Score {
			best[c.ColumnName] = c
		}
	}

	out := make([]models.MetadataColumn, 0, len(order))
	for _, name := range order {
		out = append(out, best[name])
	}
	return out
}

func ensureOccurrenceDate(columns []models.MetadataColumn) []models.MetadataColumn {
	for _, c := range columns {
		if c.ColumnName == occurrenceDateColumn.ColumnName {
			return columns
		}
	}
	return append(columns, occurrenceDateColumn)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
