package sqlgeneration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
)

const (
	TaskType = "sql-generation"
)

var (
	ErrNoMetadata          = errors.New("NO_METADATA_AVAILABLE")
	ErrSQLGenerationFailed = errors.New("SQL_GENERATION_FAILED")
)

const columnSelectionSystem = `You pick the database columns needed to answer a question about claims data.
Reply with a comma-separated list of column names chosen ONLY from the provided list, or the word "none".`

const valueMappingSystem = `You map the user's wording to exact stored values.
For each column, reply with one line "Column Name: exact value" using only values from the provided lists.
Use "unclear" when the user's intent does not name a value for a column.`

const sqlSystem = `You write a single PostgreSQL query against the claims_summary table.
Use double-quoted identifiers exactly as given. Use standard date functions
(date_trunc, CURRENT_DATE, INTERVAL). Return ONLY the SQL, no commentary.`

type Handler struct {
	config   *Config
	llm      LLMClient
	entities EntityValues
	logger   logger.Logger
}

func NewHandler(config *Config, client LLMClient, entities EntityValues, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		llm:      client,
		entities: entities,
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
	if len(input.Columns) == 0 {
		return nil, ErrNoMetadata
	}

	needed := h.analyzeNeededColumns(ctx, input)

	values := h.collectEntityValues(ctx, needed)

	mapped := h.mapIntentToValues(ctx, input.Query, values)

	sql, err := h.generateFinalSQL(ctx, input, mapped)
	if err != nil {
		return nil, err
	}

	h.logger.Info("SQL generated", map[string]interface{}{
		"neededColumns": len(needed),
		"mappedValues":  len(mapped),
		"sqlLength":     len(sql),
	})

	return &Output{SQL: sql, Validated: true}, nil
}

// analyzeNeededColumns asks the LLM which of the retrieved columns the query
// needs. Only names present in the metadata survive; failures yield an empty
// selection so generation proceeds on metadata alone.
func (h *Handler) analyzeNeededColumns(ctx context.Context, input *Input) []string {
	available := make(map[string]bool, len(input.Columns))
	var list strings.Builder
	for _, c := range input.Columns {
		available[c.ColumnName] = true
		fmt.Fprintf(&list, "- %s (%s): %s [relevance: %.2f]\n", c.ColumnName, c.DataType, c.Description, c.Score)
	}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      columnSelectionSystem,
		Prompt:      fmt.Sprintf("Question: %s\n\nColumns:\n%s\nNeeded columns:", input.Query, list.String()),
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("column selection failed, proceeding without entity mapping", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "none") {
		return nil
	}

	var needed []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if available[name] {
			needed = append(needed, name)
		}
	}
	return needed
}

// collectEntityValues fetches candidate values per selected column. A failed
// lookup drops that column rather than the whole step.
func (h *Handler) collectEntityValues(ctx context.Context, columns []string) map[string][]string {
	values := make(map[string][]string)
	for _, col := range columns {
		vals, err := h.entities.ColumnValues(ctx, col)
		if err != nil {
			h.logger.Warn("entity value lookup failed", map[string]interface{}{
				"column": col,
				"error":  err.Error(),
			})
			continue
		}
		if len(vals) > 0 {
			values[col] = vals
		}
	}
	return values
}

// mapIntentToValues asks the LLM to bind user wording to exact stored values.
func (h *Handler) mapIntentToValues(ctx context.Context, query string, values map[string][]string) map[string]string {
	if len(values) == 0 {
		return nil
	}

	var lists strings.Builder
	for col, vals := range values {
		fmt.Fprintf(&lists, "%s: %s\n", col, strings.Join(vals, ", "))
	}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      valueMappingSystem,
		Prompt:      fmt.Sprintf("Question: %s\n\nAvailable values:\n%s", query, lists.String()),
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("value mapping failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	mapped := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		col := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if val == "" || strings.EqualFold(val, "unclear") || strings.EqualFold(val, "none") {
			continue
		}
		if _, known := values[col]; known {
			mapped[col] = val
		}
	}
	return mapped
}

func (h *Handler) generateFinalSQL(ctx context.Context, input *Input, mapped map[string]string) (string, error) {
	var metadata strings.Builder
	for _, c := range input.Columns {
		fmt.Fprintf(&metadata, "- \"%s\" (%s, table %s): %s\n", c.ColumnName, c.DataType, c.TableName, c.Description)
	}

	prompt := fmt.Sprintf("Question: %s\n\nSchema:\n%s", input.Query, metadata.String())
	if len(mapped) > 0 {
		var exact strings.Builder
		for col, val := range mapped {
			fmt.Fprintf(&exact, "- \"%s\" = '%s'\n", col, val)
		}
		prompt += fmt.Sprintf("\nUse these exact values:\n%s", exact.String())
	}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      sqlSystem,
		Prompt:      prompt,
		Temperature: h.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSQLGenerationFailed, err)
	}

	sql := llm.StripCodeFences(raw)
	if sql == "" {
		return "", fmt.Errorf("%w: empty response", ErrSQLGenerationFailed)
	}
	return sql, nil
}
