package kpieditor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
)

const (
	TaskType = "kpi-editor"
)

var (
	ErrMissingKPI    = errors.New("MISSING_KPI")
	ErrSQLEditFailed = errors.New("SQL_EDIT_FAILED")
)

const additionalColumnsSystem = `You review a stored SQL query against a user question and pick the
additional columns it needs from the provided list. Columns often come in code/name pairs;
when one side of a pair is needed, include BOTH and prefer the CODE column for filtering and grouping.
Reply with a comma-separated list of column names from the list, or "none".`

const mappingNeedsSystem = `You decide which of the selected columns need their user wording mapped
to exact stored values. Temporal columns (dates, periods), categorical columns (types, statuses,
incident kinds such as crash, cargo, work comp), numeric thresholds, and conditional flags qualify.
Reply with a comma-separated list of column names, or "none".`

const intentMappingSystem = `You map the user's wording to constraints on columns.
Reply one line per column as "Column Name: logic_type:value" where logic_type is one of
temporal (value like current_month, current_week, today, or 2025-Q3),
numeric (value like >10000), conditional (value like 1), categorical (an exact stored value).
Use "unclear" when the question gives no constraint for a column.`

const editSystem = `You minimally edit a stored PostgreSQL query so it answers the user's question.
Preserve its structure and intent; change only what the question requires.
Rules:
- NOT NULL checks: apply TRIM() only to text columns, never to dates or numerics.
- GROUP BY code columns, not their display-name twins.
- Use standard PostgreSQL date functions and the provided date ranges for quarters.
Return ONLY the SQL, no commentary.`

type Handler struct {
	config   *Config
	llm      LLMClient
	entities EntityValues
	logger   logger.Logger
	now      func() time.Time
}

func NewHandler(config *Config, client LLMClient, entities EntityValues, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		llm:      client,
		entities: entities,
		logger: log.With(map[string]interface{}{
			"node": TaskType,
		}),
		now: time.Now,
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.KPI == nil || input.KPI.SQLQuery == "" {
		return nil, ErrMissingKPI
	}

	additional := h.analyzeAdditionalColumns(ctx, input)

	needMapping := h.analyzeMappingNeeds(ctx, input, additional)

	values := make(map[string][]string)
	for _, col := range needMapping {
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

	constraints := h.mapIntent(ctx, input.Query, values)

	edited, err := h.editSQL(ctx, input, additional, constraints)
	if err != nil {
		return nil, err
	}

	modifications := []string{"Modified SQL query to better match user requirements"}
	if edited == strings.TrimSpace(input.KPI.SQLQuery) {
		modifications = []string{"No changes needed"}
	}

	h.logger.Info("KPI SQL edited", map[string]interface{}{
		"additionalColumns": len(additional),
		"constraints":       len(constraints),
		"changed":           edited != strings.TrimSpace(input.KPI.SQLQuery),
	})

	return &Output{SQL: edited, Validated: true, Modifications: modifications}, nil
}

func (h *Handler) analyzeAdditionalColumns(ctx context.Context, input *Input) []string {
	if len(input.Columns) == 0 {
		return nil
	}

	available := make(map[string]bool, len(input.Columns))
	var list strings.Builder
	for _, c := range input.Columns {
		available[c.ColumnName] = true
		fmt.Fprintf(&list, "- %s (%s): %s\n", c.ColumnName, c.DataType, c.Description)
	}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System: additionalColumnsSystem,
		Prompt: fmt.Sprintf("Question: %s\n\nStored SQL:\n%s\n\nColumns:\n%s\nAdditional columns:",
			input.Query, input.KPI.SQLQuery, list.String()),
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("additional column analysis failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	return parseColumnList(raw, available)
}

// analyzeMappingNeeds decides which columns need value mapping. On failure,
// every selected column is mapped.
func (h *Handler) analyzeMappingNeeds(ctx context.Context, input *Input, selected []string) []string {
	if len(selected) == 0 {
		return nil
	}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System: mappingNeedsSystem,
		Prompt: fmt.Sprintf("Question: %s\nSelected columns: %s\nColumns needing value mapping:",
			input.Query, strings.Join(selected, ", ")),
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("mapping-needs analysis failed, mapping all selected columns", map[string]interface{}{
			"error": err.Error(),
		})
		return selected
	}

	allowed := make(map[string]bool, len(selected))
	for _, s := range selected {
		allowed[s] = true
	}
	return parseColumnList(raw, allowed)
}

// mapIntent binds the question to logic_type:value constraints per column.
func (h *Handler) mapIntent(ctx context.Context, query string, values map[string][]string) map[string]string {
	if len(values) == 0 {
		return nil
	}

	var lists strings.Builder
	for col, vals := range values {
		fmt.Fprintf(&lists, "%s: %s\n", col, strings.Join(vals, ", "))
	}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      intentMappingSystem,
		Prompt:      fmt.Sprintf("Question: %s\n\nAvailable values:\n%s", query, lists.String()),
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("intent mapping failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	constraints := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		col := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if val == "" || strings.EqualFold(val, "unclear") {
			continue
		}
		if _, known := values[col]; known {
			constraints[col] = val
		}
	}
	return constraints
}

func (h *Handler) editSQL(ctx context.Context, input *Input, additional []string, constraints map[string]string) (string, error) {
	prompt := fmt.Sprintf("Question: %s\n\nStored SQL:\n%s\n\nToday is %s. %s",
		input.Query, input.KPI.SQLQuery,
		h.now().Format("2006-01-02"), quarterRanges(h.now()))

	if len(additional) > 0 {
		prompt += fmt.Sprintf("\nAdditional columns available: %s", strings.Join(additional, ", "))
	}
	if len(constraints) > 0 {
		var lines strings.Builder
		for col, val := range constraints {
			fmt.Fprintf(&lines, "- %s -> %s\n", col, val)
		}
		prompt += fmt.Sprintf("\nApply these constraints:\n%s", lines.String())
	}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      editSystem,
		Prompt:      prompt,
		Temperature: h.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSQLEditFailed, err)
	}

	sql := llm.StripCodeFences(raw)
	if sql == "" {
		return "", fmt.Errorf("%w: empty response", ErrSQLEditFailed)
	}
	return sql, nil
}

// quarterRanges spells out the current and previous quarter date windows so
// the model does not have to derive them.
func quarterRanges(now time.Time) string {
	curStart, curEnd := quarterBounds(now)
	prevStart, prevEnd := quarterBounds(curStart.AddDate(0, 0, -1))

	return fmt.Sprintf("Current quarter: %s to %s. Previous quarter: %s to %s.",
		curStart.Format("2006-01-02"), curEnd.Format("2006-01-02"),
		prevStart.Format("2006-01-02"), prevEnd.Format("2006-01-02"))
}

func quarterBounds(t time.Time) (time.Time, time.Time) {
	quarter := (int(t.Month()) - 1) / 3
	start := time.Date(t.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 3, -1)
	return start, end
}

func parseColumnList(raw string, allowed map[string]bool) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil
	}

	var out []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if allowed[name] {
			out = append(out, name)
		}
	}
	return out
}
