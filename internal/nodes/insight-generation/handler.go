package insightgeneration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
)

const (
	TaskType = "insight-generation"
)

const insightSystem = `You are a transportation risk analyst summarizing claims query results.
Given the user's question, the executed SQL, and a sample of the rows, reply with a JSON object:
{
  "sql_query_reasoning": "what the query measures and why it fits the question",
  "data_summary": "plain-language summary of what the data shows",
  "key_findings": ["finding", ...],
  "risk_assessment": "risk reading of the numbers",
  "recommendations": ["action", ...],
  "trends_patterns": "trends visible in the data, or empty",
  "business_impact": "operational or financial impact, or empty"
}
Reply with JSON only, no commentary.`

type Handler struct {
	config *Config
	llm    LLMClient
	logger logger.Logger
}

func NewHandler(config *Config, client LLMClient, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		llm:    client,
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
	if !shouldProcess(input.Retrieval) {
		insights := noDataInsights(input.Retrieval)
		return &Output{Insights: insights, Response: renderResponse(insights)}, nil
	}

	retrieval := input.Retrieval
	sample := sampleRows(retrieval.Rows, h.config.SampleRows)

	insights := h.analyzeWithLLM(ctx, input.Query, retrieval, sample)
	if insights == nil {
		insights = aggregateInsights(retrieval)
		h.logger.Warn("falling back to computed aggregation", map[string]interface{}{
			"rows": retrieval.RowCount,
		})
	}

	insights.ExecutionTime = retrieval.ExecutionTime
	insights.DataPreview = sample
	insights.TotalRows = retrieval.RowCount

	return &Output{Insights: insights, Response: renderResponse(insights)}, nil
}

// analyzeWithLLM asks for structured insights. A malformed JSON reply is
// kept as free-form analysis; a failed call returns nil so the caller can
// fall back to computed aggregates.
func (h *Handler) analyzeWithLLM(ctx context.Context, query string, retrieval *models.RetrievalResult, sample []map[string]interface{}) *models.Insights {
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return nil
	}

	prompt := fmt.Sprintf("Question: %s\n\nExecuted SQL:\n%s\n\nTotal rows: %d\nSample rows (up to %d):\n%s",
		query, retrieval.QueryExecuted, retrieval.RowCount, h.config.SampleRows, sampleJSON)

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      insightSystem,
		Prompt:      prompt,
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("insight call failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	cleaned := llm.StripCodeFences(raw)
	var insights models.Insights
	if err := json.Unmarshal([]byte(cleaned), &insights); err != nil {
		h.logger.Warn("insight response was not JSON, keeping as free-form analysis", map[string]interface{}{
			"error": err.Error(),
		})
		return &models.Insights{
			DataSummary: firstLine(cleaned),
			AIAnalysis:  cleaned,
		}
	}
	return &insights
}

func shouldProcess(r *models.RetrievalResult) bool {
	if r == nil {
		return false
	}
	return r.Success || len(r.Rows) > 0 || r.RowCount > 0
}

func noDataInsights(r *models.RetrievalResult) *models.Insights {
	insights := &models.Insights{
		DataSummary:     "No data available for analysis",
		Recommendations: []string{"Ensure data retrieval is successful"},
	}
	if r != nil && r.Error != "" {
		insights.AIAnalysis = fmt.Sprintf("Query failed: %s", r.Error)
	}
	return insights
}

// aggregateInsights computes simple numeric summaries when the model is
// unavailable, so the turn still produces something grounded in the rows.
func aggregateInsights(r *models.RetrievalResult) *models.Insights {
	insights := &models.Insights{
		DataSummary: fmt.Sprintf("Retrieved %d rows across %d columns.", r.RowCount, len(r.Columns)),
	}

	for _, col := range r.Columns {
		count := 0
		var sum, min, max float64
		for _, row := range r.Rows {
			n, ok := asFloat(row[col])
			if !ok {
				continue
			}
			if count == 0 {
				min, max = n, n
			}
			if n < min {
				min = n
			}
			if n > max {
				max = n
			}
			sum += n
			count++
		}
		if count > 0 {
			insights.KeyFindings = append(insights.KeyFindings,
				fmt.Sprintf("%s: total %.2f, min %.2f, max %.2f over %d values", col, sum, min, max, count))
		}
	}
	return insights
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func sampleRows(rows []map[string]interface{}, n int) []map[string]interface{} {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}

// renderResponse flattens insights into the text shown to the user.
func renderResponse(in *models.Insights) string {
	var b strings.Builder

	if in.DataSummary != "" {
		b.WriteString(in.DataSummary)
		b.WriteString("\n")
	}
	if len(in.KeyFindings) > 0 {
		b.WriteString("\n**Key findings:**\n")
		for _, f := range in.KeyFindings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if in.RiskAssessment != "" {
		fmt.Fprintf(&b, "\n**Risk assessment:** %s\n", in.RiskAssessment)
	}
	if in.TrendsPatterns != "" {
		fmt.Fprintf(&b, "\n**Trends:** %s\n", in.TrendsPatterns)
	}
	if in.BusinessImpact != "" {
		fmt.Fprintf(&b, "\n**Business impact:** %s\n", in.BusinessImpact)
	}
	if len(in.Recommendations) > 0 {
		b.WriteString("\n**Recommendations:**\n")
		for _, r := range in.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if b.Len() == 0 && in.AIAnalysis != "" {
		b.WriteString(in.AIAnalysis)
	}
	return strings.TrimSpace(b.String())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
