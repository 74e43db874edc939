package llmchecker

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
	TaskType = "llm-checker"
)

const scopeSystem = `You are a scope gate for a transportation claims analytics assistant.
Given the available database columns, decide whether the user's request can be answered from them.
Return ONLY JSON: {"decision": "IN_SCOPE" or "OUT_OF_SCOPE", "confidence": "HIGH"/"MEDIUM"/"LOW", "reasoning": "..."}`

const matchSystem = `You decide whether a stored KPI query answers the user's question.
Answer with exactly one word:
perfect_match - the stored query answers the question as-is
needs_minor_edit - the stored query needs a small change (filter, date range, grouping)
not_relevant - the stored query does not answer this question`

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
	out := &Output{}

	if len(input.Columns) > 0 {
		out.Scope = h.checkScope(ctx, input)
		if out.Scope.Decision == models.ScopeOutOfScope && out.Scope.Confidence == models.ConfidenceHigh {
			out.Blocked = true
			out.Refusal = fmt.Sprintf(
				"I cannot answer this request with the available claims data.\n\n**Reason:** %s\n\nWould you like to ask a related question?",
				out.Scope.Reasoning,
			)
			h.logger.Info("request blocked as out of scope", map[string]interface{}{
				"reasoning": out.Scope.Reasoning,
			})
			return out, nil
		}
	}

	out.Match = h.matchKPI(ctx, input)
	return out, nil
}

// checkScope labels the request against the retrieved columns. Every failure
// path fails open to IN_SCOPE; blocking a legitimate question is worse than
// letting a doomed one through.
func (h *Handler) checkScope(ctx context.Context, input *Input) *models.ScopeCheck {
	failOpen := &models.ScopeCheck{
		Decision:   models.ScopeInScope,
		Confidence: models.ConfidenceLow,
		Reasoning:  "Scope check unavailable; proceeding",
	}

	var list strings.Builder
	for _, c := range input.Columns {
		fmt.Fprintf(&list, "- %s: %s\n", c.ColumnName, c.Description)
	}

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      scopeSystem,
		Prompt:      fmt.Sprintf("Available columns:\n%s\nUser request: %s", list.String(), input.Query),
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("scope check LLM failed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return failOpen
	}

	var scope models.ScopeCheck
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &scope); err != nil {
		h.logger.Warn("scope check response malformed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return failOpen
	}

	scope.Decision = strings.ToUpper(strings.TrimSpace(scope.Decision))
	scope.Confidence = strings.ToUpper(strings.TrimSpace(scope.Confidence))
	return &scope
}

// matchKPI decides whether the retrieved KPI can be reused. Unexpected output
// and errors default to not_relevant so the SQL generator takes over.
func (h *Handler) matchKPI(ctx context.Context, input *Input) *models.KPIMatch {
	if input.TopKPI == nil {
		return &models.KPIMatch{
			Decision:   models.MatchNotRelevant,
			Confidence: models.ConfidenceHigh,
			Reasoning:  "No KPIs found in retrieval",
		}
	}

	prompt := fmt.Sprintf(
		"User question: %s\n\nStored KPI: %s\nDescription: %s\nSQL:\n%s\n\nDecision:",
		input.Query, input.TopKPI.MetricName, input.TopKPI.Description, input.TopKPI.SQLQuery,
	)

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      matchSystem,
		Prompt:      prompt,
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Warn("KPI match LLM failed, defaulting to not_relevant", map[string]interface{}{
			"error": err.Error(),
		})
		return &models.KPIMatch{
			Decision:   models.MatchNotRelevant,
			Confidence: models.ConfidenceLow,
			Reasoning:  "KPI match check unavailable",
		}
	}

	decision := strings.ToLower(strings.TrimSpace(raw))
	switch decision {
	case models.MatchPerfect, models.MatchMinorEdit, models.MatchNotRelevant:
		return &models.KPIMatch{
			Decision:   decision,
			Confidence: models.ConfidenceHigh,
			Reasoning:  fmt.Sprintf("Stored KPI '%s' evaluated against the question", input.TopKPI.MetricName),
		}
	default:
		h.logger.Warn("unexpected KPI match output", map[string]interface{}{
			"output": raw,
		})
		return &models.KPIMatch{
			Decision:   models.MatchNotRelevant,
			Confidence: models.ConfidenceLow,
			Reasoning:  "Unexpected match output",
		}
	}
}
