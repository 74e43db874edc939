package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
)

const (
	TaskType = "orchestrator"
)

var (
	ErrRoutingFailed = errors.New("ROUTING_FAILED")
	ErrLLMTimeout    = errors.New("LLM_TIMEOUT")
)

const routingSystem = `You are the router of a transportation risk analytics assistant.
Decide whether the user's message needs database analysis or a direct conversational reply.
Answer with exactly one word: DATA_ANALYSIS or DIRECT_REPLY.
Questions about claims, incidents, metrics, counts, trends, or anything answerable from data are DATA_ANALYSIS.
Greetings, thanks, questions about your capabilities, and small talk are DIRECT_REPLY.
Short follow-ups like "what about last month?" continue the previous topic; if the previous topic was a data question, answer DATA_ANALYSIS.`

const replySystem = `You are a helpful assistant for transportation risk management.
Answer the user conversationally. You can analyze claims and incident data when asked;
mention that capability when the user wonders what you can do. Keep replies short.`

// temporalPatterns maps a period key to the phrases that request it.
var temporalPatterns = map[string][]string{
	"last_week":    {"last week", "previous week", "past week"},
	"last_month":   {"last month", "previous month", "past month"},
	"last_quarter": {"last quarter", "previous quarter", "past quarter"},
	"last_year":    {"last year", "previous year", "past year"},
	"today":        {"today", "current day"},
	"yesterday":    {"yesterday"},
	"this_month":   {"this month", "current month"},
	"this_quarter": {"this quarter", "current quarter"},
	"this_year":    {"this year", "current year"},
}

var followUpPhrases = []string{"what about", "how about", "show me for", "and for", "also for"}

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
	if period := detectTemporalFollowUp(input.UserQuery, input.SQLHistory); period != "" {
		h.logger.Info("temporal follow-up detected", map[string]interface{}{
			"period": period,
		})
		return &Output{Decision: DecisionSQLModification, Period: period}, nil
	}

	prompt := fmt.Sprintf("Conversation so far:\n%s\nUser message: %s\n\nDecision:",
		formatHistory(input.Messages), input.UserQuery)

	raw, err := h.completeWithRetry(ctx, llm.CompletionRequest{
		System:      routingSystem,
		Prompt:      prompt,
		Temperature: h.config.Temperature,
	})
	if err != nil {
		return nil, err
	}

	if strings.Contains(strings.ToUpper(raw), DecisionDataAnalysis) {
		h.logger.Info("routing to data analysis", nil)
		return &Output{Decision: DecisionDataAnalysis}, nil
	}

	replyPrompt := fmt.Sprintf("Conversation so far:\n%s\nUser message: %s",
		formatHistory(input.Messages), input.UserQuery)

	reply, err := h.completeWithRetry(ctx, llm.CompletionRequest{
		System:      replySystem,
		Prompt:      replyPrompt,
		Temperature: h.config.Temperature,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("direct reply generated", map[string]interface{}{
		"replyLength": len(reply),
	})

	return &Output{
		Decision: DecisionDirectReply,
		Reply:    strings.TrimSpace(reply),
		Complete: true,
	}, nil
}

func (h *Handler) completeWithRetry(ctx context.Context, req llm.CompletionRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ErrLLMTimeout
			}
		}

		out, err := h.llm.Complete(ctx, req)

		if ctx.Err() != nil ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return "", ErrLLMTimeout
		}

		if err == nil {
			return out, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrRoutingFailed, lastErr)
}

// detectTemporalFollowUp reports the period key when the message is a short
// temporal follow-up to a previously executed query, so the stored SQL can be
// modified instead of regenerated.
func detectTemporalFollowUp(query string, history []models.SQLHistoryEntry) string {
	if len(history) == 0 {
		return ""
	}

	lower := strings.ToLower(query)

	period := ""
	for key, phrases := range temporalPatterns {
		for _, p := range phrases {
			if strings.Contains(lower, p) {
				period = key
				break
			}
		}
		if period != "" {
			break
		}
	}
	if period == "" {
		return ""
	}

	isFollowUp := len(strings.Fields(lower)) <= 5
	if !isFollowUp {
		for _, p := range followUpPhrases {
			if strings.Contains(lower, p) {
				isFollowUp = true
				break
			}
		}
	}
	if !isFollowUp {
		return ""
	}

	last := history[len(history)-1]
	if !hasTimeContext(last.Question, last.SQL) {
		return ""
	}

	return period
}

// hasTimeContext checks the previous turn for evidence of date logic.
func hasTimeContext(question, sql string) bool {
	lowerQ := strings.ToLower(question)
	for _, w := range []string{"week", "month", "quarter", "year", "today", "yesterday", "date"} {
		if strings.Contains(lowerQ, w) {
			return true
		}
	}

	upperSQL := strings.ToUpper(sql)
	for _, fn := range []string{"DATE_TRUNC", "CURRENT_DATE", "NOW()", "EXTRACT", "INTERVAL"} {
		if strings.Contains(upperSQL, fn) {
			return true
		}
	}

	return false
}

// formatHistory renders the conversation for prompts: role-prefixed lines
// truncated to 150 chars, plus a short topic summary.
func formatHistory(messages []models.Message) string {
	if len(messages) == 0 {
		return "No prior conversation.\n"
	}

	var b strings.Builder
	var topics []string
	dataRequests := 0

	for _, m := range messages {
		content := m.Content
		if len(content) > 150 {
			content = content[:150] + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)

		if m.Role == models.RoleUser {
			topics = append(topics, content)
			if looksLikeDataRequest(content) {
				dataRequests++
			}
		}
	}

	if len(topics) > 3 {
		topics = topics[len(topics)-3:]
	}
	fmt.Fprintf(&b, "Recent topics: %s\n", strings.Join(topics, " | "))
	fmt.Fprintf(&b, "Data-related requests so far: %d\n", dataRequests)

	return b.String()
}

func looksLikeDataRequest(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range []string{"how many", "count", "total", "average", "trend", "show me", "list", "claim", "incident"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
