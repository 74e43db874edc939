package sqlmodifier

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
	TaskType = "sql-modifier"
)

var (
	ErrNoHistory             = errors.New("NO_SQL_HISTORY")
	ErrSQLModificationFailed = errors.New("SQL_MODIFICATION_FAILED")
)

const modifySystem = `You adjust the time filter of an existing PostgreSQL query.
Change ONLY the date or period conditions so the query covers the requested range.
Keep every other clause, alias, and column exactly as written.
Use standard PostgreSQL date functions (date_trunc, CURRENT_DATE, INTERVAL).
Return ONLY the SQL, no commentary.`

type Handler struct {
	config *Config
	llm    LLMClient
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, client LLMClient, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		llm:    client,
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
	if len(input.History) == 0 {
		return nil, ErrNoHistory
	}

	last := input.History[len(input.History)-1]
	if strings.TrimSpace(last.SQL) == "" {
		return nil, ErrNoHistory
	}

	prompt := fmt.Sprintf("Previous question: %s\n\nPrevious SQL:\n%s\n\nNew question: %s\n",
		last.Question, last.SQL, input.Query)
	if hint := periodHint(input.Period, h.now()); hint != "" {
		prompt += fmt.Sprintf("\nRequested period: %s (%s)\n", input.Period, hint)
	}
	prompt += "\nModified SQL:"

	raw, err := h.llm.Complete(ctx, llm.CompletionRequest{
		System:      modifySystem,
		Prompt:      prompt,
		Temperature: h.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSQLModificationFailed, err)
	}

	sql := llm.StripCodeFences(raw)
	if sql == "" {
		return nil, fmt.Errorf("%w: empty response", ErrSQLModificationFailed)
	}

	h.logger.Info("SQL time filter rewritten", map[string]interface{}{
		"period":  input.Period,
		"changed": sql != strings.TrimSpace(last.SQL),
	})

	return &Output{SQL: sql, Validated: true}, nil
}

// periodHint spells out the concrete date window for a named period so the
// model does not derive calendar math itself.
func periodHint(period string, now time.Time) string {
	today := now.Format("2006-01-02")

	switch period {
	case "today":
		return today
	case "yesterday":
		return now.AddDate(0, 0, -1).Format("2006-01-02")
	case "last_week":
		start := startOfWeek(now).AddDate(0, 0, -7)
		return rangeHint(start, start.AddDate(0, 0, 6))
	case "this_month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return rangeHint(start, now)
	case "last_month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		return rangeHint(start, start.AddDate(0, 1, -1))
	case "this_quarter":
		start, end := quarterBounds(now)
		return rangeHint(start, end)
	case "last_quarter":
		curStart, _ := quarterBounds(now)
		start, end := quarterBounds(curStart.AddDate(0, 0, -1))
		return rangeHint(start, end)
	case "this_year":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return rangeHint(start, now)
	case "last_year":
		start := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location())
		return rangeHint(start, start.AddDate(1, 0, -1))
	}
	return ""
}

func rangeHint(start, end time.Time) string {
	return fmt.Sprintf("%s to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// startOfWeek returns the Monday of the week containing t.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}

func quarterBounds(t time.Time) (time.Time, time.Time) {
	quarter := (int(t.Month()) - 1) / 3
	start := time.Date(t.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 3, -1)
}
