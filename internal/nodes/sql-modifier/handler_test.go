package sqlmodifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskintel-assistant/internal/common/llm"
	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
)

type fakeLLM struct {
	response string
	err      error
	calls    []llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second, Temperature: 0.0}
}

func testHistory() []models.SQLHistoryEntry {
	return []models.SQLHistoryEntry{
		{
			Question: "claims last month",
			SQL:      `SELECT count(*) FROM claims_summary WHERE "Occurrence Date" >= date_trunc('month', CURRENT_DATE - INTERVAL '1 month')`,
		},
	}
}

func TestExecute_RewritesTimeFilter(t *testing.T) {
	fake := &fakeLLM{response: "```sql\nSELECT count(*) FROM claims_summary WHERE \"Occurrence Date\" >= date_trunc('quarter', CURRENT_DATE - INTERVAL '3 month')\n```"}
	h := NewHandler(createTestConfig(), fake, logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC) }

	out, err := h.Execute(context.Background(), &Input{
		Query:   "what about last quarter",
		Period:  "last_quarter",
		History: testHistory(),
	})

	require.NoError(t, err)
	assert.True(t, out.Validated)
	assert.Contains(t, out.SQL, "date_trunc('quarter'")

	// The prompt carries the prior SQL and the concrete date window.
	require.Len(t, fake.calls, 1)
	assert.Contains(t, fake.calls[0].Prompt, "Previous SQL:")
	assert.Contains(t, fake.calls[0].Prompt, "2026-04-01 to 2026-06-30")
}

func TestExecute_NoHistory(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeLLM{}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{Query: "what about last week"})

	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestExecute_BlankLastSQL(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeLLM{}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{
		Query:   "what about last week",
		History: []models.SQLHistoryEntry{{Question: "hello", SQL: "  "}},
	})

	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestExecute_LLMFailure(t *testing.T) {
	fake := &fakeLLM{err: errors.New("llm down")}
	h := NewHandler(createTestConfig(), fake, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{
		Query:   "what about last week",
		Period:  "last_week",
		History: testHistory(),
	})

	assert.ErrorIs(t, err, ErrSQLModificationFailed)
}

func TestExecute_EmptyResponse(t *testing.T) {
	fake := &fakeLLM{response: "```sql\n\n```"}
	h := NewHandler(createTestConfig(), fake, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{
		Query:   "what about last week",
		Period:  "last_week",
		History: testHistory(),
	})

	assert.ErrorIs(t, err, ErrSQLModificationFailed)
}

func TestPeriodHint(t *testing.T) {
	now := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC) // a Sunday

	tests := []struct {
		period string
		want   string
	}{
		{"today", "2026-08-23"},
		{"yesterday", "2026-08-22"},
		{"last_week", "2026-08-10 to 2026-08-16"},
		{"this_month", "2026-08-01 to 2026-08-23"},
		{"last_month", "2026-07-01 to 2026-07-31"},
		{"this_quarter", "2026-07-01 to 2026-09-30"},
		{"last_quarter", "2026-04-01 to 2026-06-30"},
		{"this_year", "2026-01-01 to 2026-08-23"},
		{"last_year", "2025-01-01 to 2025-12-31"},
		{"unknown_period", ""},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			assert.Equal(t, tt.want, periodHint(tt.period, now))
		})
	}
}

func TestStartOfWeek(t *testing.T) {
	// A Wednesday and a Monday both resolve to the same Monday.
	wed := time.Date(2026, 8, 19, 15, 30, 0, 0, time.UTC)
	mon := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, mon, startOfWeek(wed))
	assert.Equal(t, mon, startOfWeek(mon))
}
