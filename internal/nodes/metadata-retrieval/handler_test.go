package metadataretrieval

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
	"riskintel-assistant/internal/search"
)

type fakeLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{0.1, 0.2}, nil
}

type fakeSearcher struct {
	byQuery  map[int][]search.Hit // indexed by call number
	errs     map[int]error
	calls    int
	lastKs   []int
	searched []int
}

func (f *fakeSearcher) KNNSearch(ctx context.Context, index string, vector []float64, k int, fields []string) ([]search.Hit, error) {
	i := f.calls
	f.calls++
	f.lastKs = append(f.lastKs, k)
	f.searched = append(f.searched, i)
	if err, ok := f.errs[i]; ok {
		return nil, err
	}
	return f.byQuery[i], nil
}

func createTestConfig() *Config {
	return &Config{
		Index:        "schema-metadata",
		TopK:         4,
		FallbackTopK: 10,
		Timeout:      5 * time.Second,
		MaxRetries:   1,
		Temperature:  0.0,
	}
}

func metaHit(id, column string, score float64) search.Hit {
	return search.Hit{
		ID:    id,
		Score: score,
		Source: map[string]interface{}{
			"column_name": column,
			"description": "desc of " + column,
			"data_type":   "varchar",
			"table_name":  "claims_summary",
		},
	}
}

func TestExecute_TargetedSearchesAndDedup(t *testing.T) {
	llmFake := &fakeLLM{responses: []string{
		`{"needs_counting": true, "needs_dates": true}`,
		"date when the incident occurred\ndollar amount paid",
	}}
	searcher := &fakeSearcher{
		byQuery: map[int][]search.Hit{
			0: {metaHit("m1", "Occurrence Date", 0.9), metaHit("m2", "Paid Amount", 0.4)},
			1: {metaHit("m3", "Paid Amount", 0.8)},
		},
	}
	h := NewHandler(createTestConfig(), llmFake, &fakeEmbedder{}, searcher, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Query: "total paid per month"})

	require.NoError(t, err)
	require.Len(t, out.Columns, 2)
	assert.Equal(t, 2, searcher.calls)
	assert.Equal(t, []int{4, 4}, searcher.lastKs)

	// Dedup kept the higher-scoring Paid Amount hit.
	paid, ok := out.Lookup["Paid Amount"]
	require.True(t, ok)
	assert.Equal(t, "m3", paid.ID)
	assert.InDelta(t, 0.8, paid.Score, 0.001)

	_, hasDate := out.Lookup["Occurrence Date"]
	assert.True(t, hasDate)
}

func TestExecute_FallbackDirectSearchWhenNoDescriptions(t *testing.T) {
	llmFake := &fakeLLM{responses: []string{
		`{"needs_counting": true}`,
		"", // no descriptions generated
	}}
	searcher := &fakeSearcher{
		byQuery: map[int][]search.Hit{
			0: {metaHit("m1", "Claim Status", 0.7)},
		},
	}
	h := NewHandler(createTestConfig(), llmFake, &fakeEmbedder{}, searcher, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Query: "open claims"})

	require.NoError(t, err)
	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, []int{10}, searcher.lastKs)
	_, ok := out.Lookup["Claim Status"]
	assert.True(t, ok)
}

func TestExecute_GuaranteesOccurrenceDate(t *testing.T) {
	llmFake := &fakeLLM{responses: []string{
		`{"needs_counting": true}`,
		"claim status values",
	}}
	searcher := &fakeSearcher{
		byQuery: map[int][]search.Hit{
			0: {metaHit("m1", "Claim Status", 0.7)},
		},
	}
	h := NewHandler(createTestConfig(), llmFake, &fakeEmbedder{}, searcher, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Query: "open claims"})

	require.NoError(t, err)
	date, ok := out.Lookup["Occurrence Date"]
	require.True(t, ok)
	assert.Equal(t, "guaranteed_occurrence_date", date.ID)
	assert.Equal(t, "claims_summary", date.TableName)
}

func TestExecute_RequirementsFailureFailsOpen(t *testing.T) {
	llmFake := &fakeLLM{
		errs:      []error{errors.New("llm down"), errors.New("llm down")},
		responses: []string{"", ""},
	}
	searcher := &fakeSearcher{
		byQuery: map[int][]search.Hit{
			0: {metaHit("m1", "Claim Count", 0.6)},
		},
	}
	h := NewHandler(createTestConfig(), llmFake, &fakeEmbedder{}, searcher, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{Query: "how many claims"})

	// Both LLM calls failed; the node still answers via the direct search.
	require.NoError(t, err)
	assert.Equal(t, []int{10}, searcher.lastKs)
	_, ok := out.Lookup["Claim Count"]
	assert.True(t, ok)
}

func TestExecute_PerDescriptionFailureSkipped(t *testing.T) {
	cfg := createTestConfig()
	cfg.MaxRetries = 0

	llmFake := &fakeLLM{responses: []string{
		`{"needs_dates": true}`,
		"incident date\nclaim cost",
	}}
	searcher := &fakeSearcher{
		byQuery: map[int][]search.Hit{
			1: {metaHit("m2", "Claim Cost", 0.5)},
		},
		errs: map[int]error{0: errors.New("shard failure")},
	}
	h := NewHandler(cfg, llmFake, &fakeEmbedder{}, searcher, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{Query: "cost by date"})

	require.NoError(t, err)
	_, ok := out.Lookup["Claim Cost"]
	assert.True(t, ok)
}

func TestDeduplicateColumns(t *testing.T) {
	in := []models.MetadataColumn{
		{ColumnName: "A", Score: 0.2, ID: "low"},
		{ColumnName: "B", Score: 0.9, ID: "b"},
		{ColumnName: "A", Score: 0.8, ID: "high"},
		{ColumnName: "", Score: 1.0, ID: "nameless"},
	}

	out := deduplicateColumns(in)

	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}
