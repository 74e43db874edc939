package kpiretrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/search"
)

type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.vector, f.err
}

type fakeSearcher struct {
	hits     []search.Hit
	errs     []error
	attempts int
	lastK    int
	lastIdx  string
}

func (f *fakeSearcher) KNNSearch(ctx context.Context, index string, vector []float64, k int, fields []string) ([]search.Hit, error) {
	i := f.attempts
	f.attempts++
	f.lastK = k
	f.lastIdx = index
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.hits, nil
}

func createTestConfig() *Config {
	return &Config{
		Index:      "kpi-definitions",
		TopK:       3,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}
}

func TestExecute_SelectsTopHit(t *testing.T) {
	searcher := &fakeSearcher{
		hits: []search.Hit{
			{
				ID:    "kpi-1",
				Score: 0.95,
				Source: map[string]interface{}{
					"metric_name":   "Claim Frequency",
					"description":   "Claims per million miles",
					"sql_query":     "SELECT count(*) FROM claims",
					"table_columns": "claim_id, occurred_at",
				},
			},
			{ID: "kpi-2", Score: 0.70, Source: map[string]interface{}{"metric_name": "Loss Ratio"}},
		},
	}
	h := NewHandler(createTestConfig(), &fakeEmbedder{vector: []float64{0.1, 0.2}}, searcher, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Query: "how often do claims occur"})

	require.NoError(t, err)
	require.NotNil(t, out.TopKPI)
	assert.Equal(t, "kpi-1", out.TopKPI.ID)
	assert.Equal(t, "Claim Frequency", out.TopKPI.MetricName)
	assert.Equal(t, "SELECT count(*) FROM claims", out.TopKPI.SQLQuery)
	assert.Equal(t, 2, out.Hits)
	assert.Equal(t, "kpi-definitions", searcher.lastIdx)
	assert.Equal(t, 3, searcher.lastK)
}

func TestExecute_EmptyQueryIsNoOp(t *testing.T) {
	searcher := &fakeSearcher{}
	h := NewHandler(createTestConfig(), &fakeEmbedder{}, searcher, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{Query: ""})

	require.NoError(t, err)
	assert.Nil(t, out.TopKPI)
	assert.Zero(t, searcher.attempts)
}

func TestExecute_NoHits(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeEmbedder{vector: []float64{0.1}}, &fakeSearcher{}, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Query: "unrelated question"})

	require.NoError(t, err)
	assert.Nil(t, out.TopKPI)
	assert.Zero(t, out.Hits)
}

func TestExecute_RetriesSearchThenSucceeds(t *testing.T) {
	searcher := &fakeSearcher{
		hits: []search.Hit{{ID: "kpi-1", Source: map[string]interface{}{"metric_name": "Claim Frequency"}}},
		errs: []error{errors.New("transient"), nil},
	}
	h := NewHandler(createTestConfig(), &fakeEmbedder{vector: []float64{0.1}}, searcher, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{Query: "claim frequency"})

	require.NoError(t, err)
	require.NotNil(t, out.TopKPI)
	assert.Equal(t, 2, searcher.attempts)
}

func TestExecute_SearchExhaustsRetries(t *testing.T) {
	searcher := &fakeSearcher{
		errs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	h := NewHandler(createTestConfig(), &fakeEmbedder{vector: []float64{0.1}}, searcher, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{Query: "claim frequency"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchFailed)
}

func TestExecute_EmbeddingError(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeEmbedder{err: errors.New("api down")}, &fakeSearcher{}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{Query: "claim frequency"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
