package sqlgeneration

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
	responses []string
	errs      []error
	calls     []llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

type fakeEntities struct {
	values map[string][]string
	errs   map[string]error
	asked  []string
}

func (f *fakeEntities) ColumnValues(ctx context.Context, column string) ([]string, error) {
	f.asked = append(f.asked, column)
	if err, ok := f.errs[column]; ok {
		return nil, err
	}
	return f.values[column], nil
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second, Temperature: 0.1}
}

func testColumns() []models.MetadataColumn {
	return []models.MetadataColumn{
		{ColumnName: "Incident State", DataType: "varchar", TableName: "claims_summary", Description: "State where the incident occurred", Score: 0.9},
		{ColumnName: "Occurrence Date", DataType: "date", TableName: "claims_summary", Description: "Date the incident occurred", Score: 0.8},
	}
}

func TestExecute_FullPipeline(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		"Incident State",
		"Incident State: TX",
		"```sql\nSELECT count(*) FROM claims_summary WHERE \"Incident State\" = 'TX'\n```",
	}}
	entities := &fakeEntities{values: map[string][]string{
		"Incident State": {"TX", "CA", "NY"},
	}}
	h := NewHandler(createTestConfig(), fake, entities, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
		Query:   "how many claims in Texas",
		Columns: testColumns(),
	})

	require.NoError(t, err)
	assert.True(t, out.Validated)
	assert.Equal(t, `SELECT count(*) FROM claims_summary WHERE "Incident State" = 'TX'`, out.SQL)
	assert.Equal(t, []string{"Incident State"}, entities.asked)

	// The final prompt carried the mapped exact value.
	require.Len(t, fake.calls, 3)
	assert.Contains(t, fake.calls[2].Prompt, `"Incident State" = 'TX'`)
}

func TestExecute_NoMetadataErrors(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeLLM{}, &fakeEntities{}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{Query: "anything"})

	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestExecute_NoneSelectionSkipsEntityMapping(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		"none",
		"SELECT count(*) FROM claims_summary",
	}}
	entities := &fakeEntities{}
	h := NewHandler(createTestConfig(), fake, entities, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
		Query:   "total claims",
		Columns: testColumns(),
	})

	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM claims_summary", out.SQL)
	assert.Empty(t, entities.asked)
	// Column selection + final SQL only; no value mapping call.
	assert.Len(t, fake.calls, 2)
}

func TestExecute_UnknownColumnsFiltered(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		"Incident State, Imaginary Column",
		"Incident State: CA",
		"SELECT 1",
	}}
	entities := &fakeEntities{values: map[string][]string{
		"Incident State": {"TX", "CA"},
	}}
	h := NewHandler(createTestConfig(), fake, entities, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{
		Query:   "claims in California",
		Columns: testColumns(),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Incident State"}, entities.asked)
}

func TestExecute_UnclearValuesSkipped(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		"Incident State",
		"Incident State: unclear",
		"SELECT count(*) FROM claims_summary",
	}}
	entities := &fakeEntities{values: map[string][]string{
		"Incident State": {"TX", "CA"},
	}}
	h := NewHandler(createTestConfig(), fake, entities, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
		Query:   "claims by state",
		Columns: testColumns(),
	})

	require.NoError(t, err)
	require.Len(t, fake.calls, 3)
	assert.NotContains(t, fake.calls[2].Prompt, "exact values")
	assert.True(t, out.Validated)
}

func TestExecute_EntityLookupFailureTolerated(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		"Incident State",
		"SELECT count(*) FROM claims_summary",
	}}
	entities := &fakeEntities{errs: map[string]error{
		"Incident State": errors.New("db down"),
	}}
	h := NewHandler(createTestConfig(), fake, entities, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{
		Query:   "claims in Texas",
		Columns: testColumns(),
	})

	require.NoError(t, err)
	assert.True(t, out.Validated)
	// With no values collected, the mapping LLM call is skipped.
	assert.Len(t, fake.calls, 2)
}

func TestExecute_FinalSQLFailure(t *testing.T) {
	fake := &fakeLLM{
		responses: []string{"none", ""},
		errs:      []error{nil, errors.New("llm down")},
	}
	h := NewHandler(createTestConfig(), fake, &fakeEntities{}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{
		Query:   "total claims",
		Columns: testColumns(),
	})

	assert.ErrorIs(t, err, ErrSQLGenerationFailed)
}
