package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
	databaseretrieval "riskintel-assistant/internal/nodes/database-retrieval"
	insightgeneration "riskintel-assistant/internal/nodes/insight-generation"
	kpieditor "riskintel-assistant/internal/nodes/kpi-editor"
	kpiretrieval "riskintel-assistant/internal/nodes/kpi-retrieval"
	llmchecker "riskintel-assistant/internal/nodes/llm-checker"
	metadataretrieval "riskintel-assistant/internal/nodes/metadata-retrieval"
	"riskintel-assistant/internal/nodes/orchestrator"
	sqlgeneration "riskintel-assistant/internal/nodes/sql-generation"
	sqlmodifier "riskintel-assistant/internal/nodes/sql-modifier"
)

type fakeOrchestrator struct {
	out *orchestrator.Output
	err error
}

func (f *fakeOrchestrator) Execute(ctx context.Context, in *orchestrator.Input) (*orchestrator.Output, error) {
	return f.out, f.err
}

type fakeKPIRetrieval struct {
	out *kpiretrieval.Output
	err error
}

func (f *fakeKPIRetrieval) Execute(ctx context.Context, in *kpiretrieval.Input) (*kpiretrieval.Output, error) {
	return f.out, f.err
}

type fakeMetadata struct {
	out *metadataretrieval.Output
	err error
}

func (f *fakeMetadata) Execute(ctx context.Context, in *metadataretrieval.Input) (*metadataretrieval.Output, error) {
	return f.out, f.err
}

type fakeChecker struct {
	out *llmchecker.Output
	err error
}

func (f *fakeChecker) Execute(ctx context.Context, in *llmchecker.Input) (*llmchecker.Output, error) {
	return f.out, f.err
}

type fakeSQLGen struct {
	out    *sqlgeneration.Output
	err    error
	called bool
}

func (f *fakeSQLGen) Execute(ctx context.Context, in *sqlgeneration.Input) (*sqlgeneration.Output, error) {
	f.called = true
	return f.out, f.err
}

type fakeEditor struct {
	out    *kpieditor.Output
	err    error
	called bool
}

func (f *fakeEditor) Execute(ctx context.Context, in *kpieditor.Input) (*kpieditor.Output, error) {
	f.called = true
	return f.out, f.err
}

type fakeModifier struct {
	out    *sqlmodifier.Output
	err    error
	called bool
}

func (f *fakeModifier) Execute(ctx context.Context, in *sqlmodifier.Input) (*sqlmodifier.Output, error) {
	f.called = true
	return f.out, f.err
}

type fakeDatabase struct {
	out     *models.RetrievalResult
	err     error
	lastSQL string
}

func (f *fakeDatabase) Execute(ctx context.Context, in *databaseretrieval.Input) (*models.RetrievalResult, error) {
	f.lastSQL = in.SQL
	return f.out, f.err
}

type fakeInsights struct {
	out *insightgeneration.Output
	err error
}

func (f *fakeInsights) Execute(ctx context.Context, in *insightgeneration.Input) (*insightgeneration.Output, error) {
	return f.out, f.err
}

// testGraph wires fakes with sane defaults for the full analysis path.
type testGraph struct {
	graph        *Graph
	orchestrator *fakeOrchestrator
	kpi          *fakeKPIRetrieval
	metadata     *fakeMetadata
	checker      *fakeChecker
	sqlGen       *fakeSQLGen
	editor       *fakeEditor
	modifier     *fakeModifier
	database     *fakeDatabase
	insights     *fakeInsights
}

func newTestGraph(t *testing.T) *testGraph {
	t.Helper()

	tg := &testGraph{
		orchestrator: &fakeOrchestrator{out: &orchestrator.Output{Decision: orchestrator.DecisionDataAnalysis}},
		kpi:          &fakeKPIRetrieval{out: &kpiretrieval.Output{}},
		metadata: &fakeMetadata{out: &metadataretrieval.Output{
			Columns: []models.MetadataColumn{{ColumnName: "Occurrence Date"}},
		}},
		checker: &fakeChecker{out: &llmchecker.Output{
			Match: &models.KPIMatch{Decision: models.MatchNotRelevant},
		}},
		sqlGen:   &fakeSQLGen{out: &sqlgeneration.Output{SQL: "SELECT 1", Validated: true}},
		editor:   &fakeEditor{out: &kpieditor.Output{SQL: "SELECT 2", Validated: true}},
		modifier: &fakeModifier{out: &sqlmodifier.Output{SQL: "SELECT 3", Validated: true}},
		database: &fakeDatabase{out: &models.RetrievalResult{
			Success: true, RowCount: 1,
			Rows: []map[string]interface{}{{"n": int64(1)}},
		}},
		insights: &fakeInsights{out: &insightgeneration.Output{
			Insights: &models.Insights{DataSummary: "one row"},
			Response: "Found one row.",
		}},
	}

	tg.graph = &Graph{
		orchestrator: tg.orchestrator,
		kpiRetrieval: tg.kpi,
		metadata:     tg.metadata,
		checker:      tg.checker,
		sqlGen:       tg.sqlGen,
		kpiEditor:    tg.editor,
		sqlModifier:  tg.modifier,
		database:     tg.database,
		insights:     tg.insights,
		logger:       logger.NewTestLogger(t),
	}
	return tg
}

func newState(query string) *AnalysisState {
	state := &AnalysisState{SessionID: "s-1"}
	state.BeginTurn(query)
	return state
}

func TestRun_DirectReply(t *testing.T) {
	tg := newTestGraph(t)
	tg.orchestrator.out = &orchestrator.Output{
		Decision: orchestrator.DecisionDirectReply,
		Reply:    "Hello! Ask me about your claims data.",
		Complete: true,
	}

	state := newState("hi")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.Equal(t, StatusComplete, state.Status)
	assert.Equal(t, "Hello! Ask me about your claims data.", state.FinalResponse)
	assert.Empty(t, state.GeneratedSQL)
	assert.False(t, tg.sqlGen.called)
}

func TestRun_DataAnalysisGeneratedSQL(t *testing.T) {
	tg := newTestGraph(t)

	state := newState("claims by state")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.Equal(t, StatusComplete, state.Status)
	assert.Equal(t, "SELECT 1", state.GeneratedSQL)
	assert.Equal(t, "SELECT 1", tg.database.lastSQL)
	assert.Equal(t, "Found one row.", state.FinalResponse)

	// Successful execution lands in SQL history for follow-up turns.
	require.Len(t, state.SQLHistory, 1)
	assert.Equal(t, "claims by state", state.SQLHistory[0].Question)
}

func TestRun_PerfectMatchUsesStoredKPI(t *testing.T) {
	tg := newTestGraph(t)
	tg.kpi.out = &kpiretrieval.Output{TopKPI: &models.KPI{
		MetricName: "Claim Count",
		SQLQuery:   "SELECT count(*) FROM claims_summary",
	}, Hits: 1}
	tg.checker.out = &llmchecker.Output{Match: &models.KPIMatch{Decision: models.MatchPerfect}}

	state := newState("how many claims")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.Equal(t, "SELECT count(*) FROM claims_summary", tg.database.lastSQL)
	assert.False(t, tg.sqlGen.called)
	assert.False(t, tg.editor.called)
}

func TestRun_MinorEditUsesEditor(t *testing.T) {
	tg := newTestGraph(t)
	tg.kpi.out = &kpiretrieval.Output{TopKPI: &models.KPI{SQLQuery: "SELECT count(*) FROM claims_summary"}}
	tg.checker.out = &llmchecker.Output{Match: &models.KPIMatch{Decision: models.MatchMinorEdit}}

	state := newState("how many crash claims")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.True(t, tg.editor.called)
	assert.False(t, tg.sqlGen.called)
	assert.Equal(t, "SELECT 2", tg.database.lastSQL)
}

func TestRun_EditorFailureFallsBackToGeneration(t *testing.T) {
	tg := newTestGraph(t)
	tg.kpi.out = &kpiretrieval.Output{TopKPI: &models.KPI{SQLQuery: "SELECT 1"}}
	tg.checker.out = &llmchecker.Output{Match: &models.KPIMatch{Decision: models.MatchMinorEdit}}
	tg.editor.err = errors.New("SQL_EDIT_FAILED")

	state := newState("how many crash claims")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.True(t, tg.editor.called)
	assert.True(t, tg.sqlGen.called)
	assert.Equal(t, StatusComplete, state.Status)
}

func TestRun_ScopeRefusalEndsTurn(t *testing.T) {
	tg := newTestGraph(t)
	tg.checker.out = &llmchecker.Output{
		Scope:   &models.ScopeCheck{Decision: models.ScopeOutOfScope, Confidence: models.ConfidenceHigh},
		Blocked: true,
		Refusal: "I cannot answer this request with the available claims data.",
	}

	state := newState("write me a poem")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.Equal(t, StatusComplete, state.Status)
	assert.Contains(t, state.FinalResponse, "cannot answer")
	assert.Empty(t, tg.database.lastSQL)
	assert.False(t, tg.sqlGen.called)
}

func TestRun_SQLModificationPath(t *testing.T) {
	tg := newTestGraph(t)
	tg.orchestrator.out = &orchestrator.Output{
		Decision: orchestrator.DecisionSQLModification,
		Period:   "last_month",
	}

	state := newState("what about last month")
	state.SQLHistory = []models.SQLHistoryEntry{{Question: "claims", SQL: "SELECT count(*) FROM claims_summary"}}
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.True(t, tg.modifier.called)
	assert.Equal(t, "SELECT 3", tg.database.lastSQL)
	// Analysis path was skipped entirely.
	assert.False(t, tg.sqlGen.called)
}

func TestRun_ModifierFailureFallsBackToAnalysis(t *testing.T) {
	tg := newTestGraph(t)
	tg.orchestrator.out = &orchestrator.Output{
		Decision: orchestrator.DecisionSQLModification,
		Period:   "last_month",
	}
	tg.modifier.err = errors.New("NO_SQL_HISTORY")

	state := newState("what about last month")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.True(t, tg.modifier.called)
	assert.True(t, tg.sqlGen.called)
	assert.Equal(t, "SELECT 1", tg.database.lastSQL)
}

func TestRun_GenerationFailureFailsTurn(t *testing.T) {
	tg := newTestGraph(t)
	tg.sqlGen.err = errors.New("SQL_GENERATION_FAILED: llm down")

	state := newState("claims by state")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.Equal(t, StatusError, state.Status)
	assert.NotEmpty(t, state.FinalResponse)
	assert.Empty(t, tg.database.lastSQL)
}

func TestRun_FailedQuerySkipsHistoryButStillSummarizes(t *testing.T) {
	tg := newTestGraph(t)
	tg.database.out = &models.RetrievalResult{Success: false, Error: "syntax error"}
	tg.insights.out = &insightgeneration.Output{
		Insights: &models.Insights{DataSummary: "No data available for analysis"},
		Response: "No data available for analysis",
	}

	state := newState("claims by state")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.Equal(t, StatusComplete, state.Status)
	assert.Empty(t, state.SQLHistory)
	assert.Equal(t, "No data available for analysis", state.FinalResponse)
}

func TestRun_OrchestratorFailure(t *testing.T) {
	tg := newTestGraph(t)
	tg.orchestrator.err = errors.New("ROUTING_FAILED")

	state := newState("claims by state")
	require.NoError(t, tg.graph.Run(context.Background(), state))

	assert.Equal(t, StatusError, state.Status)
	assert.Contains(t, state.FinalResponse, "rephrase")
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "SQL_GENERATION_FAILED", errorCode(errors.New("SQL_GENERATION_FAILED: llm down")))
	assert.Equal(t, "ROUTING_FAILED", errorCode(errors.New("ROUTING_FAILED")))
}
