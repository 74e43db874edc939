// Package workflow routes one conversation turn through the analysis nodes.
// The graph is synchronous: each node runs to completion before the next is
// chosen, and the whole turn shares a single AnalysisState.
package workflow

import (
	"context"
	"strings"
	"time"

	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/common/metrics"
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

// Node surfaces, unexported so tests can substitute fakes.
type orchestratorNode interface {
	Execute(ctx context.Context, input *orchestrator.Input) (*orchestrator.Output, error)
}

type kpiRetrievalNode interface {
	Execute(ctx context.Context, input *kpiretrieval.Input) (*kpiretrieval.Output, error)
}

type metadataRetrievalNode interface {
	Execute(ctx context.Context, input *metadataretrieval.Input) (*metadataretrieval.Output, error)
}

type checkerNode interface {
	Execute(ctx context.Context, input *llmchecker.Input) (*llmchecker.Output, error)
}

type sqlGenerationNode interface {
	Execute(ctx context.Context, input *sqlgeneration.Input) (*sqlgeneration.Output, error)
}

type kpiEditorNode interface {
	Execute(ctx context.Context, input *kpieditor.Input) (*kpieditor.Output, error)
}

type sqlModifierNode interface {
	Execute(ctx context.Context, input *sqlmodifier.Input) (*sqlmodifier.Output, error)
}

type databaseNode interface {
	Execute(ctx context.Context, input *databaseretrieval.Input) (*models.RetrievalResult, error)
}

type insightNode interface {
	Execute(ctx context.Context, input *insightgeneration.Input) (*insightgeneration.Output, error)
}

type Graph struct {
	orchestrator orchestratorNode
	kpiRetrieval kpiRetrievalNode
	metadata     metadataRetrievalNode
	checker      checkerNode
	sqlGen       sqlGenerationNode
	kpiEditor    kpiEditorNode
	sqlModifier  sqlModifierNode
	database     databaseNode
	insights     insightNode
	logger       logger.Logger
}

type GraphNodes struct {
	Orchestrator      *orchestrator.Handler
	KPIRetrieval      *kpiretrieval.Handler
	MetadataRetrieval *metadataretrieval.Handler
	Checker           *llmchecker.Handler
	SQLGeneration     *sqlgeneration.Handler
	KPIEditor         *kpieditor.Handler
	SQLModifier       *sqlmodifier.Handler
	Database          *databaseretrieval.Handler
	Insights          *insightgeneration.Handler
}

func NewGraph(nodes GraphNodes, log logger.Logger) *Graph {
	return &Graph{
		orchestrator: nodes.Orchestrator,
		kpiRetrieval: nodes.KPIRetrieval,
		metadata:     nodes.MetadataRetrieval,
		checker:      nodes.Checker,
		sqlGen:       nodes.SQLGeneration,
		kpiEditor:    nodes.KPIEditor,
		sqlModifier:  nodes.SQLModifier,
		database:     nodes.Database,
		insights:     nodes.Insights,
		logger: log.With(map[string]interface{}{
			"component": "workflow",
		}),
	}
}

// Run executes one turn. Node failures that produce a user-visible message
// are absorbed into the state rather than returned; the state's Status and
// FinalResponse carry the outcome either way.
func (g *Graph) Run(ctx context.Context, state *AnalysisState) error {
	route, err := g.route(ctx, state)
	if err != nil {
		state.Fail(orchestrator.TaskType, "I could not understand your request. Please rephrase it.")
		return nil
	}

	metrics.WorkflowRunsActive.WithLabelValues(route.Decision).Inc()
	defer metrics.WorkflowRunsActive.WithLabelValues(route.Decision).Dec()

	switch route.Decision {
	case orchestrator.DecisionDirectReply:
		state.FinalResponse = route.Reply
		state.EndTurn()
		return nil

	case orchestrator.DecisionSQLModification:
		if !g.modifySQL(ctx, state) {
			// No usable history to modify; run the full analysis path.
			if !g.analyze(ctx, state) {
				return nil
			}
		}

	default: // DATA_ANALYSIS
		if !g.analyze(ctx, state) {
			return nil
		}
	}

	g.retrieveAndSummarize(ctx, state)
	state.EndTurn()
	return nil
}

func (g *Graph) route(ctx context.Context, state *AnalysisState) (*orchestrator.Output, error) {
	routed, err := timed(orchestrator.TaskType, func() (*orchestrator.Output, error) {
		return g.orchestrator.Execute(ctx, &orchestrator.Input{
			UserQuery:  state.UserQuery,
			Messages:   state.Messages,
			SQLHistory: state.SQLHistory,
		})
	})
	if err != nil {
		return nil, err
	}

	state.Decision = routed.Decision
	state.Period = routed.Period
	state.MarkNode(orchestrator.TaskType, StatusComplete)

	g.logger.Info("turn routed", map[string]interface{}{
		"decision": routed.Decision,
		"period":   routed.Period,
	})
	return routed, nil
}

// modifySQL rewrites the last executed query's time filter. Returns false
// when modification was not possible and the full pipeline should run.
func (g *Graph) modifySQL(ctx context.Context, state *AnalysisState) bool {
	modified, err := timed(sqlmodifier.TaskType, func() (*sqlmodifier.Output, error) {
		return g.sqlModifier.Execute(ctx, &sqlmodifier.Input{
			Query:   state.UserQuery,
			Period:  state.Period,
			History: state.SQLHistory,
		})
	})
	if err != nil {
		g.logger.Warn("SQL modification failed, falling back to full analysis", map[string]interface{}{
			"error": err.Error(),
		})
		state.MarkNode(sqlmodifier.TaskType, StatusError)
		return false
	}

	state.GeneratedSQL = modified.SQL
	state.SQLValidated = modified.Validated
	state.MarkNode(sqlmodifier.TaskType, StatusComplete)
	return true
}

// analyze runs retrieval, checking, and SQL production. Returns false when
// the turn ended early (scope refusal or unrecoverable failure).
func (g *Graph) analyze(ctx context.Context, state *AnalysisState) bool {
	g.retrieveKPI(ctx, state)
	g.retrieveMetadata(ctx, state)

	checked, err := timed(llmchecker.TaskType, func() (*llmchecker.Output, error) {
		return g.checker.Execute(ctx, &llmchecker.Input{
			Query:   state.UserQuery,
			TopKPI:  state.TopKPI,
			Columns: state.MetadataColumns,
		})
	})
	if err != nil {
		state.Fail(llmchecker.TaskType, "I could not verify your request against the available data. Please try again.")
		return false
	}

	state.ScopeCheck = checked.Scope
	state.KPIMatch = checked.Match
	state.MarkNode(llmchecker.TaskType, StatusComplete)

	if checked.Blocked {
		state.FinalResponse = checked.Refusal
		state.EndTurn()
		return false
	}

	decision := models.MatchNotRelevant
	if checked.Match != nil {
		decision = checked.Match.Decision
	}

	switch decision {
	case models.MatchPerfect:
		state.GeneratedSQL = state.TopKPI.SQLQuery
		state.SQLValidated = true

	case models.MatchMinorEdit:
		if !g.editKPI(ctx, state) {
			return g.generateSQL(ctx, state)
		}

	default:
		return g.generateSQL(ctx, state)
	}
	return true
}

func (g *Graph) retrieveKPI(ctx context.Context, state *AnalysisState) {
	out, err := timed(kpiretrieval.TaskType, func() (*kpiretrieval.Output, error) {
		return g.kpiRetrieval.Execute(ctx, &kpiretrieval.Input{Query: state.UserQuery})
	})
	if err != nil {
		g.logger.Warn("KPI retrieval failed, continuing without a stored KPI", map[string]interface{}{
			"error": err.Error(),
		})
		state.MarkNode(kpiretrieval.TaskType, StatusError)
		return
	}

	state.TopKPI = out.TopKPI
	state.MarkNode(kpiretrieval.TaskType, StatusComplete)
}

func (g *Graph) retrieveMetadata(ctx context.Context, state *AnalysisState) {
	retrieved, err := timed(metadataretrieval.TaskType, func() (*metadataretrieval.Output, error) {
		return g.metadata.Execute(ctx, &metadataretrieval.Input{Query: state.UserQuery})
	})
	if err != nil {
		g.logger.Warn("metadata retrieval failed, continuing without schema context", map[string]interface{}{
			"error": err.Error(),
		})
		state.MarkNode(metadataretrieval.TaskType, StatusError)
		return
	}

	state.MetadataColumns = retrieved.Columns
	state.MetadataLookup = retrieved.Lookup
	state.MarkNode(metadataretrieval.TaskType, StatusComplete)
}

func (g *Graph) editKPI(ctx context.Context, state *AnalysisState) bool {
	edited, err := timed(kpieditor.TaskType, func() (*kpieditor.Output, error) {
		return g.kpiEditor.Execute(ctx, &kpieditor.Input{
			Query:   state.UserQuery,
			KPI:     state.TopKPI,
			Columns: state.MetadataColumns,
		})
	})
	if err != nil {
		g.logger.Warn("KPI edit failed, regenerating SQL from scratch", map[string]interface{}{
			"error": err.Error(),
		})
		state.MarkNode(kpieditor.TaskType, StatusError)
		return false
	}

	state.GeneratedSQL = edited.SQL
	state.SQLValidated = edited.Validated
	state.MarkNode(kpieditor.TaskType, StatusComplete)
	return true
}

func (g *Graph) generateSQL(ctx context.Context, state *AnalysisState) bool {
	generated, err := timed(sqlgeneration.TaskType, func() (*sqlgeneration.Output, error) {
		return g.sqlGen.Execute(ctx, &sqlgeneration.Input{
			Query:   state.UserQuery,
			Columns: state.MetadataColumns,
		})
	})
	if err != nil {
		state.Fail(sqlgeneration.TaskType, "I could not build a query for your request. Please try rephrasing it.")
		return false
	}

	state.GeneratedSQL = generated.SQL
	state.SQLValidated = generated.Validated
	state.MarkNode(sqlgeneration.TaskType, StatusComplete)
	return true
}

func (g *Graph) retrieveAndSummarize(ctx context.Context, state *AnalysisState) {
	result, err := timed(databaseretrieval.TaskType, func() (*models.RetrievalResult, error) {
		return g.database.Execute(ctx, &databaseretrieval.Input{
			SQL:       state.GeneratedSQL,
			Validated: state.SQLValidated,
		})
	})
	if err != nil {
		state.Fail(databaseretrieval.TaskType, "I could not run the query against the claims database.")
		return
	}

	state.Retrieval = result
	state.MarkNode(databaseretrieval.TaskType, StatusComplete)

	if state.Retrieval.Success {
		state.SQLHistory = append(state.SQLHistory, models.SQLHistoryEntry{
			Question:  state.UserQuery,
			SQL:       state.GeneratedSQL,
			Timestamp: time.Now(),
		})
	}

	summarized, err := timed(insightgeneration.TaskType, func() (*insightgeneration.Output, error) {
		return g.insights.Execute(ctx, &insightgeneration.Input{
			Query:     state.UserQuery,
			Retrieval: state.Retrieval,
		})
	})
	if err != nil {
		state.Fail(insightgeneration.TaskType, "I retrieved the data but could not summarize it.")
		return
	}

	state.Insights = summarized.Insights
	state.FinalResponse = summarized.Response
	state.MarkNode(insightgeneration.TaskType, StatusComplete)
}

// timed wraps a node call with duration and outcome metrics.
func timed[T any](node string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	metrics.NodeExecutionDuration.WithLabelValues(node).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NodeExecutionsFailed.WithLabelValues(node, errorCode(err)).Inc()
		return out, err
	}
	metrics.NodeExecutionsCompleted.WithLabelValues(node).Inc()
	return out, nil
}

// errorCode keeps metric labels bounded by taking only the sentinel part of
// a wrapped error, e.g. "SQL_GENERATION_FAILED: llm down" -> "SQL_GENERATION_FAILED".
func errorCode(err error) string {
	code := err.Error()
	if i := strings.IndexByte(code, ':'); i > 0 {
		code = code[:i]
	}
	if len(code) > 64 {
		code = code[:64]
	}
	return code
}
