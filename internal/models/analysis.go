// internal/models/analysis.go
package models

import "time"

// Scope gate decisions
const (
	ScopeInScope    = "IN_SCOPE"
	ScopeOutOfScope = "OUT_OF_SCOPE"
)

// Confidence levels reported by the scope gate
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// KPI match decisions
const (
	MatchPerfect     = "perfect_match"
	MatchMinorEdit   = "needs_minor_edit"
	MatchNotRelevant = "not_relevant"
)

// ScopeCheck is the scope gate verdict.
type ScopeCheck struct {
	Decision   string `json:"decision"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// KPIMatch is the stored-KPI reuse verdict.
type KPIMatch struct {
	Decision   string `json:"decision"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// RetrievalResult captures one SQL execution against the claims database.
type RetrievalResult struct {
	QueryExecuted string                   `json:"queryExecuted"`
	Columns       []string                 `json:"columns,omitempty"`
	Rows          []map[string]interface{} `json:"rows,omitempty"`
	RowCount      int                      `json:"rowCount"`
	ExecutionTime string                   `json:"executionTime,omitempty"`
	Success       bool                     `json:"success"`
	Error         string                   `json:"error,omitempty"`
}

// Insights is the structured analysis produced from retrieved rows.
type Insights struct {
	SQLQueryReasoning string                   `json:"sql_query_reasoning,omitempty"`
	DataSummary       string                   `json:"data_summary"`
	KeyFindings       []string                 `json:"key_findings,omitempty"`
	RiskAssessment    string                   `json:"risk_assessment,omitempty"`
	Recommendations   []string                 `json:"recommendations,omitempty"`
	TrendsPatterns    string                   `json:"trends_patterns,omitempty"`
	BusinessImpact    string                   `json:"business_impact,omitempty"`
	AIAnalysis        string                   `json:"ai_analysis,omitempty"`
	ExecutionTime     string                   `json:"execution_time,omitempty"`
	DataPreview       []map[string]interface{} `json:"data_preview,omitempty"`
	TotalRows         int                      `json:"total_rows"`
}

// SQLHistoryEntry records one executed question/query pair so later turns
// can modify the query instead of regenerating it.
type SQLHistoryEntry struct {
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Timestamp time.Time `json:"timestamp"`
}
