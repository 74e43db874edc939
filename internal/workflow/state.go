// internal/workflow/state.go
package workflow

import "riskintel-assistant/internal/models"

// Workflow status values.
const (
	StatusActive   = "active"
	StatusComplete = "complete"
	StatusError    = "error"
)

// AnalysisState is the single state object threaded through every node of a
// run. Conversational fields survive across turns; processing fields are
// cleared at the start of each turn.
type AnalysisState struct {
	SessionID string
	UserQuery string
	Messages  []models.Message

	// Routing
	Decision string
	Period   string // detected temporal follow-up period, e.g. "last_month"
	Status   string
	ErrorMsg string

	// Retrieval
	TopKPI          *models.KPI
	MetadataColumns []models.MetadataColumn
	MetadataLookup  map[string]models.MetadataColumn

	// Checking
	ScopeCheck *models.ScopeCheck
	KPIMatch   *models.KPIMatch

	// SQL
	GeneratedSQL string
	SQLValidated bool
	SQLHistory   []models.SQLHistoryEntry

	// Execution and insights
	Retrieval *models.RetrievalResult
	Insights  *models.Insights

	FinalResponse string
	NodeStatus    map[string]string
}

// BeginTurn clears per-turn processing fields while preserving the
// conversational ones (messages, SQL history, last retrieved KPI).
func (s *AnalysisState) BeginTurn(query string) {
	s.UserQuery = query
	s.Decision = ""
	s.Period = ""
	s.Status = StatusActive
	s.ErrorMsg = ""
	s.MetadataColumns = nil
	s.MetadataLookup = nil
	s.ScopeCheck = nil
	s.KPIMatch = nil
	s.GeneratedSQL = ""
	s.SQLValidated = false
	s.Retrieval = nil
	s.Insights = nil
	s.FinalResponse = ""
	s.NodeStatus = make(map[string]string)
}

// EndTurn marks the run finished. Conversational fields are kept so follow-up
// turns can reference them.
func (s *AnalysisState) EndTurn() {
	if s.Status == StatusActive {
		s.Status = StatusComplete
	}
}

// Fail records a node failure as a user-visible message and ends the run.
func (s *AnalysisState) Fail(node, message string) {
	s.Status = StatusError
	s.ErrorMsg = message
	if s.NodeStatus == nil {
		s.NodeStatus = make(map[string]string)
	}
	s.NodeStatus[node] = StatusError
	if s.FinalResponse == "" {
		s.FinalResponse = "I ran into a problem while processing your request. Please try again."
	}
}

// MarkNode records a node's completion status.
func (s *AnalysisState) MarkNode(node, status string) {
	if s.NodeStatus == nil {
		s.NodeStatus = make(map[string]string)
	}
	s.NodeStatus[node] = status
}
