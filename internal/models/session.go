// internal/models/session.go
package models

import "time"

// Session is one stored conversation.
type Session struct {
	ID         string            `json:"id"`
	Messages   []Message         `json:"messages"`
	SQLHistory []SQLHistoryEntry `json:"sqlHistory,omitempty"`
	TopKPI     *KPI              `json:"topKpi,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}
