// internal/models/chat.go
package models

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is the POST /api/v1/chat payload.
type ChatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the chat endpoint reply.
type ChatResponse struct {
	SessionID string                   `json:"sessionId"`
	Response  string                   `json:"response"`
	SQL       string                   `json:"sql,omitempty"`
	Data      []map[string]interface{} `json:"data,omitempty"`
	Insights  *Insights                `json:"insights,omitempty"`
	Error     string                   `json:"error,omitempty"`
}
