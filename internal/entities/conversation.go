// Package entities contains core business entities.
package entities

import "time"

// Role is the author of a chat message.
type Role string

const (
	// RoleSystem marks instructions.
	RoleSystem Role = "system"
	// RoleUser marks caller input.
	RoleUser Role = "user"
	// RoleAssistant marks agent output.
	RoleAssistant Role = "assistant"
)

// Conversation groups chat embodiment messages.
type Conversation struct {
	ID        string
	AgentID   string
	TeamID    string
	CreatedAt time.Time
}

// Message is one turn of a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	CreatedAt      time.Time
}

// ChatTurn is the outcome of one chat embodiment request.
type ChatTurn struct {
	ConversationID string
	Reply          Message
	Usage          Usage
}

// Usage counts tokens of one run.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// NewUsage fills the total.
func NewUsage(prompt, completion int64) Usage {
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}
