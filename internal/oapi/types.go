// Package oapi provides the HTTP API types and route registration.
package oapi

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Defines values for ErrorResponseErrorCode.
const (
	AGENTNOTDEPLOYED   ErrorResponseErrorCode = "AGENT_NOT_DEPLOYED"
	ALREADYEXISTS      ErrorResponseErrorCode = "ALREADY_EXISTS"
	EMBODIMENTDISABLED ErrorResponseErrorCode = "EMBODIMENT_DISABLED"
	FORBIDDEN          ErrorResponseErrorCode = "FORBIDDEN"
	INTERNAL           ErrorResponseErrorCode = "INTERNAL"
	INVALIDARGUMENT    ErrorResponseErrorCode = "INVALID_ARGUMENT"
	NOTFOUND           ErrorResponseErrorCode = "NOT_FOUND"
	RATELIMITED        ErrorResponseErrorCode = "RATE_LIMITED"
	RUNNERFAILED       ErrorResponseErrorCode = "RUNNER_FAILED"
	SESSIONFINISHED    ErrorResponseErrorCode = "SESSION_FINISHED"
	TEAMINACTIVE       ErrorResponseErrorCode = "TEAM_INACTIVE"
	TOOMANYSESSIONS    ErrorResponseErrorCode = "TOO_MANY_SESSIONS"
	UNAUTHORIZED       ErrorResponseErrorCode = "UNAUTHORIZED"
	UNAVAILABLE        ErrorResponseErrorCode = "UNAVAILABLE"
	UPLOADTOOLARGE     ErrorResponseErrorCode = "UPLOAD_TOO_LARGE"
)

// ErrorResponseErrorCode defines model for ErrorResponse.Error.Code.
type ErrorResponseErrorCode string

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error struct {
		Code    ErrorResponseErrorCode `json:"code"`
		Message string                 `json:"message"`
	} `json:"error"`
}

// TeamMember defines model for TeamMember.
type TeamMember struct {
	MemberId string `json:"member_id"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	Active   bool   `json:"active"`
}

// Team defines model for Team.
type Team struct {
	TeamId    string       `json:"team_id"`
	Name      string       `json:"name"`
	Active    bool         `json:"active"`
	Members   []TeamMember `json:"members"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
}

// PostTeamsJSONRequestBody defines body for PostTeams.
type PostTeamsJSONRequestBody = Team

// IssueKeyRequest defines body for PostTeamsTeamIdKeys.
type IssueKeyRequest struct {
	Name string `json:"name"`
}

// IssuedKey is returned once, with the plaintext key.
type IssuedKey struct {
	KeyId     string    `json:"key_id"`
	TeamId    string    `json:"team_id"`
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// Definition defines model for Definition.
type Definition struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// Embodiments defines model for Embodiments.
type Embodiments struct {
	Chat   bool `json:"chat"`
	Openai bool `json:"openai"`
	Public bool `json:"public"`
}

// Agent defines model for Agent.
type Agent struct {
	AgentId     string      `json:"agent_id"`
	TeamId      string      `json:"team_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Draft       Definition  `json:"draft"`
	Deployed    *Definition `json:"deployed,omitempty"`
	Version     int         `json:"version"`
	Embodiments Embodiments `json:"embodiments"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// AgentRequest defines body for PostAgents and PutAgentsAgentId.
type AgentRequest struct {
	AgentId     *string     `json:"agent_id,omitempty"`
	TeamId      *string     `json:"team_id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Draft       Definition  `json:"draft"`
	Embodiments Embodiments `json:"embodiments"`
}

// Conversation defines model for Conversation.
type Conversation struct {
	ConversationId string    `json:"conversation_id"`
	AgentId        string    `json:"agent_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message defines model for Message.
type Message struct {
	MessageId string    `json:"message_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage defines model for Usage.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatRequest defines body for PostEmbAgentIdChat.
type ChatRequest struct {
	Message        string  `json:"message" form:"message"`
	ConversationId *string `json:"conversation_id,omitempty" form:"conversation_id"`
	Stream         *bool   `json:"stream,omitempty" form:"stream"`
}

// ChatResponse is the buffered chat reply and the payload of the SSE done event.
type ChatResponse struct {
	ConversationId string  `json:"conversation_id"`
	Message        Message `json:"message"`
	Usage          Usage   `json:"usage"`
}

// DebugSessionRequest defines body for PostDebugSessions.
type DebugSessionRequest struct {
	AgentId *string `json:"agent_id,omitempty" form:"agentId"`
	Input   string  `json:"input" form:"input"`
}

// MessageContent is an OpenAI message content: a string or a list of parts
// whose text parts are joined.
type MessageContent string

func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MessageContent(s)
		return nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return errors.New("content must be a string or a list of content parts")
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	*m = MessageContent(strings.Join(texts, "\n"))
	return nil
}

// ChatCompletionMessage defines model for ChatCompletionMessage.
type ChatCompletionMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// ChatCompletionRequest defines body for PostEmbAgentIdV1ChatCompletions.
type ChatCompletionRequest struct {
	Model               string                  `json:"model"`
	Messages            []ChatCompletionMessage `json:"messages"`
	Stream              bool                    `json:"stream"`
	Temperature         *float64                `json:"temperature,omitempty"`
	MaxTokens           *int                    `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                    `json:"max_completion_tokens,omitempty"`
}

// CompletionUsage defines model for CompletionUsage.
type CompletionUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatCompletionChoice defines model for ChatCompletionChoice.
type ChatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

// ChatCompletion defines model for ChatCompletion.
type ChatCompletion struct {
	Id      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   CompletionUsage        `json:"usage"`
}

// ChatCompletionDelta defines model for ChatCompletionDelta.
type ChatCompletionDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatCompletionChunkChoice defines model for ChatCompletionChunkChoice.
type ChatCompletionChunkChoice struct {
	Index        int                 `json:"index"`
	Delta        ChatCompletionDelta `json:"delta"`
	FinishReason *string             `json:"finish_reason"`
}

// ChatCompletionChunk defines model for ChatCompletionChunk.
type ChatCompletionChunk struct {
	Id      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
	Usage   *CompletionUsage            `json:"usage,omitempty"`
}

// Model defines model for Model.
type Model struct {
	Id      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList defines model for ModelList.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// OpenAIError defines the OpenAI error envelope.
type OpenAIError struct {
	Error struct {
		Message string  `json:"message"`
		Type    string  `json:"type"`
		Code    *string `json:"code"`
	} `json:"error"`
}

// GetAgentsParams defines parameters for GetAgents.
type GetAgentsParams struct {
	TeamId *string `json:"team_id,omitempty"`
}

// ListParams defines paging parameters.
type ListParams struct {
	Limit *int `json:"limit,omitempty"`
}

// GetUsageParams defines parameters for GetUsage.
type GetUsageParams struct {
	TeamId *string    `json:"team_id,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Limit  *int       `json:"limit,omitempty"`
}

// PostDebugSessionsParams defines parameters for PostDebugSessions.
type PostDebugSessionsParams struct {
	Wait *bool `json:"wait,omitempty"`
}

// GetDebugSessionsSessionIdEventsParams defines parameters for GetDebugSessionsSessionIdEvents.
type GetDebugSessionsSessionIdEventsParams struct {
	LastEventId *string `json:"Last-Event-ID,omitempty"`
}

// Attachment defines model for Attachment.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// DebugSession defines model for DebugSession.
type DebugSession struct {
	SessionId   string       `json:"session_id"`
	AgentId     string       `json:"agent_id"`
	TeamId      string       `json:"team_id"`
	Status      string       `json:"status"`
	Input       string       `json:"input"`
	Output      string       `json:"output,omitempty"`
	Error       string       `json:"error,omitempty"`
	Usage       Usage        `json:"usage"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}
