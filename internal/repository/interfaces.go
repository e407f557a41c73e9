// Package repository contains repository interfaces for persistence layers.
package repository

import (
	"context"

	"agent-runtime/internal/entities"
)

// LifecycleInterface describes storage startup/shutdown hooks.
type LifecycleInterface interface {
	OnStart(_ context.Context) error
	OnStop(_ context.Context) error
}

// TeamInterface exposes team-related operations.
type TeamInterface interface {
	CreateTeam(ctx context.Context, team entities.Team) (*entities.Team, error)
	GetTeam(ctx context.Context, id string) (*entities.Team, error)
	DeactivateTeam(ctx context.Context, id string) (entities.DeactivateResult, error)
}

// APIKeyInterface exposes credential operations.
type APIKeyInterface interface {
	CreateAPIKey(ctx context.Context, key entities.APIKey) (*entities.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, hash string) (*entities.APIKey, error)
}

// AgentInterface exposes agent operations.
type AgentInterface interface {
	CreateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error)
	GetAgent(ctx context.Context, id string) (*entities.Agent, error)
	ListAgents(ctx context.Context, teamID string) ([]entities.Agent, error)
	UpdateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error)
	DeployAgent(ctx context.Context, id string) (*entities.Agent, error)
}

// ConversationInterface exposes chat history operations.
type ConversationInterface interface {
	CreateConversation(ctx context.Context, conv entities.Conversation) (*entities.Conversation, error)
	GetConversation(ctx context.Context, id string) (*entities.Conversation, error)
	ListConversations(ctx context.Context, agentID string, limit int) ([]entities.Conversation, error)
	AppendMessages(ctx context.Context, msgs ...entities.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error)
}

// UsageInterface exposes run accounting operations.
type UsageInterface interface {
	RecordRun(ctx context.Context, run entities.Run) error
	UsageSummary(ctx context.Context, teamID string, filter entities.UsageFilter) (entities.UsageSummary, error)
	AgentUsage(ctx context.Context, agentID string) (entities.AgentUsage, error)
}
