package usecase

import (
	"context"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/runtime"
	"agent-runtime/internal/usecase/domain"
)

// AuthUsecaseInterface resolves credentials to principals.
type AuthUsecaseInterface interface {
	Authenticate(ctx context.Context, key string) (*entities.Principal, error)
}

// TeamUsecaseInterface abstracts team-related operations.
type TeamUsecaseInterface interface {
	CreateTeam(ctx context.Context, team entities.Team) (*entities.Team, error)
	Team(ctx context.Context, id string) (*entities.Team, error)
	DeactivateTeam(ctx context.Context, id string) (entities.DeactivateResult, error)
	IssueKey(ctx context.Context, teamID, name string) (*entities.IssuedKey, error)
}

// AgentUsecaseInterface abstracts agent management.
type AgentUsecaseInterface interface {
	CreateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error)
	Agent(ctx context.Context, id string) (*entities.Agent, error)
	ListAgents(ctx context.Context, teamID string) ([]entities.Agent, error)
	UpdateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error)
	DeployAgent(ctx context.Context, id string) (*entities.Agent, error)
	Conversations(ctx context.Context, agentID string, limit int) ([]entities.Conversation, error)
	Messages(ctx context.Context, p *entities.Principal, conversationID string, limit int) ([]entities.Message, error)
}

// EmbodimentUsecaseInterface runs deployed agents for callers.
type EmbodimentUsecaseInterface interface {
	Chat(ctx context.Context, in domain.ChatInput, emit runtime.Emit) (*entities.ChatTurn, error)
	Completion(ctx context.Context, in domain.CompletionInput, emit runtime.Emit) (*runtime.Result, error)
}

// DebugUsecaseInterface drives debugger sessions.
type DebugUsecaseInterface interface {
	StartSession(ctx context.Context, in domain.SessionInput) (*entities.DebugSession, error)
	Session(ctx context.Context, p *entities.Principal, id string) (*entities.DebugSession, error)
	WaitSession(ctx context.Context, p *entities.Principal, id string) (*entities.DebugSession, error)
	CancelSession(ctx context.Context, p *entities.Principal, id string) (*entities.DebugSession, error)
	SubscribeSession(ctx context.Context, p *entities.Principal, id string, after int64) (<-chan entities.SessionEvent, error)
}

// UsageUsecaseInterface abstracts usage statistics.
type UsageUsecaseInterface interface {
	UsageSummary(ctx context.Context, teamID string, filter entities.UsageFilter) (entities.UsageSummary, error)
	AgentUsage(ctx context.Context, agentID string) (entities.AgentUsage, error)
}
