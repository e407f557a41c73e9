// Package domain contains application services orchestrating domain logic by agent.
package domain

import (
	"context"
	"fmt"

	"agent-runtime/internal/entities"
)

const defaultListLimit = 50

func validateDefinition(def entities.Definition) error {
	if def.Temperature < 0 || def.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0, 2]", entities.ErrInvalidArgument)
	}
	if def.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must not be negative", entities.ErrInvalidArgument)
	}
	return nil
}

// CreateAgent creates an agent in an active team. Ids are generated when absent.
func (u *Usecase) CreateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if agent.TeamID == "" || agent.Name == "" {
		return nil, fmt.Errorf("%w: team_id and name are required", entities.ErrInvalidArgument)
	}
	if err := validateDefinition(agent.Draft); err != nil {
		return nil, err
	}
	if agent.ID == "" {
		agent.ID = newID()
	}

	team, err := u.repo.GetTeam(ctx, agent.TeamID)
	if err != nil {
		return nil, err
	}
	if !team.Active {
		return nil, entities.ErrTeamInactive
	}

	res, err := u.repo.CreateAgent(ctx, agent)
	if err != nil {
		return nil, err
	}
	u.log.Infow("agent create", "agent_id", res.ID, "team_id", res.TeamID)
	return res, nil
}

// Agent returns agent by id.
func (u *Usecase) Agent(ctx context.Context, id string) (*entities.Agent, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if id == "" {
		return nil, fmt.Errorf("%w: agent_id is required", entities.ErrInvalidArgument)
	}
	return u.repo.GetAgent(ctx, id)
}

// ListAgents returns the agents of a team.
func (u *Usecase) ListAgents(ctx context.Context, teamID string) ([]entities.Agent, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if teamID == "" {
		return nil, fmt.Errorf("%w: team_id is required", entities.ErrInvalidArgument)
	}
	return u.repo.ListAgents(ctx, teamID)
}

// UpdateAgent replaces name, description, draft and embodiments.
func (u *Usecase) UpdateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if agent.ID == "" || agent.Name == "" {
		return nil, fmt.Errorf("%w: agent_id and name are required", entities.ErrInvalidArgument)
	}
	if err := validateDefinition(agent.Draft); err != nil {
		return nil, err
	}
	return u.repo.UpdateAgent(ctx, agent)
}

// DeployAgent publishes the draft as the next version.
func (u *Usecase) DeployAgent(ctx context.Context, id string) (*entities.Agent, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if id == "" {
		return nil, fmt.Errorf("%w: agent_id is required", entities.ErrInvalidArgument)
	}
	res, err := u.repo.DeployAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	u.log.Infow("agent deploy", "agent_id", id, "version", res.Version)
	return res, nil
}

// Conversations lists the latest chat conversations of an agent.
func (u *Usecase) Conversations(ctx context.Context, agentID string, limit int) ([]entities.Conversation, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", entities.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return u.repo.ListConversations(ctx, agentID, limit)
}

// Messages returns the last messages of a conversation the principal can see.
func (u *Usecase) Messages(ctx context.Context, p *entities.Principal, conversationID string, limit int) ([]entities.Message, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", entities.ErrInvalidArgument)
	}
	conv, err := u.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessTeam(conv.TeamID) {
		return nil, entities.ErrForbidden
	}
	return u.repo.ListMessages(ctx, conversationID, limit)
}
