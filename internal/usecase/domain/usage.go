// Package domain contains application services orchestrating domain logic by usage.
package domain

import (
	"context"
	"fmt"

	"agent-runtime/internal/entities"
)

// UsageSummary returns the run totals of a team.
func (u *Usecase) UsageSummary(ctx context.Context, teamID string, filter entities.UsageFilter) (entities.UsageSummary, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if teamID == "" {
		return entities.UsageSummary{}, fmt.Errorf("%w: team_id is required", entities.ErrInvalidArgument)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return entities.UsageSummary{}, fmt.Errorf("%w: to is before from", entities.ErrInvalidArgument)
	}
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	return u.repo.UsageSummary(ctx, teamID, filter)
}

// AgentUsage returns run statistics of one agent.
func (u *Usecase) AgentUsage(ctx context.Context, agentID string) (entities.AgentUsage, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if agentID == "" {
		return entities.AgentUsage{}, fmt.Errorf("%w: agent_id is required", entities.ErrInvalidArgument)
	}
	return u.repo.AgentUsage(ctx, agentID)
}
