package memory

import (
	"context"
	"sort"

	"agent-runtime/internal/entities"
)

// CreateAgent inserts an agent into an existing team.
func (m *Memory) CreateAgent(_ context.Context, agent entities.Agent) (*entities.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agent.ID]; ok {
		return nil, entities.ErrAgentExists
	}
	if _, ok := m.teams[agent.TeamID]; !ok {
		return nil, entities.ErrTeamNotFound
	}
	now := m.now()
	agent.Deployed = nil
	agent.Version = 0
	agent.CreatedAt = now
	agent.UpdatedAt = now
	m.agents[agent.ID] = &agent

	m.log.Infow("agent created", "agent_id", agent.ID, "team_id", agent.TeamID)
	return cloneAgent(&agent), nil
}

// GetAgent fetches an agent by id.
func (m *Memory) GetAgent(_ context.Context, id string) (*entities.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, entities.ErrAgentNotFound
	}
	return cloneAgent(a), nil
}

// ListAgents returns the agents of a team in creation order.
func (m *Memory) ListAgents(_ context.Context, teamID string) ([]entities.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]entities.Agent, 0)
	for _, a := range m.agents {
		if a.TeamID == teamID {
			res = append(res, *cloneAgent(a))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

// UpdateAgent replaces the editable fields of an agent.
func (m *Memory) UpdateAgent(_ context.Context, agent entities.Agent) (*entities.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[agent.ID]
	if !ok {
		return nil, entities.ErrAgentNotFound
	}
	a.Name = agent.Name
	a.Description = agent.Description
	a.Draft = agent.Draft
	a.Embodiments = agent.Embodiments
	a.UpdatedAt = m.now()
	return cloneAgent(a), nil
}

// DeployAgent promotes the draft to the deployed definition.
func (m *Memory) DeployAgent(_ context.Context, id string) (*entities.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, entities.ErrAgentNotFound
	}
	def := a.Draft
	a.Deployed = &def
	a.Version++
	a.UpdatedAt = m.now()

	m.log.Infow("agent deployed", "agent_id", id, "version", a.Version)
	return cloneAgent(a), nil
}

func cloneAgent(a *entities.Agent) *entities.Agent {
	cp := *a
	if a.Deployed != nil {
		def := *a.Deployed
		cp.Deployed = &def
	}
	return &cp
}
