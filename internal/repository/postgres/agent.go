package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"agent-runtime/internal/entities"

	"github.com/jackc/pgx/v5"
)

const (
	agentColumns     = "id, team_id, name, description, draft, deployed, version, embodiments, created_at, updated_at"
	insertAgentQuery = `
INSERT INTO agents(id, team_id, name, description, draft, embodiments)
VALUES ($1, $2, $3, $4, $5, $6)`
	selectAgentQuery      = "SELECT " + agentColumns + " FROM agents WHERE id=$1"
	selectTeamAgentsQuery = "SELECT " + agentColumns + " FROM agents WHERE team_id=$1 ORDER BY created_at, id"
	updateAgentQuery      = `
UPDATE agents SET name=$2, description=$3, draft=$4, embodiments=$5, updated_at=NOW()
WHERE id=$1`
	deployAgentQuery = `
UPDATE agents SET deployed=draft, version=version+1, updated_at=NOW()
WHERE id=$1`
)

// CreateAgent inserts an agent into an existing team.
func (p *Postgres) CreateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error) {
	draft, emb, err := encodeAgent(agent)
	if err != nil {
		return nil, err
	}

	if _, err := p.db.Exec(ctx, insertAgentQuery, agent.ID, agent.TeamID, agent.Name, agent.Description, draft, emb); err != nil {
		p.log.Errorw("failed to insert agent", "error", err, "agent_id", agent.ID)
		if isUniqueViolation(err) {
			return nil, entities.ErrAgentExists
		}
		if isForeignKeyViolation(err) {
			return nil, entities.ErrTeamNotFound
		}
		return nil, fmt.Errorf("insert agent: %w", err)
	}

	p.log.Infow("agent created", "agent_id", agent.ID, "team_id", agent.TeamID)
	return p.GetAgent(ctx, agent.ID)
}

// GetAgent fetches an agent by id.
func (p *Postgres) GetAgent(ctx context.Context, id string) (*entities.Agent, error) {
	a, err := scanAgent(p.db.QueryRow(ctx, selectAgentQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entities.ErrAgentNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// ListAgents returns the agents of a team in creation order.
func (p *Postgres) ListAgents(ctx context.Context, teamID string) ([]entities.Agent, error) {
	rows, err := p.db.Query(ctx, selectTeamAgentsQuery, teamID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := make([]entities.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// UpdateAgent replaces the editable fields of an agent.
func (p *Postgres) UpdateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error) {
	draft, emb, err := encodeAgent(agent)
	if err != nil {
		return nil, err
	}

	tag, err := p.db.Exec(ctx, updateAgentQuery, agent.ID, agent.Name, agent.Description, draft, emb)
	if err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, entities.ErrAgentNotFound
	}
	return p.GetAgent(ctx, agent.ID)
}

// DeployAgent promotes the draft to the deployed definition.
func (p *Postgres) DeployAgent(ctx context.Context, id string) (*entities.Agent, error) {
	tag, err := p.db.Exec(ctx, deployAgentQuery, id)
	if err != nil {
		return nil, fmt.Errorf("deploy agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, entities.ErrAgentNotFound
	}

	a, err := p.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	p.log.Infow("agent deployed", "agent_id", id, "version", a.Version)
	return a, nil
}

func encodeAgent(agent entities.Agent) ([]byte, []byte, error) {
	draft, err := json.Marshal(agent.Draft)
	if err != nil {
		return nil, nil, fmt.Errorf("encode draft: %w", err)
	}
	emb, err := json.Marshal(agent.Embodiments)
	if err != nil {
		return nil, nil, fmt.Errorf("encode embodiments: %w", err)
	}
	return draft, emb, nil
}

func scanAgent(row pgx.Row) (*entities.Agent, error) {
	var (
		a                    entities.Agent
		draft, deployed, emb []byte
	)
	if err := row.Scan(&a.ID, &a.TeamID, &a.Name, &a.Description, &draft, &deployed, &a.Version, &emb, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(draft, &a.Draft); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if len(deployed) > 0 {
		var def entities.Definition
		if err := json.Unmarshal(deployed, &def); err != nil {
			return nil, fmt.Errorf("decode deployed: %w", err)
		}
		a.Deployed = &def
	}
	if len(emb) > 0 {
		if err := json.Unmarshal(emb, &a.Embodiments); err != nil {
			return nil, fmt.Errorf("decode embodiments: %w", err)
		}
	}
	return &a, nil
}
