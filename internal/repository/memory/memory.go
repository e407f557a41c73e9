// Package memory implements the repository in process memory.
//
// It mirrors the postgres backend's semantics and is used for local runs
// without a database and for usecase tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"agent-runtime/internal/entities"

	"go.uber.org/zap"
)

// Memory keeps all records in maps guarded by one RWMutex.
type Memory struct {
	log *zap.SugaredLogger

	mu            sync.RWMutex
	teams         map[string]*entities.Team
	keys          map[string]*entities.APIKey // by hash
	agents        map[string]*entities.Agent
	conversations map[string]*entities.Conversation
	messages      map[string][]entities.Message
	runs          []entities.Run
	now           func() time.Time
}

// New creates an empty in-memory repository.
func New(log *zap.SugaredLogger) *Memory {
	return &Memory{
		log:           log.Named("repo.memory"),
		teams:         make(map[string]*entities.Team),
		keys:          make(map[string]*entities.APIKey),
		agents:        make(map[string]*entities.Agent),
		conversations: make(map[string]*entities.Conversation),
		messages:      make(map[string][]entities.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// OnStart is a no-op.
func (m *Memory) OnStart(_ context.Context) error {
	m.log.Infow("memory repository ready")
	return nil
}

// OnStop is a no-op.
func (m *Memory) OnStop(_ context.Context) error { return nil }

// CreateTeam inserts a team with its members.
func (m *Memory) CreateTeam(_ context.Context, team entities.Team) (*entities.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[team.ID]; ok {
		return nil, entities.ErrTeamExists
	}
	stored := team
	stored.Active = true
	stored.CreatedAt = m.now()
	stored.Members = make([]entities.Member, 0, len(team.Members))
	for _, mem := range team.Members {
		mem.TeamID = team.ID
		if mem.Role == "" {
			mem.Role = entities.RoleMember
		}
		stored.Members = append(stored.Members, mem)
	}
	sort.Slice(stored.Members, func(i, j int) bool { return stored.Members[i].ID < stored.Members[j].ID })
	m.teams[team.ID] = &stored

	m.log.Infow("team created", "team_id", team.ID, "members", len(team.Members))
	return cloneTeam(&stored), nil
}

// GetTeam fetches a team by id.
func (m *Memory) GetTeam(_ context.Context, id string) (*entities.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.teams[id]
	if !ok {
		return nil, entities.ErrTeamNotFound
	}
	return cloneTeam(t), nil
}

// DeactivateTeam marks the team inactive, revokes keys and disables members.
func (m *Memory) DeactivateTeam(_ context.Context, id string) (entities.DeactivateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := entities.DeactivateResult{}
	t, ok := m.teams[id]
	if !ok {
		return res, entities.ErrTeamNotFound
	}
	t.Active = false
	for i := range t.Members {
		if t.Members[i].Active {
			t.Members[i].Active = false
			res.DisabledMembers++
		}
	}
	now := m.now()
	for _, k := range m.keys {
		if k.TeamID == id && k.RevokedAt == nil {
			revoked := now
			k.RevokedAt = &revoked
			res.RevokedKeys++
		}
	}

	m.log.Infow("team deactivated", "team_id", id, "revoked_keys", res.RevokedKeys, "disabled_members", res.DisabledMembers)
	return res, nil
}

// CreateAPIKey stores a hashed key for an existing team.
func (m *Memory) CreateAPIKey(_ context.Context, key entities.APIKey) (*entities.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[key.TeamID]; !ok {
		return nil, entities.ErrTeamNotFound
	}
	if _, ok := m.keys[key.Hash]; ok {
		return nil, entities.ErrInvalidArgument
	}
	key.CreatedAt = m.now()
	stored := key
	m.keys[key.Hash] = &stored
	return &key, nil
}

// GetAPIKeyByHash resolves a credential.
func (m *Memory) GetAPIKeyByHash(_ context.Context, hash string) (*entities.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[hash]
	if !ok {
		return nil, entities.ErrUnauthorized
	}
	cp := *k
	return &cp, nil
}

func cloneTeam(t *entities.Team) *entities.Team {
	cp := *t
	cp.Members = append([]entities.Member(nil), t.Members...)
	return &cp
}
