// Package bootstrap applies a YAML seed of teams, keys and agents at startup.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Seed is the file layout.
type Seed struct {
	Teams  []SeedTeam  `yaml:"teams"`
	Agents []SeedAgent `yaml:"agents"`
}

// SeedTeam is a team with its members and plaintext keys.
type SeedTeam struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name"`
	Members []SeedMember `yaml:"members"`
	Keys    []SeedKey    `yaml:"keys"`
}

// SeedMember is one team member.
type SeedMember struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

// SeedKey is a plaintext key to register.
type SeedKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// SeedAgent is an agent, optionally deployed right away.
type SeedAgent struct {
	ID          string               `yaml:"id"`
	TeamID      string               `yaml:"team_id"`
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Definition  entities.Definition  `yaml:"definition"`
	Embodiments entities.Embodiments `yaml:"embodiments"`
	Deploy      bool                 `yaml:"deploy"`
}

// Store is the persistence the seed writes to.
type Store interface {
	repository.TeamInterface
	repository.APIKeyInterface
	repository.AgentInterface
}

// Result counts created records.
type Result struct {
	Teams  int
	Keys   int
	Agents int
}

// Load reads and parses a seed file.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	for i, t := range s.Teams {
		if t.ID == "" || t.Name == "" {
			return fmt.Errorf("%w: seed team %d needs id and name", entities.ErrInvalidArgument, i)
		}
		for _, k := range t.Keys {
			if len(k.Key) < 16 {
				return fmt.Errorf("%w: seed key %q of team %s is shorter than 16 characters", entities.ErrInvalidArgument, k.Name, t.ID)
			}
		}
	}
	for i, a := range s.Agents {
		if a.ID == "" || a.TeamID == "" || a.Name == "" {
			return fmt.Errorf("%w: seed agent %d needs id, team_id and name", entities.ErrInvalidArgument, i)
		}
	}
	return nil
}

// Apply creates whatever the seed names and the store lacks. Running it
// again is a no-op.
func Apply(ctx context.Context, store Store, seed *Seed, log *zap.SugaredLogger) (Result, error) {
	log = log.Named("bootstrap")
	var res Result

	for _, t := range seed.Teams {
		created, err := ensureTeam(ctx, store, t)
		if err != nil {
			return res, err
		}
		if created {
			res.Teams++
		}
		for _, k := range t.Keys {
			created, err := ensureKey(ctx, store, t.ID, k)
			if err != nil {
				return res, err
			}
			if created {
				res.Keys++
			}
		}
	}

	for _, a := range seed.Agents {
		created, err := ensureAgent(ctx, store, a)
		if err != nil {
			return res, err
		}
		if created {
			res.Agents++
		}
	}

	log.Infow("seed applied", "teams", res.Teams, "keys", res.Keys, "agents", res.Agents)
	return res, nil
}

func ensureTeam(ctx context.Context, store Store, t SeedTeam) (bool, error) {
	_, err := store.GetTeam(ctx, t.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, entities.ErrTeamNotFound) {
		return false, fmt.Errorf("seed team %s: %w", t.ID, err)
	}

	team := entities.Team{ID: t.ID, Name: t.Name}
	for _, m := range t.Members {
		role := entities.MemberRole(m.Role)
		if role == "" {
			role = entities.RoleMember
		}
		team.Members = append(team.Members, entities.Member{ID: m.ID, Email: m.Email, Role: role, Active: true})
	}
	if _, err := store.CreateTeam(ctx, team); err != nil {
		return false, fmt.Errorf("seed team %s: %w", t.ID, err)
	}
	return true, nil
}

func ensureKey(ctx context.Context, store Store, teamID string, k SeedKey) (bool, error) {
	hash := entities.HashAPIKey(k.Key)
	_, err := store.GetAPIKeyByHash(ctx, hash)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, entities.ErrUnauthorized) {
		return false, fmt.Errorf("seed key %s: %w", k.Name, err)
	}

	_, err = store.CreateAPIKey(ctx, entities.APIKey{
		ID:     uuid.NewString(),
		TeamID: teamID,
		Name:   k.Name,
		Hash:   hash,
		Prefix: entities.KeyPrefix(k.Key),
	})
	if err != nil {
		return false, fmt.Errorf("seed key %s: %w", k.Name, err)
	}
	return true, nil
}

func ensureAgent(ctx context.Context, store Store, a SeedAgent) (bool, error) {
	_, err := store.GetAgent(ctx, a.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, entities.ErrAgentNotFound) {
		return false, fmt.Errorf("seed agent %s: %w", a.ID, err)
	}

	_, err = store.CreateAgent(ctx, entities.Agent{
		ID:          a.ID,
		TeamID:      a.TeamID,
		Name:        a.Name,
		Description: a.Description,
		Draft:       a.Definition,
		Embodiments: a.Embodiments,
	})
	if err != nil {
		return false, fmt.Errorf("seed agent %s: %w", a.ID, err)
	}
	if a.Deploy {
		if _, err := store.DeployAgent(ctx, a.ID); err != nil {
			return false, fmt.Errorf("deploy seed agent %s: %w", a.ID, err)
		}
	}
	return true, nil
}
