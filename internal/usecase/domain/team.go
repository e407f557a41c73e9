// Package domain contains application Usecases orchestrating domain logic by team.
package domain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"agent-runtime/internal/entities"
)

const keyPrefix = "agentrt_"

// CreateTeam creates an active team with members.
func (u *Usecase) CreateTeam(ctx context.Context, team entities.Team) (*entities.Team, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if team.ID == "" || team.Name == "" {
		u.log.Errorw("failed to create team: missing team_id or name")
		return nil, fmt.Errorf("%w: team_id and name are required", entities.ErrInvalidArgument)
	}
	for i := range team.Members {
		if team.Members[i].ID == "" {
			return nil, fmt.Errorf("%w: member %d has no id", entities.ErrInvalidArgument, i)
		}
		team.Members[i].Active = true
	}
	return u.repo.CreateTeam(ctx, team)
}

// Team returns team by id.
func (u *Usecase) Team(ctx context.Context, id string) (*entities.Team, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if id == "" {
		u.log.Errorw("failed to get team: missing team_id")
		return nil, fmt.Errorf("%w: team_id is required", entities.ErrInvalidArgument)
	}
	return u.repo.GetTeam(ctx, id)
}

// DeactivateTeam marks the team inactive, revokes its keys and disables members.
func (u *Usecase) DeactivateTeam(ctx context.Context, id string) (entities.DeactivateResult, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if id == "" {
		u.log.Errorw("failed to deactivate team: missing team_id")
		return entities.DeactivateResult{}, fmt.Errorf("%w: team_id is required", entities.ErrInvalidArgument)
	}
	return u.repo.DeactivateTeam(ctx, id)
}

// IssueKey creates a team API key. The plaintext is only returned here.
func (u *Usecase) IssueKey(ctx context.Context, teamID, name string) (*entities.IssuedKey, error) {
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	if teamID == "" {
		return nil, fmt.Errorf("%w: team_id is required", entities.ErrInvalidArgument)
	}
	if name == "" {
		name = "default"
	}

	team, err := u.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.Active {
		return nil, entities.ErrTeamInactive
	}

	plaintext, err := generateKey()
	if err != nil {
		return nil, err
	}
	key, err := u.repo.CreateAPIKey(ctx, entities.APIKey{
		ID:     newID(),
		TeamID: teamID,
		Name:   name,
		Hash:   entities.HashAPIKey(plaintext),
		Prefix: entities.KeyPrefix(plaintext),
	})
	if err != nil {
		return nil, err
	}

	u.log.Infow("api key issued", "team_id", teamID, "key_id", key.ID)
	return &entities.IssuedKey{Key: *key, Plaintext: plaintext}, nil
}

func generateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}
