package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-runtime/internal/entities"

	"github.com/jackc/pgx/v5"
)

const (
	insertAPIKeyQuery = `
INSERT INTO api_keys(id, team_id, name, key_hash, prefix)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	selectAPIKeyByHashQuery = `SELECT id, team_id, name, key_hash, prefix, created_at, revoked_at FROM api_keys WHERE key_hash=$1`
)

// CreateAPIKey stores a hashed key for an existing team.
func (p *Postgres) CreateAPIKey(ctx context.Context, key entities.APIKey) (*entities.APIKey, error) {
	err := p.db.QueryRow(ctx, insertAPIKeyQuery, key.ID, key.TeamID, key.Name, key.Hash, key.Prefix).
		Scan(&key.CreatedAt)
	if err != nil {
		p.log.Errorw("failed to insert api key", "error", err, "team_id", key.TeamID)
		if isForeignKeyViolation(err) {
			return nil, entities.ErrTeamNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: key already registered", entities.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("insert api key: %w", err)
	}

	p.log.Infow("api key issued", "team_id", key.TeamID, "key_id", key.ID, "prefix", key.Prefix)
	return &key, nil
}

// GetAPIKeyByHash resolves a credential; unknown hashes are unauthorized.
func (p *Postgres) GetAPIKeyByHash(ctx context.Context, hash string) (*entities.APIKey, error) {
	var k entities.APIKey
	err := p.db.QueryRow(ctx, selectAPIKeyByHashQuery, hash).
		Scan(&k.ID, &k.TeamID, &k.Name, &k.Hash, &k.Prefix, &k.CreatedAt, &k.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entities.ErrUnauthorized
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &k, nil
}
