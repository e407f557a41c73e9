package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-runtime/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	insertTeamQuery   = "INSERT INTO teams(id, name, is_active) VALUES($1, $2, true) RETURNING created_at"
	upsertMemberQuery = `
INSERT INTO members(id, team_id, email, role, is_active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET team_id = EXCLUDED.team_id, email = EXCLUDED.email, role = EXCLUDED.role, is_active = EXCLUDED.is_active
`
	selectTeamQuery        = "SELECT id, name, is_active, created_at FROM teams WHERE id=$1"
	selectTeamMembersQuery = "SELECT id, email, role, is_active FROM members WHERE team_id=$1 ORDER BY id"
	deactivateTeamQuery    = "UPDATE teams SET is_active=false WHERE id=$1"
	revokeTeamKeysQuery    = "UPDATE api_keys SET revoked_at=NOW() WHERE team_id=$1 AND revoked_at IS NULL"
	disableMembersQuery    = "UPDATE members SET is_active=false WHERE team_id=$1 AND is_active=true"
)

// CreateTeam inserts a team and upserts its members.
func (p *Postgres) CreateTeam(ctx context.Context, team entities.Team) (*entities.Team, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, insertTeamQuery, team.ID, team.Name).Scan(&team.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, entities.ErrTeamExists
		}
		return nil, fmt.Errorf("insert team: %w", err)
	}

	for _, m := range team.Members {
		role := m.Role
		if role == "" {
			role = entities.RoleMember
		}
		if _, err := tx.Exec(ctx, upsertMemberQuery, m.ID, team.ID, m.Email, string(role), m.Active); err != nil {
			return nil, fmt.Errorf("upsert member: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	p.log.Infow("team created", "team_id", team.ID, "members", len(team.Members))
	return p.GetTeam(ctx, team.ID)
}

// GetTeam fetches team with members by id.
func (p *Postgres) GetTeam(ctx context.Context, id string) (*entities.Team, error) {
	var team entities.Team
	if err := p.db.QueryRow(ctx, selectTeamQuery, id).Scan(&team.ID, &team.Name, &team.Active, &team.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entities.ErrTeamNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}

	rows, err := p.db.Query(ctx, selectTeamMembersQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get team members: %w", err)
	}
	defer rows.Close()

	team.Members = make([]entities.Member, 0)
	for rows.Next() {
		var m entities.Member
		var role string
		if err := rows.Scan(&m.ID, &m.Email, &role, &m.Active); err != nil {
			return nil, fmt.Errorf("scan members: %w", err)
		}
		m.TeamID = id
		m.Role = entities.MemberRole(role)
		team.Members = append(team.Members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return &team, nil
}

// DeactivateTeam marks the team inactive, revokes its keys and disables members in one transaction.
func (p *Postgres) DeactivateTeam(ctx context.Context, id string) (entities.DeactivateResult, error) {
	res := entities.DeactivateResult{}

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, deactivateTeamQuery, id)
	if err != nil {
		return res, fmt.Errorf("deactivate team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return res, entities.ErrTeamNotFound
	}

	tag, err = tx.Exec(ctx, revokeTeamKeysQuery, id)
	if err != nil {
		return res, fmt.Errorf("revoke keys: %w", err)
	}
	res.RevokedKeys = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, disableMembersQuery, id)
	if err != nil {
		return res, fmt.Errorf("disable members: %w", err)
	}
	res.DisabledMembers = int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return res, err
	}

	p.log.Infow("team deactivated", "team_id", id, "revoked_keys", res.RevokedKeys, "disabled_members", res.DisabledMembers)
	return res, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
