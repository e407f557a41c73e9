package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"agent-runtime/internal/entities"
)

const (
	insertRunQuery = `
INSERT INTO runs(id, agent_id, team_id, source, status, prompt_tokens, completion_tokens, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	agentUsageTotalsQuery = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'failed'),
       COALESCE(SUM(prompt_tokens), 0),
       COALESCE(SUM(completion_tokens), 0),
       COALESCE(AVG(duration_ms), 0)::float8
FROM runs WHERE agent_id=$1`
	agentUsageSourceQuery        = `SELECT source, COUNT(*) FROM runs WHERE agent_id=$1 GROUP BY source ORDER BY source`
	agentConversationsCountQuery = `SELECT COUNT(*) FROM conversations WHERE agent_id=$1`
)

// RecordRun stores one run for usage accounting.
func (p *Postgres) RecordRun(ctx context.Context, run entities.Run) error {
	_, err := p.db.Exec(ctx, insertRunQuery,
		run.ID, run.AgentID, run.TeamID, string(run.Source), string(run.Status),
		run.PromptTokens, run.CompletionTokens, run.DurationMS,
	)
	if err != nil {
		p.log.Errorw("failed to record run", "error", err, "agent_id", run.AgentID)
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// UsageSummary aggregates the runs of a team within the filter.
func (p *Postgres) UsageSummary(ctx context.Context, teamID string, filter entities.UsageFilter) (entities.UsageSummary, error) {
	res := entities.UsageSummary{TeamID: teamID}

	whereClause, args := buildRunFilter(teamID, filter)
	limitValue := filter.Limit
	if limitValue <= 0 {
		limitValue = 10
	}

	totalsQuery := "SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0) FROM runs r " + whereClause
	if err := p.db.QueryRow(ctx, totalsQuery, args...).
		Scan(&res.Totals.Runs, &res.Totals.PromptTokens, &res.Totals.CompletionTokens); err != nil {
		return res, fmt.Errorf("usage totals: %w", err)
	}

	var b strings.Builder
	b.WriteString("SELECT r.agent_id, COUNT(*) AS cnt, COALESCE(SUM(r.prompt_tokens + r.completion_tokens), 0) FROM runs r ")
	b.WriteString(whereClause)
	b.WriteString(" GROUP BY r.agent_id ORDER BY cnt DESC, r.agent_id LIMIT $")
	b.WriteString(strconv.Itoa(len(args) + 1))
	topArgs := append(append([]any{}, args...), limitValue)

	rows, err := p.db.Query(ctx, b.String(), topArgs...)
	if err != nil {
		return res, fmt.Errorf("usage by agent: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s entities.AgentStat
		if err := rows.Scan(&s.AgentID, &s.Runs, &s.TotalTokens); err != nil {
			return res, fmt.Errorf("scan agent usage: %w", err)
		}
		res.ByAgent = append(res.ByAgent, s)
	}
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("iterate agent usage: %w", err)
	}

	sourceRows, err := p.db.Query(ctx, "SELECT r.source, COUNT(*) FROM runs r "+whereClause+" GROUP BY r.source ORDER BY r.source", args...)
	if err != nil {
		return res, fmt.Errorf("usage by source: %w", err)
	}
	defer sourceRows.Close()
	for sourceRows.Next() {
		var s entities.SourceStat
		var source string
		if err := sourceRows.Scan(&source, &s.Runs); err != nil {
			return res, fmt.Errorf("scan source usage: %w", err)
		}
		s.Source = entities.RunSource(source)
		res.BySource = append(res.BySource, s)
	}
	if err := sourceRows.Err(); err != nil {
		return res, fmt.Errorf("iterate source usage: %w", err)
	}

	statusRows, err := p.db.Query(ctx, "SELECT r.status, COUNT(*) FROM runs r "+whereClause+" GROUP BY r.status ORDER BY r.status", args...)
	if err != nil {
		return res, fmt.Errorf("usage by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var s entities.StatusStat
		var status string
		if err := statusRows.Scan(&status, &s.Runs); err != nil {
			return res, fmt.Errorf("scan status usage: %w", err)
		}
		s.Status = entities.RunStatus(status)
		res.ByStatus = append(res.ByStatus, s)
	}
	if err := statusRows.Err(); err != nil {
		return res, fmt.Errorf("iterate status usage: %w", err)
	}

	return res, nil
}

// AgentUsage returns lifetime statistics of one agent.
func (p *Postgres) AgentUsage(ctx context.Context, agentID string) (entities.AgentUsage, error) {
	res := entities.AgentUsage{AgentID: agentID}
	if _, err := p.GetAgent(ctx, agentID); err != nil {
		return res, err
	}

	if err := p.db.QueryRow(ctx, agentUsageTotalsQuery, agentID).
		Scan(&res.Runs, &res.Failed, &res.PromptTokens, &res.CompletionTokens, &res.AvgDurationMS); err != nil {
		return res, fmt.Errorf("agent usage totals: %w", err)
	}

	if err := p.db.QueryRow(ctx, agentConversationsCountQuery, agentID).Scan(&res.Conversations); err != nil {
		return res, fmt.Errorf("agent conversations: %w", err)
	}

	rows, err := p.db.Query(ctx, agentUsageSourceQuery, agentID)
	if err != nil {
		return res, fmt.Errorf("agent usage by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s entities.SourceStat
		var source string
		if err := rows.Scan(&source, &s.Runs); err != nil {
			return res, fmt.Errorf("scan agent source: %w", err)
		}
		s.Source = entities.RunSource(source)
		res.BySource = append(res.BySource, s)
	}
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("iterate agent source: %w", err)
	}

	return res, nil
}

func buildRunFilter(teamID string, filter entities.UsageFilter) (string, []any) {
	conditions := []string{"r.team_id = $1"}
	args := []any{teamID}
	idx := 2
	if filter.From != nil {
		conditions = append(conditions, "r.created_at >= $"+strconv.Itoa(idx))
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		conditions = append(conditions, "r.created_at <= $"+strconv.Itoa(idx))
		args = append(args, *filter.To)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}
