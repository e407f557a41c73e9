package memory

import (
	"context"
	"sort"

	"agent-runtime/internal/entities"
)

// RecordRun stores one run for usage accounting.
func (m *Memory) RecordRun(_ context.Context, run entities.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = m.now()
	}
	m.runs = append(m.runs, run)
	return nil
}

// UsageSummary aggregates the runs of a team within the filter.
func (m *Memory) UsageSummary(_ context.Context, teamID string, filter entities.UsageFilter) (entities.UsageSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := entities.UsageSummary{TeamID: teamID}
	byAgent := make(map[string]*entities.AgentStat)
	bySource := make(map[entities.RunSource]int64)
	byStatus := make(map[entities.RunStatus]int64)

	for _, r := range m.runs {
		if r.TeamID != teamID {
			continue
		}
		if filter.From != nil && r.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && r.CreatedAt.After(*filter.To) {
			continue
		}
		res.Totals.Runs++
		res.Totals.PromptTokens += r.PromptTokens
		res.Totals.CompletionTokens += r.CompletionTokens

		s, ok := byAgent[r.AgentID]
		if !ok {
			s = &entities.AgentStat{AgentID: r.AgentID}
			byAgent[r.AgentID] = s
		}
		s.Runs++
		s.TotalTokens += r.PromptTokens + r.CompletionTokens
		bySource[r.Source]++
		byStatus[r.Status]++
	}

	for _, s := range byAgent {
		res.ByAgent = append(res.ByAgent, *s)
	}
	sort.Slice(res.ByAgent, func(i, j int) bool {
		if res.ByAgent[i].Runs == res.ByAgent[j].Runs {
			return res.ByAgent[i].AgentID < res.ByAgent[j].AgentID
		}
		return res.ByAgent[i].Runs > res.ByAgent[j].Runs
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(res.ByAgent) > limit {
		res.ByAgent = res.ByAgent[:limit]
	}

	res.BySource = sourceStats(bySource)
	for status, cnt := range byStatus {
		res.ByStatus = append(res.ByStatus, entities.StatusStat{Status: status, Runs: cnt})
	}
	sort.Slice(res.ByStatus, func(i, j int) bool { return res.ByStatus[i].Status < res.ByStatus[j].Status })

	return res, nil
}

// AgentUsage returns lifetime statistics of one agent.
func (m *Memory) AgentUsage(_ context.Context, agentID string) (entities.AgentUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := entities.AgentUsage{AgentID: agentID}
	if _, ok := m.agents[agentID]; !ok {
		return res, entities.ErrAgentNotFound
	}

	var totalDuration int64
	bySource := make(map[entities.RunSource]int64)
	for _, r := range m.runs {
		if r.AgentID != agentID {
			continue
		}
		res.Runs++
		if r.Status == entities.RunFailed {
			res.Failed++
		}
		res.PromptTokens += r.PromptTokens
		res.CompletionTokens += r.CompletionTokens
		totalDuration += r.DurationMS
		bySource[r.Source]++
	}
	if res.Runs > 0 {
		res.AvgDurationMS = float64(totalDuration) / float64(res.Runs)
	}
	for _, c := range m.conversations {
		if c.AgentID == agentID {
			res.Conversations++
		}
	}
	res.BySource = sourceStats(bySource)
	return res, nil
}

func sourceStats(counts map[entities.RunSource]int64) []entities.SourceStat {
	res := make([]entities.SourceStat, 0, len(counts))
	for source, cnt := range counts {
		res = append(res, entities.SourceStat{Source: source, Runs: cnt})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Source < res[j].Source })
	return res
}
