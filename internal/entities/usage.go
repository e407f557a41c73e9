// Package entities contains core business entities.
package entities

import "time"

// RunSource names the surface that triggered a run.
type RunSource string

const (
	// SourceChat is the chat embodiment.
	SourceChat RunSource = "chat"
	// SourceOpenAI is the OpenAI-compatible embodiment.
	SourceOpenAI RunSource = "openai"
	// SourceDebug is a debugger session.
	SourceDebug RunSource = "debug"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	// RunSucceeded marks a completed run.
	RunSucceeded RunStatus = "succeeded"
	// RunFailed marks a run that errored.
	RunFailed RunStatus = "failed"
	// RunCancelled marks a run stopped by the caller.
	RunCancelled RunStatus = "cancelled"
)

// Run records one agent execution for usage accounting.
type Run struct {
	ID               string
	AgentID          string
	TeamID           string
	Source           RunSource
	Status           RunStatus
	PromptTokens     int64
	CompletionTokens int64
	DurationMS       int64
	CreatedAt        time.Time
}

// UsageFilter limits usage by time range.
type UsageFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// UsageSummary aggregates runs of a team.
type UsageSummary struct {
	TeamID   string       `json:"team_id"`
	Totals   UsageTotals  `json:"totals"`
	ByAgent  []AgentStat  `json:"by_agent"`
	BySource []SourceStat `json:"by_source"`
	ByStatus []StatusStat `json:"by_status"`
}

// UsageTotals are sums over all matched runs.
type UsageTotals struct {
	Runs             int64 `json:"runs"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// AgentStat contains run and token counts per agent.
type AgentStat struct {
	AgentID     string `json:"agent_id"`
	Runs        int64  `json:"runs"`
	TotalTokens int64  `json:"total_tokens"`
}

// SourceStat contains run counts per source.
type SourceStat struct {
	Source RunSource `json:"source"`
	Runs   int64     `json:"runs"`
}

// StatusStat contains run counts per status.
type StatusStat struct {
	Status RunStatus `json:"status"`
	Runs   int64     `json:"runs"`
}

// AgentUsage contains aggregated data for a single agent.
type AgentUsage struct {
	AgentID          string       `json:"agent_id"`
	Runs             int64        `json:"runs"`
	Failed           int64        `json:"failed"`
	PromptTokens     int64        `json:"prompt_tokens"`
	CompletionTokens int64        `json:"completion_tokens"`
	AvgDurationMS    float64      `json:"avg_duration_ms"`
	Conversations    int64        `json:"conversations"`
	BySource         []SourceStat `json:"by_source"`
}
