// Package entities contains core business entities.
package entities

import "time"

// VersionMode selects which agent definition a request executes.
type VersionMode string

const (
	// VersionDraft executes the editable definition, used by the debugger.
	VersionDraft VersionMode = "draft"
	// VersionDeployed executes the last deployed definition, used by embodiments.
	VersionDeployed VersionMode = "deployed"
)

// Definition is the executable part of an agent.
type Definition struct {
	Model        string  `json:"model" yaml:"model"`
	SystemPrompt string  `json:"system_prompt" yaml:"system_prompt"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens"`
}

// Embodiments lists the public surfaces an agent exposes.
type Embodiments struct {
	Chat   bool `json:"chat" yaml:"chat"`
	OpenAI bool `json:"openai" yaml:"openai"`
	Public bool `json:"public" yaml:"public"`
}

// Agent is a team-owned LLM agent.
type Agent struct {
	ID          string
	TeamID      string
	Name        string
	Description string
	Draft       Definition
	Deployed    *Definition
	Version     int
	Embodiments Embodiments
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Definition returns the definition to execute for mode.
func (a *Agent) Definition(mode VersionMode) (Definition, error) {
	if mode == VersionDraft {
		return a.Draft, nil
	}
	if a.Deployed == nil {
		return Definition{}, ErrAgentNotDeployed
	}
	return *a.Deployed, nil
}

// Attachment is a file uploaded alongside an agent request.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Path        string `json:"-"`
}
