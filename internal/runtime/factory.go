package runtime

import (
	"fmt"

	"agent-runtime/config"
)

// New constructs the configured runner backend.
func New(cfg config.RunnerConfig) (Runner, error) {
	switch cfg.Backend {
	case "openai":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey), nil
	case "echo":
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("unknown runner backend: %s", cfg.Backend)
	}
}
