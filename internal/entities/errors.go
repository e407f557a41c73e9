// Package entities contains core business entities and errors.
package entities

import "errors"

var (
	// ErrInvalidArgument signals failed input validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized signals missing or unknown credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals a principal acting outside its team.
	ErrForbidden = errors.New("forbidden")
	// ErrTeamInactive signals access to a deactivated team.
	ErrTeamInactive = errors.New("team inactive")
	// ErrEmbodimentDisabled signals an embodiment the agent does not expose.
	ErrEmbodimentDisabled = errors.New("embodiment disabled")
	// ErrTeamExists signals team id conflict.
	ErrTeamExists = errors.New("team exists")
	// ErrTeamNotFound signals missing team.
	ErrTeamNotFound = errors.New("team not found")
	// ErrAgentExists signals agent id conflict.
	ErrAgentExists = errors.New("agent exists")
	// ErrAgentNotFound signals missing agent.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentNotDeployed signals an embodiment call on an agent without a deployed version.
	ErrAgentNotDeployed = errors.New("agent not deployed")
	// ErrConversationNotFound signals missing conversation.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrSessionNotFound signals missing debugger session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished signals an operation on a session in a terminal state.
	ErrSessionFinished = errors.New("session finished")
	// ErrTooManySessions signals the per-team running session limit.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrRateLimited signals an exhausted request budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUploadTooLarge signals an upload over the configured limits.
	ErrUploadTooLarge = errors.New("upload too large")
	// ErrShuttingDown signals work refused while the service stops.
	ErrShuttingDown = errors.New("shutting down")
	// ErrRunnerFailed signals a failure of the LLM backend.
	ErrRunnerFailed = errors.New("runner failed")
)
