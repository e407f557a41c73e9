// Package entities contains core business entities.
package entities

import (
	"encoding/json"
	"time"
)

// SessionStatus enumerates debugger session states.
type SessionStatus string

const (
	// SessionPending is created but not yet running.
	SessionPending SessionStatus = "pending"
	// SessionRunning is executing.
	SessionRunning SessionStatus = "running"
	// SessionCompleted finished with output.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed finished with an error.
	SessionFailed SessionStatus = "failed"
	// SessionCancelled was stopped by the caller.
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// Session event types.
const (
	EventSessionStarted   = "session.started"
	EventToken            = "token"
	EventSessionCompleted = "session.completed"
	EventSessionFailed    = "session.failed"
	EventSessionCancelled = "session.cancelled"
)

// TerminalEvent reports whether an event type closes a session stream.
func TerminalEvent(typ string) bool {
	return typ == EventSessionCompleted || typ == EventSessionFailed || typ == EventSessionCancelled
}

// DebugSession is one asynchronous debugger execution of an agent draft.
type DebugSession struct {
	ID          string        `json:"id"`
	AgentID     string        `json:"agent_id"`
	TeamID      string        `json:"team_id"`
	Status      SessionStatus `json:"status"`
	Input       string        `json:"input"`
	Output      string        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	Usage       Usage         `json:"usage"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	UploadKey   string        `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// SessionEvent is one entry of a session's ordered event log.
type SessionEvent struct {
	Seq  int64           `json:"seq"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}
