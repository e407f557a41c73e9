// Package sessionstore persists debugger sessions and their ordered event logs.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agent-runtime/config"
	"agent-runtime/internal/entities"

	"go.uber.org/zap"
)

// Store keeps sessions and their events. Seq numbers are assigned by Append,
// start at 1 and grow without gaps per session.
type Store interface {
	Create(ctx context.Context, s *entities.DebugSession) error
	Save(ctx context.Context, s *entities.DebugSession) error
	Get(ctx context.Context, id string) (*entities.DebugSession, error)
	List(ctx context.Context) ([]*entities.DebugSession, error)
	Delete(ctx context.Context, id string) error

	// ClaimTerminal reserves the terminal event of a session. Exactly one
	// caller gets true and only that caller may append the terminal event.
	ClaimTerminal(ctx context.Context, id string) (bool, error)
	// Append adds an event. Once the terminal event is claimed, other
	// events fail with ErrSessionFinished.
	Append(ctx context.Context, id, typ string, data any) (entities.SessionEvent, error)
	Events(ctx context.Context, id string, after int64) ([]entities.SessionEvent, error)
	// Subscribe replays events after the given seq and then follows live
	// ones. The channel is closed after the terminal event or when ctx ends.
	Subscribe(ctx context.Context, id string, after int64) (<-chan entities.SessionEvent, error)

	Close() error
}

// New creates the configured store backend.
func New(ctx context.Context, backend string, redisCfg config.RedisConfig, log *zap.SugaredLogger) (Store, error) {
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, redisCfg, log)
	default:
		return nil, fmt.Errorf("unknown session store backend: %s", backend)
	}
}

func newEvent(seq int64, typ string, data any, at time.Time) (entities.SessionEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return entities.SessionEvent{}, fmt.Errorf("encode %s event: %w", typ, err)
	}
	return entities.SessionEvent{Seq: seq, Type: typ, Data: raw, At: at}, nil
}

func cloneSession(s *entities.DebugSession) *entities.DebugSession {
	cp := *s
	if s.Attachments != nil {
		cp.Attachments = append([]entities.Attachment(nil), s.Attachments...)
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
