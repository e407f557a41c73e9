package sessionstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"agent-runtime/internal/entities"
)

type memorySession struct {
	session *entities.DebugSession
	events  []entities.SessionEvent
	claimed bool
	// wake is closed and replaced on every append to release waiting subscribers.
	wake chan struct{}
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	now      func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*memorySession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Create(_ context.Context, s *entities.DebugSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &memorySession{session: cloneSession(s), wake: make(chan struct{})}
	return nil
}

func (m *Memory) Save(_ context.Context, s *entities.DebugSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[s.ID]
	if !ok {
		return entities.ErrSessionNotFound
	}
	rec.session = cloneSession(s)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*entities.DebugSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, entities.ErrSessionNotFound
	}
	return cloneSession(rec.session), nil
}

func (m *Memory) List(_ context.Context) ([]*entities.DebugSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entities.DebugSession, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, cloneSession(rec.session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return entities.ErrSessionNotFound
	}
	delete(m.sessions, id)
	close(rec.wake)
	return nil
}

func (m *Memory) ClaimTerminal(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return false, entities.ErrSessionNotFound
	}
	if rec.claimed {
		return false, nil
	}
	rec.claimed = true
	return true, nil
}

func (m *Memory) Append(_ context.Context, id, typ string, data any) (entities.SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return entities.SessionEvent{}, entities.ErrSessionNotFound
	}
	if rec.claimed && !entities.TerminalEvent(typ) {
		return entities.SessionEvent{}, entities.ErrSessionFinished
	}
	ev, err := newEvent(int64(len(rec.events))+1, typ, data, m.now())
	if err != nil {
		return entities.SessionEvent{}, err
	}
	rec.events = append(rec.events, ev)
	close(rec.wake)
	rec.wake = make(chan struct{})
	return ev, nil
}

func (m *Memory) Events(_ context.Context, id string, after int64) ([]entities.SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, entities.ErrSessionNotFound
	}
	return eventsAfter(rec.events, after), nil
}

func (m *Memory) Subscribe(ctx context.Context, id string, after int64) (<-chan entities.SessionEvent, error) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, entities.ErrSessionNotFound
	}

	out := make(chan entities.SessionEvent)
	go func() {
		defer close(out)
		next := after
		for {
			m.mu.Lock()
			rec, ok := m.sessions[id]
			if !ok {
				m.mu.Unlock()
				return
			}
			pending := eventsAfter(rec.events, next)
			finished := len(rec.events) > 0 && entities.TerminalEvent(rec.events[len(rec.events)-1].Type)
			wake := rec.wake
			m.mu.Unlock()

			for _, ev := range pending {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				next = ev.Seq
				if entities.TerminalEvent(ev.Type) {
					return
				}
			}
			if finished {
				return
			}
			if len(pending) > 0 {
				continue
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *Memory) Close() error { return nil }

// eventsAfter relies on seq == index+1.
func eventsAfter(events []entities.SessionEvent, after int64) []entities.SessionEvent {
	if after < 0 {
		after = 0
	}
	if after >= int64(len(events)) {
		return nil
	}
	return append([]entities.SessionEvent(nil), events[after:]...)
}
