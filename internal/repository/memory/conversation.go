package memory

import (
	"context"
	"sort"

	"agent-runtime/internal/entities"
)

// CreateConversation opens a new conversation for an existing agent.
func (m *Memory) CreateConversation(_ context.Context, conv entities.Conversation) (*entities.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[conv.AgentID]; !ok {
		return nil, entities.ErrAgentNotFound
	}
	if _, ok := m.conversations[conv.ID]; ok {
		return nil, entities.ErrInvalidArgument
	}
	conv.CreatedAt = m.now()
	stored := conv
	m.conversations[conv.ID] = &stored
	return &conv, nil
}

// GetConversation fetches a conversation by id.
func (m *Memory) GetConversation(_ context.Context, id string) (*entities.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, entities.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

// ListConversations returns the newest conversations of an agent.
func (m *Memory) ListConversations(_ context.Context, agentID string, limit int) ([]entities.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]entities.Conversation, 0)
	for _, c := range m.conversations {
		if c.AgentID == agentID {
			res = append(res, *c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// AppendMessages stores messages in the given order; all or nothing.
func (m *Memory) AppendMessages(_ context.Context, msgs ...entities.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range msgs {
		if _, ok := m.conversations[msg.ConversationID]; !ok {
			return entities.ErrConversationNotFound
		}
	}
	now := m.now()
	for _, msg := range msgs {
		msg.CreatedAt = now
		m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	}
	return nil
}

// ListMessages returns the last limit messages of a conversation, oldest first.
func (m *Memory) ListMessages(_ context.Context, conversationID string, limit int) ([]entities.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append(make([]entities.Message, 0, len(all)), all...), nil
}
