package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-runtime/internal/entities"

	"github.com/jackc/pgx/v5"
)

const (
	insertConversationQuery = `
INSERT INTO conversations(id, agent_id, team_id)
VALUES ($1, $2, $3)
RETURNING created_at`
	selectConversationQuery       = `SELECT id, agent_id, team_id, created_at FROM conversations WHERE id=$1`
	selectAgentConversationsQuery = `
SELECT id, agent_id, team_id, created_at
FROM conversations
WHERE agent_id=$1
ORDER BY created_at DESC
LIMIT $2`
	insertMessageQuery = `INSERT INTO messages(id, conversation_id, role, content) VALUES ($1, $2, $3, $4)`
	selectMessagesQuery = `
SELECT id, conversation_id, role, content, created_at FROM (
    SELECT id, conversation_id, role, content, created_at, seq
    FROM messages
    WHERE conversation_id=$1
    ORDER BY seq DESC
    LIMIT $2
) recent
ORDER BY seq ASC`
)

// CreateConversation opens a new conversation for an agent.
func (p *Postgres) CreateConversation(ctx context.Context, conv entities.Conversation) (*entities.Conversation, error) {
	if err := p.db.QueryRow(ctx, insertConversationQuery, conv.ID, conv.AgentID, conv.TeamID).Scan(&conv.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return nil, entities.ErrAgentNotFound
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation fetches a conversation by id.
func (p *Postgres) GetConversation(ctx context.Context, id string) (*entities.Conversation, error) {
	var c entities.Conversation
	if err := p.db.QueryRow(ctx, selectConversationQuery, id).Scan(&c.ID, &c.AgentID, &c.TeamID, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entities.ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns the newest conversations of an agent.
func (p *Postgres) ListConversations(ctx context.Context, agentID string, limit int) ([]entities.Conversation, error) {
	rows, err := p.db.Query(ctx, selectAgentConversationsQuery, agentID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	res := make([]entities.Conversation, 0)
	for rows.Next() {
		var c entities.Conversation
		if err := rows.Scan(&c.ID, &c.AgentID, &c.TeamID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return res, nil
}

// AppendMessages stores messages in the given order.
func (p *Postgres) AppendMessages(ctx context.Context, msgs ...entities.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(insertMessageQuery, m.ID, m.ConversationID, string(m.Role), m.Content)
	}

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isForeignKeyViolation(err) {
			return entities.ErrConversationNotFound
		}
		return fmt.Errorf("insert messages: %w", err)
	}
	return tx.Commit(ctx)
}

// ListMessages returns the last limit messages of a conversation, oldest first.
func (p *Postgres) ListMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error) {
	rows, err := p.db.Query(ctx, selectMessagesQuery, conversationID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	res := make([]entities.Message, 0)
	for rows.Next() {
		var m entities.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = entities.Role(role)
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return res, nil
}

// limitOrAll maps non-positive limits to a LIMIT NULL (no limit).
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
