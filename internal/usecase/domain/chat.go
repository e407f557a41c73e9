// Package domain contains application services orchestrating domain logic by embodiment.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/runtime"

	"github.com/google/uuid"
)

// ChatInput is one chat embodiment turn.
type ChatInput struct {
	Agent          *entities.Agent
	Mode           entities.VersionMode
	Message        string
	ConversationID string
	Attachments    []entities.Attachment
}

// CompletionInput is an OpenAI-compatible chat completion request.
type CompletionInput struct {
	Agent       *entities.Agent
	Mode        entities.VersionMode
	Messages    []runtime.Message
	Temperature *float64
	MaxTokens   *int
}

func newID() string { return uuid.NewString() }

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Chat runs the agent on the conversation history plus the new message and
// stores both turns. A new conversation is opened when none is given.
func (u *Usecase) Chat(ctx context.Context, in ChatInput, emit runtime.Emit) (*entities.ChatTurn, error) {
	if in.Agent == nil {
		return nil, fmt.Errorf("%w: agent is required", entities.ErrInvalidArgument)
	}
	if !in.Agent.Embodiments.Chat {
		return nil, fmt.Errorf("%w: chat", entities.ErrEmbodimentDisabled)
	}
	if strings.TrimSpace(in.Message) == "" && len(in.Attachments) == 0 {
		return nil, fmt.Errorf("%w: message is required", entities.ErrInvalidArgument)
	}
	def, err := in.Agent.Definition(in.Mode)
	if err != nil {
		return nil, err
	}

	conv, history, err := u.loadHistory(ctx, in.Agent, in.ConversationID)
	if err != nil {
		return nil, err
	}
	req := runtime.BuildRequest(def, history, in.Message, in.Attachments, u.build)

	runCtx, cancel := withTimeout(ctx, u.runTimeout)
	defer cancel()
	started := u.now()
	res, err := u.runner.Run(runCtx, req, emit)
	u.recordRun(ctx, in.Agent, entities.SourceChat, res, err, started)
	if err != nil {
		return nil, err
	}

	// The reply is kept even if the caller went away mid-stream.
	storeCtx, storeCancel := withTimeout(context.WithoutCancel(ctx), u.timeout)
	defer storeCancel()

	if conv == nil {
		conv, err = u.repo.CreateConversation(storeCtx, entities.Conversation{
			ID:      newID(),
			AgentID: in.Agent.ID,
			TeamID:  in.Agent.TeamID,
		})
		if err != nil {
			return nil, err
		}
	}

	now := u.now()
	userMsg := entities.Message{ID: newID(), ConversationID: conv.ID, Role: entities.RoleUser, Content: in.Message, CreatedAt: now}
	reply := entities.Message{ID: newID(), ConversationID: conv.ID, Role: entities.RoleAssistant, Content: res.Content, CreatedAt: now}
	if err := u.repo.AppendMessages(storeCtx, userMsg, reply); err != nil {
		return nil, err
	}

	return &entities.ChatTurn{ConversationID: conv.ID, Reply: reply, Usage: res.Usage()}, nil
}

func (u *Usecase) loadHistory(ctx context.Context, agent *entities.Agent, conversationID string) (*entities.Conversation, []runtime.Message, error) {
	if conversationID == "" {
		return nil, nil, nil
	}

	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	conv, err := u.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv.AgentID != agent.ID {
		return nil, nil, entities.ErrConversationNotFound
	}

	msgs, err := u.repo.ListMessages(ctx, conv.ID, u.historyLimit)
	if err != nil {
		return nil, nil, err
	}
	history := make([]runtime.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, runtime.Message{Role: m.Role, Content: m.Content})
	}
	return conv, history, nil
}

// Completion runs the agent on caller supplied messages. The agent's system
// prompt comes first; caller system messages are kept after it.
func (u *Usecase) Completion(ctx context.Context, in CompletionInput, emit runtime.Emit) (*runtime.Result, error) {
	if in.Agent == nil {
		return nil, fmt.Errorf("%w: agent is required", entities.ErrInvalidArgument)
	}
	if !in.Agent.Embodiments.OpenAI {
		return nil, fmt.Errorf("%w: openai", entities.ErrEmbodimentDisabled)
	}
	if len(in.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", entities.ErrInvalidArgument)
	}
	for i, m := range in.Messages {
		switch m.Role {
		case entities.RoleSystem, entities.RoleUser, entities.RoleAssistant:
		default:
			return nil, fmt.Errorf("%w: messages[%d] has unsupported role %q", entities.ErrInvalidArgument, i, m.Role)
		}
	}
	def, err := in.Agent.Definition(in.Mode)
	if err != nil {
		return nil, err
	}
	if in.Temperature != nil {
		def.Temperature = *in.Temperature
	}
	if in.MaxTokens != nil {
		def.MaxTokens = *in.MaxTokens
	}
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	req := runtime.BuildRequest(def, in.Messages, "", nil, u.build)
	if in.Temperature != nil {
		t := *in.Temperature
		req.Temperature = &t
	}

	runCtx, cancel := withTimeout(ctx, u.runTimeout)
	defer cancel()
	started := u.now()
	res, err := u.runner.Run(runCtx, req, emit)
	u.recordRun(ctx, in.Agent, entities.SourceOpenAI, res, err, started)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
