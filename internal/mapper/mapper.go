// Package mapper converts between domain models and transport DTOs.
package mapper

import (
	"agent-runtime/internal/entities"
	oapi "agent-runtime/internal/oapi"
	"agent-runtime/internal/runtime"
)

// FromOAPITeam builds an entities.Team from transport DTO.
func FromOAPITeam(src oapi.Team) entities.Team {
	members := make([]entities.Member, 0, len(src.Members))
	for _, m := range src.Members {
		members = append(members, entities.Member{
			ID:     m.MemberId,
			TeamID: src.TeamId,
			Email:  m.Email,
			Role:   entities.MemberRole(m.Role),
			Active: m.Active,
		})
	}

	return entities.Team{
		ID:      src.TeamId,
		Name:    src.Name,
		Members: members,
	}
}

// ToOAPITeam maps entities.Team to transport model.
func ToOAPITeam(team entities.Team) oapi.Team {
	members := make([]oapi.TeamMember, 0, len(team.Members))
	for _, m := range team.Members {
		members = append(members, oapi.TeamMember{
			MemberId: m.ID,
			Email:    m.Email,
			Role:     string(m.Role),
			Active:   m.Active,
		})
	}

	res := oapi.Team{
		TeamId:  team.ID,
		Name:    team.Name,
		Active:  team.Active,
		Members: members,
	}
	if !team.CreatedAt.IsZero() {
		created := team.CreatedAt
		res.CreatedAt = &created
	}
	return res
}

// ToOAPIIssuedKey maps a freshly issued key including its plaintext.
func ToOAPIIssuedKey(k entities.IssuedKey) oapi.IssuedKey {
	return oapi.IssuedKey{
		KeyId:     k.Key.ID,
		TeamId:    k.Key.TeamID,
		Name:      k.Key.Name,
		Prefix:    k.Key.Prefix,
		Key:       k.Plaintext,
		CreatedAt: k.Key.CreatedAt,
	}
}

func toOAPIDefinition(d entities.Definition) oapi.Definition {
	return oapi.Definition{
		Model:        d.Model,
		SystemPrompt: d.SystemPrompt,
		Temperature:  d.Temperature,
		MaxTokens:    d.MaxTokens,
	}
}

// ToOAPIAgent maps entities.Agent to transport model.
func ToOAPIAgent(a entities.Agent) oapi.Agent {
	res := oapi.Agent{
		AgentId:     a.ID,
		TeamId:      a.TeamID,
		Name:        a.Name,
		Description: a.Description,
		Draft:       toOAPIDefinition(a.Draft),
		Version:     a.Version,
		Embodiments: oapi.Embodiments{
			Chat:   a.Embodiments.Chat,
			Openai: a.Embodiments.OpenAI,
			Public: a.Embodiments.Public,
		},
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Deployed != nil {
		d := toOAPIDefinition(*a.Deployed)
		res.Deployed = &d
	}
	return res
}

// ToOAPIAgentList maps a slice of agents.
func ToOAPIAgentList(list []entities.Agent) []oapi.Agent {
	res := make([]oapi.Agent, 0, len(list))
	for _, a := range list {
		res = append(res, ToOAPIAgent(a))
	}
	return res
}

// FromOAPIAgentRequest builds an agent from a create or update body.
func FromOAPIAgentRequest(src oapi.AgentRequest) entities.Agent {
	a := entities.Agent{
		Name:        src.Name,
		Description: src.Description,
		Draft: entities.Definition{
			Model:        src.Draft.Model,
			SystemPrompt: src.Draft.SystemPrompt,
			Temperature:  src.Draft.Temperature,
			MaxTokens:    src.Draft.MaxTokens,
		},
		Embodiments: entities.Embodiments{
			Chat:   src.Embodiments.Chat,
			OpenAI: src.Embodiments.Openai,
			Public: src.Embodiments.Public,
		},
	}
	if src.AgentId != nil {
		a.ID = *src.AgentId
	}
	if src.TeamId != nil {
		a.TeamID = *src.TeamId
	}
	return a
}

// ToOAPIConversationList maps conversations.
func ToOAPIConversationList(list []entities.Conversation) []oapi.Conversation {
	res := make([]oapi.Conversation, 0, len(list))
	for _, c := range list {
		res = append(res, oapi.Conversation{
			ConversationId: c.ID,
			AgentId:        c.AgentID,
			CreatedAt:      c.CreatedAt,
		})
	}
	return res
}

// ToOAPIMessage maps a message.
func ToOAPIMessage(m entities.Message) oapi.Message {
	return oapi.Message{
		MessageId: m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// ToOAPIMessageList maps messages.
func ToOAPIMessageList(list []entities.Message) []oapi.Message {
	res := make([]oapi.Message, 0, len(list))
	for _, m := range list {
		res = append(res, ToOAPIMessage(m))
	}
	return res
}

// ToOAPIUsage maps token counts.
func ToOAPIUsage(u entities.Usage) oapi.Usage {
	return oapi.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// ToOAPIChatResponse maps a chat turn.
func ToOAPIChatResponse(turn entities.ChatTurn) oapi.ChatResponse {
	return oapi.ChatResponse{
		ConversationId: turn.ConversationID,
		Message:        ToOAPIMessage(turn.Reply),
		Usage:          ToOAPIUsage(turn.Usage),
	}
}

// FromOAPICompletionMessages maps OpenAI request messages to runner input.
func FromOAPICompletionMessages(list []oapi.ChatCompletionMessage) []runtime.Message {
	res := make([]runtime.Message, 0, len(list))
	for _, m := range list {
		res = append(res, runtime.Message{Role: entities.Role(m.Role), Content: string(m.Content)})
	}
	return res
}

// ToOAPIDebugSession maps a debugger session snapshot.
func ToOAPIDebugSession(s entities.DebugSession) oapi.DebugSession {
	res := oapi.DebugSession{
		SessionId:  s.ID,
		AgentId:    s.AgentID,
		TeamId:     s.TeamID,
		Status:     string(s.Status),
		Input:      s.Input,
		Output:     s.Output,
		Error:      s.Error,
		Usage:      ToOAPIUsage(s.Usage),
		CreatedAt:  s.CreatedAt,
		FinishedAt: s.FinishedAt,
	}
	for _, a := range s.Attachments {
		res.Attachments = append(res.Attachments, oapi.Attachment{Name: a.Name, ContentType: a.ContentType, Size: a.Size})
	}
	return res
}
