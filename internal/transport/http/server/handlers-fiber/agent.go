package handlers_fiber

import (
	"net/http"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/mapper"
	api "agent-runtime/internal/oapi"

	"github.com/gofiber/fiber/v2"
)

// PostAgents creates an agent in the caller's team.
func (h *Handler) PostAgents(c *fiber.Ctx) error {
	var body api.AgentRequest
	if err := c.BodyParser(&body); err != nil {
		return writeError(c, invalidBody(err))
	}

	teamID, err := teamScope(state(c).Principal(), body.TeamId)
	if err != nil {
		return writeError(c, err)
	}
	agent := mapper.FromOAPIAgentRequest(body)
	agent.TeamID = teamID

	created, err := h.uc.CreateAgent(c.UserContext(), agent)
	if err != nil {
		state(c).Logger().Infow("failed to create agent", "error", err.Error())
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(mapper.ToOAPIAgent(*created))
}

// GetAgents lists the agents of the caller's team.
func (h *Handler) GetAgents(c *fiber.Ctx, params api.GetAgentsParams) error {
	teamID, err := teamScope(state(c).Principal(), params.TeamId)
	if err != nil {
		return writeError(c, err)
	}
	list, err := h.uc.ListAgents(c.UserContext(), teamID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(struct {
		Agents []api.Agent `json:"agents"`
	}{Agents: mapper.ToOAPIAgentList(list)})
}

func loadedAgent(c *fiber.Ctx) (*entities.Agent, error) {
	agent, _ := state(c).Agent()
	if agent == nil {
		return nil, entities.ErrAgentNotFound
	}
	return agent, nil
}

// GetAgentsAgentId returns the agent resolved by the loader.
func (h *Handler) GetAgentsAgentId(c *fiber.Ctx, agentId string) error {
	agent, err := loadedAgent(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(mapper.ToOAPIAgent(*agent))
}

// PutAgentsAgentId replaces the draft and embodiments.
func (h *Handler) PutAgentsAgentId(c *fiber.Ctx, agentId string) error {
	current, err := loadedAgent(c)
	if err != nil {
		return writeError(c, err)
	}
	var body api.AgentRequest
	if err := c.BodyParser(&body); err != nil {
		return writeError(c, invalidBody(err))
	}

	agent := mapper.FromOAPIAgentRequest(body)
	agent.ID = current.ID
	agent.TeamID = current.TeamID
	updated, err := h.uc.UpdateAgent(c.UserContext(), agent)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(mapper.ToOAPIAgent(*updated))
}

// PostAgentsAgentIdDeploy publishes the draft.
func (h *Handler) PostAgentsAgentIdDeploy(c *fiber.Ctx, agentId string) error {
	agent, err := h.uc.DeployAgent(c.UserContext(), agentId)
	if err != nil {
		state(c).Logger().Errorw("failed to deploy agent", "error", err.Error())
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(mapper.ToOAPIAgent(*agent))
}

// GetAgentsAgentIdConversations lists chat conversations of the agent.
func (h *Handler) GetAgentsAgentIdConversations(c *fiber.Ctx, agentId string, params api.ListParams) error {
	list, err := h.uc.Conversations(c.UserContext(), agentId, limitOf(params.Limit))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(struct {
		Conversations []api.Conversation `json:"conversations"`
	}{Conversations: mapper.ToOAPIConversationList(list)})
}

// GetConversationsConversationIdMessages returns the last messages of a conversation.
func (h *Handler) GetConversationsConversationIdMessages(c *fiber.Ctx, conversationId string, params api.ListParams) error {
	list, err := h.uc.Messages(c.UserContext(), state(c).Principal(), conversationId, limitOf(params.Limit))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(struct {
		ConversationID string        `json:"conversation_id"`
		Messages       []api.Message `json:"messages"`
	}{ConversationID: conversationId, Messages: mapper.ToOAPIMessageList(list)})
}
