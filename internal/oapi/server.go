package oapi

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (POST /api/teams)
	PostTeams(c *fiber.Ctx) error
	// (GET /api/teams/{teamId})
	GetTeamsTeamId(c *fiber.Ctx, teamId string) error
	// (POST /api/teams/{teamId}/deactivate)
	PostTeamsTeamIdDeactivate(c *fiber.Ctx, teamId string) error
	// (POST /api/teams/{teamId}/keys)
	PostTeamsTeamIdKeys(c *fiber.Ctx, teamId string) error

	// (POST /api/agents)
	PostAgents(c *fiber.Ctx) error
	// (GET /api/agents)
	GetAgents(c *fiber.Ctx, params GetAgentsParams) error
	// (GET /api/agents/{agentId})
	GetAgentsAgentId(c *fiber.Ctx, agentId string) error
	// (PUT /api/agents/{agentId})
	PutAgentsAgentId(c *fiber.Ctx, agentId string) error
	// (POST /api/agents/{agentId}/deploy)
	PostAgentsAgentIdDeploy(c *fiber.Ctx, agentId string) error
	// (GET /api/agents/{agentId}/conversations)
	GetAgentsAgentIdConversations(c *fiber.Ctx, agentId string, params ListParams) error
	// (GET /api/agents/{agentId}/usage)
	GetAgentsAgentIdUsage(c *fiber.Ctx, agentId string) error
	// (GET /api/conversations/{conversationId}/messages)
	GetConversationsConversationIdMessages(c *fiber.Ctx, conversationId string, params ListParams) error
	// (GET /api/usage)
	GetUsage(c *fiber.Ctx, params GetUsageParams) error

	// (POST /api/debug/sessions)
	PostDebugSessions(c *fiber.Ctx, params PostDebugSessionsParams) error
	// (GET /api/debug/sessions/{sessionId})
	GetDebugSessionsSessionId(c *fiber.Ctx, sessionId string) error
	// (GET /api/debug/sessions/{sessionId}/events)
	GetDebugSessionsSessionIdEvents(c *fiber.Ctx, sessionId string, params GetDebugSessionsSessionIdEventsParams) error
	// (DELETE /api/debug/sessions/{sessionId})
	DeleteDebugSessionsSessionId(c *fiber.Ctx, sessionId string) error

	// (POST /emb/{agentId}/chat)
	PostEmbAgentIdChat(c *fiber.Ctx, agentId string) error
	// (POST /emb/{agentId}/v1/chat/completions)
	PostEmbAgentIdV1ChatCompletions(c *fiber.Ctx, agentId string) error
	// (GET /emb/{agentId}/v1/models)
	GetEmbAgentIdV1Models(c *fiber.Ctx, agentId string) error
}

// RouteGroup names a set of routes sharing a middleware chain.
type RouteGroup int

const (
	// GroupAdmin is team administration.
	GroupAdmin RouteGroup = iota
	// GroupTeam is team scoped management without an agent in the path.
	GroupTeam
	// GroupAgent is management of one agent.
	GroupAgent
	// GroupDebugStart accepts uploads and loads the agent draft.
	GroupDebugStart
	// GroupEmbodiment is the public agent surface.
	GroupEmbodiment
)

// Middlewares are prepended to the handlers of each group.
type Middlewares map[RouteGroup][]fiber.Handler

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func (w *ServerInterfaceWrapper) PostTeams(c *fiber.Ctx) error {
	return w.Handler.PostTeams(c)
}

func (w *ServerInterfaceWrapper) GetTeamsTeamId(c *fiber.Ctx) error {
	return w.Handler.GetTeamsTeamId(c, c.Params("teamId"))
}

func (w *ServerInterfaceWrapper) PostTeamsTeamIdDeactivate(c *fiber.Ctx) error {
	return w.Handler.PostTeamsTeamIdDeactivate(c, c.Params("teamId"))
}

func (w *ServerInterfaceWrapper) PostTeamsTeamIdKeys(c *fiber.Ctx) error {
	return w.Handler.PostTeamsTeamIdKeys(c, c.Params("teamId"))
}

func (w *ServerInterfaceWrapper) PostAgents(c *fiber.Ctx) error {
	return w.Handler.PostAgents(c)
}

func (w *ServerInterfaceWrapper) GetAgents(c *fiber.Ctx) error {
	var params GetAgentsParams
	if v := c.Query("team_id"); v != "" {
		params.TeamId = &v
	}
	return w.Handler.GetAgents(c, params)
}

func (w *ServerInterfaceWrapper) GetAgentsAgentId(c *fiber.Ctx) error {
	return w.Handler.GetAgentsAgentId(c, c.Params("agentId"))
}

func (w *ServerInterfaceWrapper) PutAgentsAgentId(c *fiber.Ctx) error {
	return w.Handler.PutAgentsAgentId(c, c.Params("agentId"))
}

func (w *ServerInterfaceWrapper) PostAgentsAgentIdDeploy(c *fiber.Ctx) error {
	return w.Handler.PostAgentsAgentIdDeploy(c, c.Params("agentId"))
}

func (w *ServerInterfaceWrapper) GetAgentsAgentIdConversations(c *fiber.Ctx) error {
	params, err := listParams(c)
	if err != nil {
		return err
	}
	return w.Handler.GetAgentsAgentIdConversations(c, c.Params("agentId"), params)
}

func (w *ServerInterfaceWrapper) GetAgentsAgentIdUsage(c *fiber.Ctx) error {
	return w.Handler.GetAgentsAgentIdUsage(c, c.Params("agentId"))
}

func (w *ServerInterfaceWrapper) GetConversationsConversationIdMessages(c *fiber.Ctx) error {
	params, err := listParams(c)
	if err != nil {
		return err
	}
	return w.Handler.GetConversationsConversationIdMessages(c, c.Params("conversationId"), params)
}

func (w *ServerInterfaceWrapper) GetUsage(c *fiber.Ctx) error {
	var params GetUsageParams
	if v := c.Query("team_id"); v != "" {
		params.TeamId = &v
	}
	var err error
	if params.From, err = queryTime(c, "from"); err != nil {
		return err
	}
	if params.To, err = queryTime(c, "to"); err != nil {
		return err
	}
	if params.Limit, err = queryInt(c, "limit"); err != nil {
		return err
	}
	return w.Handler.GetUsage(c, params)
}

func (w *ServerInterfaceWrapper) PostDebugSessions(c *fiber.Ctx) error {
	var params PostDebugSessionsParams
	if v := c.Query("wait"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid format for parameter wait: %s", err))
		}
		params.Wait = &b
	}
	return w.Handler.PostDebugSessions(c, params)
}

func (w *ServerInterfaceWrapper) GetDebugSessionsSessionId(c *fiber.Ctx) error {
	return w.Handler.GetDebugSessionsSessionId(c, c.Params("sessionId"))
}

func (w *ServerInterfaceWrapper) GetDebugSessionsSessionIdEvents(c *fiber.Ctx) error {
	var params GetDebugSessionsSessionIdEventsParams
	if v := c.Get("Last-Event-ID"); v != "" {
		params.LastEventId = &v
	}
	return w.Handler.GetDebugSessionsSessionIdEvents(c, c.Params("sessionId"), params)
}

func (w *ServerInterfaceWrapper) DeleteDebugSessionsSessionId(c *fiber.Ctx) error {
	return w.Handler.DeleteDebugSessionsSessionId(c, c.Params("sessionId"))
}

func (w *ServerInterfaceWrapper) PostEmbAgentIdChat(c *fiber.Ctx) error {
	return w.Handler.PostEmbAgentIdChat(c, c.Params("agentId"))
}

func (w *ServerInterfaceWrapper) PostEmbAgentIdV1ChatCompletions(c *fiber.Ctx) error {
	return w.Handler.PostEmbAgentIdV1ChatCompletions(c, c.Params("agentId"))
}

func (w *ServerInterfaceWrapper) GetEmbAgentIdV1Models(c *fiber.Ctx) error {
	return w.Handler.GetEmbAgentIdV1Models(c, c.Params("agentId"))
}

func listParams(c *fiber.Ctx) (ListParams, error) {
	limit, err := queryInt(c, "limit")
	return ListParams{Limit: limit}, err
}

func queryInt(c *fiber.Ctx, name string) (*int, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return &n, nil
}

func queryTime(c *fiber.Ctx, name string) (*time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return &t, nil
}

func chain(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}

// RegisterHandlers creates http.Handler with routing matching the API.
func RegisterHandlers(router fiber.Router, si ServerInterface, mw Middlewares) {
	w := &ServerInterfaceWrapper{Handler: si}

	admin := mw[GroupAdmin]
	router.Post("/api/teams", chain(admin, w.PostTeams)...)
	router.Get("/api/teams/:teamId", chain(admin, w.GetTeamsTeamId)...)
	router.Post("/api/teams/:teamId/deactivate", chain(admin, w.PostTeamsTeamIdDeactivate)...)
	router.Post("/api/teams/:teamId/keys", chain(admin, w.PostTeamsTeamIdKeys)...)

	team := mw[GroupTeam]
	router.Post("/api/agents", chain(team, w.PostAgents)...)
	router.Get("/api/agents", chain(team, w.GetAgents)...)
	router.Get("/api/conversations/:conversationId/messages", chain(team, w.GetConversationsConversationIdMessages)...)
	router.Get("/api/usage", chain(team, w.GetUsage)...)
	router.Get("/api/debug/sessions/:sessionId", chain(team, w.GetDebugSessionsSessionId)...)
	router.Get("/api/debug/sessions/:sessionId/events", chain(team, w.GetDebugSessionsSessionIdEvents)...)
	router.Delete("/api/debug/sessions/:sessionId", chain(team, w.DeleteDebugSessionsSessionId)...)

	agent := mw[GroupAgent]
	router.Get("/api/agents/:agentId", chain(agent, w.GetAgentsAgentId)...)
	router.Put("/api/agents/:agentId", chain(agent, w.PutAgentsAgentId)...)
	router.Post("/api/agents/:agentId/deploy", chain(agent, w.PostAgentsAgentIdDeploy)...)
	router.Get("/api/agents/:agentId/conversations", chain(agent, w.GetAgentsAgentIdConversations)...)
	router.Get("/api/agents/:agentId/usage", chain(agent, w.GetAgentsAgentIdUsage)...)

	router.Post("/api/debug/sessions", chain(mw[GroupDebugStart], w.PostDebugSessions)...)

	emb := mw[GroupEmbodiment]
	router.Post("/emb/:agentId/chat", chain(emb, w.PostEmbAgentIdChat)...)
	router.Post("/emb/:agentId/v1/chat/completions", chain(emb, w.PostEmbAgentIdV1ChatCompletions)...)
	router.Get("/emb/:agentId/v1/models", chain(emb, w.GetEmbAgentIdV1Models)...)
}
