package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/reqctx"

	"github.com/gofiber/fiber/v2"
)

// Agent selection headers.
const (
	HeaderAgentID      = "X-AGENT-ID"
	HeaderAgentVersion = "X-AGENT-VERSION"
)

// AgentSource loads agents and their teams.
type AgentSource interface {
	Agent(ctx context.Context, id string) (*entities.Agent, error)
	Team(ctx context.Context, id string) (*entities.Team, error)
}

// LoaderOptions configures AgentLoader for a route group.
type LoaderOptions struct {
	// Mode is the version executed by default.
	Mode entities.VersionMode
	// Embodiment enables public access and the X-AGENT-VERSION override.
	Embodiment bool
}

// AgentLoader resolves the target agent, authorizes the caller against it and
// stores it with the version mode in the request state.
func AgentLoader(src AgentSource, opts LoaderOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := reqctx.MustFrom(c.UserContext())

		id := agentID(c)
		if id == "" {
			return fmt.Errorf("%w: agent id is required", entities.ErrInvalidArgument)
		}
		agent, err := src.Agent(c.UserContext(), id)
		if err != nil {
			return err
		}

		p := rc.Principal()
		member := p.CanAccessTeam(agent.TeamID)
		if !member {
			switch {
			case opts.Embodiment && agent.Embodiments.Public:
			case p == nil:
				return fmt.Errorf("%w: api key is required", entities.ErrUnauthorized)
			default:
				return fmt.Errorf("%w: agent belongs to another team", entities.ErrForbidden)
			}
		}

		team, err := src.Team(c.UserContext(), agent.TeamID)
		if err != nil {
			return err
		}
		if !team.Active {
			return entities.ErrTeamInactive
		}

		mode := opts.Mode
		if opts.Embodiment && member {
			switch strings.ToLower(strings.TrimSpace(c.Get(HeaderAgentVersion))) {
			case "dev", "latest":
				mode = entities.VersionDraft
			}
		}
		if mode == entities.VersionDeployed && agent.Deployed == nil {
			return entities.ErrAgentNotDeployed
		}

		rc.SetAgent(agent, mode)
		return c.Next()
	}
}

func agentID(c *fiber.Ctx) string {
	if v := c.Params("agentId"); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Get(HeaderAgentID)); v != "" {
		return v
	}
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		var body struct {
			AgentID string `json:"agent_id"`
		}
		if json.Unmarshal(c.Body(), &body) == nil && body.AgentID != "" {
			return body.AgentID
		}
	}
	if v := c.FormValue("agentId"); v != "" {
		return v
	}
	return c.Query("agentId")
}
