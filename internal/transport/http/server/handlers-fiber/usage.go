package handlers_fiber

import (
	"net/http"

	"agent-runtime/internal/entities"
	api "agent-runtime/internal/oapi"

	"github.com/gofiber/fiber/v2"
)

// GetUsage returns aggregated run statistics of a team.
func (h *Handler) GetUsage(c *fiber.Ctx, params api.GetUsageParams) error {
	teamID, err := teamScope(state(c).Principal(), params.TeamId)
	if err != nil {
		return writeError(c, err)
	}

	stats, err := h.uc.UsageSummary(c.UserContext(), teamID, entities.UsageFilter{
		From:  params.From,
		To:    params.To,
		Limit: limitOf(params.Limit),
	})
	if err != nil {
		state(c).Logger().Errorw("failed to get usage", "error", err.Error())
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(stats)
}

// GetAgentsAgentIdUsage returns run statistics of one agent.
func (h *Handler) GetAgentsAgentIdUsage(c *fiber.Ctx, agentId string) error {
	stats, err := h.uc.AgentUsage(c.UserContext(), agentId)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(stats)
}
