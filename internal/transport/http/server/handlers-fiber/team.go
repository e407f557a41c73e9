package handlers_fiber

import (
	"net/http"
	"strings"

	"agent-runtime/internal/mapper"
	api "agent-runtime/internal/oapi"

	"github.com/gofiber/fiber/v2"
)

// PostTeams creates a team with its members.
func (h *Handler) PostTeams(c *fiber.Ctx) error {
	var body api.PostTeamsJSONRequestBody
	if err := c.BodyParser(&body); err != nil {
		return writeError(c, invalidBody(err))
	}

	team, err := h.uc.CreateTeam(c.UserContext(), mapper.FromOAPITeam(body))
	if err != nil {
		state(c).Logger().Infow(err.Error())
		return writeError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(struct {
		Team api.Team `json:"team"`
	}{Team: mapper.ToOAPITeam(*team)})
}

// GetTeamsTeamId returns team with members by id.
func (h *Handler) GetTeamsTeamId(c *fiber.Ctx, teamId string) error {
	team, err := h.uc.Team(c.UserContext(), teamId)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(mapper.ToOAPITeam(*team))
}

// PostTeamsTeamIdDeactivate disables the team, its members and keys.
func (h *Handler) PostTeamsTeamIdDeactivate(c *fiber.Ctx, teamId string) error {
	res, err := h.uc.DeactivateTeam(c.UserContext(), strings.TrimSpace(teamId))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// PostTeamsTeamIdKeys issues an API key. The plaintext is only returned here.
func (h *Handler) PostTeamsTeamIdKeys(c *fiber.Ctx, teamId string) error {
	var body api.IssueKeyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, invalidBody(err))
		}
	}

	issued, err := h.uc.IssueKey(c.UserContext(), teamId, body.Name)
	if err != nil {
		state(c).Logger().Errorw("failed to issue key", "team_id", teamId, "error", err.Error())
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(mapper.ToOAPIIssuedKey(*issued))
}
