package handlers_fiber

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"agent-runtime/internal/entities"
	api "agent-runtime/internal/oapi"
	"agent-runtime/internal/reqctx"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func classify(err error) (int, api.ErrorResponseErrorCode, string) {
	var fe *fiber.Error
	switch {
	case errors.Is(err, entities.ErrInvalidArgument):
		return http.StatusBadRequest, api.INVALIDARGUMENT, err.Error()
	case errors.Is(err, entities.ErrUnauthorized):
		return http.StatusUnauthorized, api.UNAUTHORIZED, err.Error()
	case errors.Is(err, entities.ErrForbidden):
		return http.StatusForbidden, api.FORBIDDEN, err.Error()
	case errors.Is(err, entities.ErrTeamInactive):
		return http.StatusForbidden, api.TEAMINACTIVE, "team is inactive"
	case errors.Is(err, entities.ErrEmbodimentDisabled):
		return http.StatusForbidden, api.EMBODIMENTDISABLED, err.Error()
	case errors.Is(err, entities.ErrTeamNotFound), errors.Is(err, entities.ErrAgentNotFound),
		errors.Is(err, entities.ErrConversationNotFound), errors.Is(err, entities.ErrSessionNotFound):
		return http.StatusNotFound, api.NOTFOUND, err.Error()
	case errors.Is(err, entities.ErrTeamExists), errors.Is(err, entities.ErrAgentExists):
		return http.StatusConflict, api.ALREADYEXISTS, err.Error()
	case errors.Is(err, entities.ErrAgentNotDeployed):
		return http.StatusConflict, api.AGENTNOTDEPLOYED, "agent has no deployed version"
	case errors.Is(err, entities.ErrSessionFinished):
		return http.StatusConflict, api.SESSIONFINISHED, "session already finished"
	case errors.Is(err, entities.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, api.UPLOADTOOLARGE, err.Error()
	case errors.Is(err, entities.ErrTooManySessions):
		return http.StatusTooManyRequests, api.TOOMANYSESSIONS, "too many running sessions"
	case errors.Is(err, entities.ErrRateLimited):
		return http.StatusTooManyRequests, api.RATELIMITED, err.Error()
	case errors.Is(err, entities.ErrRunnerFailed):
		return http.StatusBadGateway, api.RUNNERFAILED, err.Error()
	case errors.Is(err, entities.ErrShuttingDown):
		return http.StatusServiceUnavailable, api.UNAVAILABLE, "service is shutting down"
	case errors.As(err, &fe):
		return fe.Code, fiberCode(fe.Code), fe.Message
	default:
		return http.StatusInternalServerError, api.INTERNAL, "internal error"
	}
}

func fiberCode(status int) api.ErrorResponseErrorCode {
	switch status {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return api.NOTFOUND
	case http.StatusRequestEntityTooLarge:
		return api.UPLOADTOOLARGE
	case http.StatusTooManyRequests:
		return api.RATELIMITED
	case http.StatusUnauthorized:
		return api.UNAUTHORIZED
	case http.StatusForbidden:
		return api.FORBIDDEN
	}
	if status >= 500 {
		return api.INTERNAL
	}
	return api.INVALIDARGUMENT
}

func writeError(c *fiber.Ctx, err error) error {
	status, code, msg := classify(err)
	return c.Status(status).JSON(errorResponse(code, msg))
}

func errorResponse(code api.ErrorResponseErrorCode, msg string) api.ErrorResponse {
	return api.ErrorResponse{Error: struct {
		Code    api.ErrorResponseErrorCode `json:"code"`
		Message string                     `json:"message"`
	}{Code: code, Message: msg}}
}

func openAIError(err error) (int, api.OpenAIError) {
	status, code, msg := classify(err)

	var body api.OpenAIError
	body.Error.Message = msg
	switch {
	case status == http.StatusUnauthorized:
		body.Error.Type = "authentication_error"
	case status == http.StatusForbidden:
		body.Error.Type = "permission_error"
	case status == http.StatusTooManyRequests:
		body.Error.Type = "rate_limit_error"
	case status >= 500:
		body.Error.Type = "server_error"
	default:
		body.Error.Type = "invalid_request_error"
	}
	c := strings.ToLower(string(code))
	body.Error.Code = &c
	return status, body
}

func writeOpenAIError(c *fiber.Ctx, err error) error {
	status, body := openAIError(err)
	return c.Status(status).JSON(body)
}

// ErrorHandler renders errors that escape handlers and middleware. The
// OpenAI-compatible routes get the OpenAI envelope.
func ErrorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, _, _ := classify(err)
		if status >= 500 {
			log.Errorw("request failed", "path", c.Path(), "error", err)
		}
		if isOpenAIPath(c.Path()) {
			return writeOpenAIError(c, err)
		}
		return writeError(c, err)
	}
}

func isOpenAIPath(path string) bool {
	return strings.HasPrefix(path, "/emb/") && strings.Contains(path, "/v1/")
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: invalid body: %v", entities.ErrInvalidArgument, err)
}

func state(c *fiber.Ctx) *reqctx.Context {
	return reqctx.MustFrom(c.UserContext())
}

// teamScope resolves the team a listing applies to. Admins must name it,
// team keys may only name their own.
func teamScope(p *entities.Principal, requested *string) (string, error) {
	if p == nil {
		return "", entities.ErrUnauthorized
	}
	want := ""
	if requested != nil {
		want = strings.TrimSpace(*requested)
	}
	if p.Admin {
		if want == "" {
			return "", fmt.Errorf("%w: team_id is required for the admin key", entities.ErrInvalidArgument)
		}
		return want, nil
	}
	if want != "" && want != p.TeamID {
		return "", entities.ErrForbidden
	}
	return p.TeamID, nil
}

func limitOf(limit *int) int {
	if limit == nil {
		return 0
	}
	return *limit
}

func wantsEventStream(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), "text/event-stream")
}
