package handlers_fiber

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"agent-runtime/internal/entities"
	api "agent-runtime/internal/oapi"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriteErrorAlreadyExists(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return writeError(c, entities.ErrAgentExists)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, api.ALREADYEXISTS, body.Error.Code)
	require.Equal(t, "agent exists", body.Error.Message)
}

func TestWriteErrorHidesInternalMessage(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return writeError(c, errors.New("dial tcp 10.0.0.1:5432: refused"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, api.INTERNAL, body.Error.Code)
	require.Equal(t, "internal error", body.Error.Message)
}

func TestWriteErrorStatusTable(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   api.ErrorResponseErrorCode
	}{
		{name: "invalid", err: fmt.Errorf("%w: name is required", entities.ErrInvalidArgument), status: http.StatusBadRequest, code: api.INVALIDARGUMENT},
		{name: "unauthorized", err: entities.ErrUnauthorized, status: http.StatusUnauthorized, code: api.UNAUTHORIZED},
		{name: "forbidden", err: entities.ErrForbidden, status: http.StatusForbidden, code: api.FORBIDDEN},
		{name: "team_inactive", err: entities.ErrTeamInactive, status: http.StatusForbidden, code: api.TEAMINACTIVE},
		{name: "embodiment", err: entities.ErrEmbodimentDisabled, status: http.StatusForbidden, code: api.EMBODIMENTDISABLED},
		{name: "session_missing", err: entities.ErrSessionNotFound, status: http.StatusNotFound, code: api.NOTFOUND},
		{name: "not_deployed", err: entities.ErrAgentNotDeployed, status: http.StatusConflict, code: api.AGENTNOTDEPLOYED},
		{name: "finished", err: entities.ErrSessionFinished, status: http.StatusConflict, code: api.SESSIONFINISHED},
		{name: "upload", err: entities.ErrUploadTooLarge, status: http.StatusRequestEntityTooLarge, code: api.UPLOADTOOLARGE},
		{name: "sessions", err: entities.ErrTooManySessions, status: http.StatusTooManyRequests, code: api.TOOMANYSESSIONS},
		{name: "rate", err: entities.ErrRateLimited, status: http.StatusTooManyRequests, code: api.RATELIMITED},
		{name: "runner", err: fmt.Errorf("%w: upstream 500", entities.ErrRunnerFailed), status: http.StatusBadGateway, code: api.RUNNERFAILED},
		{name: "shutting_down", err: entities.ErrShuttingDown, status: http.StatusServiceUnavailable, code: api.UNAVAILABLE},
		{name: "fiber", err: fiber.NewError(http.StatusBadRequest, "Invalid format for parameter limit"), status: http.StatusBadRequest, code: api.INVALIDARGUMENT},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return writeError(c, tt.err)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tt.status, resp.StatusCode)

			var body api.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestErrorHandlerUsesOpenAIEnvelope(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop().Sugar())})
	fail := func(c *fiber.Ctx) error { return entities.ErrRateLimited }
	app.Post("/emb/:agentId/v1/chat/completions", fail)
	app.Post("/emb/:agentId/chat", fail)

	req := httptest.NewRequest(http.MethodPost, "/emb/a1/v1/chat/completions", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var oerr api.OpenAIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&oerr))
	require.Equal(t, "rate_limit_error", oerr.Error.Type)
	require.NotNil(t, oerr.Error.Code)
	require.Equal(t, "rate_limited", *oerr.Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/emb/a1/chat", nil)
	resp2, err := app.Test(req)
	require.NoError(t, err)
	defer resp2.Body.Close()

	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	require.Equal(t, api.RATELIMITED, body.Error.Code)
}

func TestTeamScope(t *testing.T) {
	other := "t2"
	own := "t1"

	got, err := teamScope(&entities.Principal{TeamID: "t1"}, nil)
	require.NoError(t, err)
	require.Equal(t, "t1", got)

	got, err = teamScope(&entities.Principal{TeamID: "t1"}, &own)
	require.NoError(t, err)
	require.Equal(t, "t1", got)

	_, err = teamScope(&entities.Principal{TeamID: "t1"}, &other)
	require.ErrorIs(t, err, entities.ErrForbidden)

	_, err = teamScope(&entities.Principal{Admin: true}, nil)
	require.ErrorIs(t, err, entities.ErrInvalidArgument)

	got, err = teamScope(&entities.Principal{Admin: true}, &other)
	require.NoError(t, err)
	require.Equal(t, "t2", got)

	_, err = teamScope(nil, nil)
	require.ErrorIs(t, err, entities.ErrUnauthorized)
}

func TestSSEWriterFraming(t *testing.T) {
	var buf bytes.Buffer
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	sw := &sseWriter{w: bufio.NewWriter(&buf), cancel: cancel}

	require.NoError(t, sw.event(3, "token", map[string]string{"delta": "hi"}))
	require.NoError(t, sw.event(0, "done", json.RawMessage(`{"ok":true}`)))
	require.NoError(t, sw.data(map[string]int{"n": 1}))
	require.NoError(t, sw.done())

	require.Equal(t,
		"id: 3\nevent: token\ndata: {\"delta\":\"hi\"}\n\n"+
			"event: done\ndata: {\"ok\":true}\n\n"+
			"data: {\"n\":1}\n\n"+
			"data: [DONE]\n\n",
		buf.String())
}
