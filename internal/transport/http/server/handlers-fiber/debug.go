package handlers_fiber

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/mapper"
	api "agent-runtime/internal/oapi"
	"agent-runtime/internal/usecase/domain"

	"github.com/gofiber/fiber/v2"
)

func parseDebugInput(c *fiber.Ctx) (string, error) {
	ct := strings.ToLower(c.Get(fiber.HeaderContentType))
	if strings.HasPrefix(ct, fiber.MIMEMultipartForm) || strings.HasPrefix(ct, fiber.MIMEApplicationForm) {
		return c.FormValue("input"), nil
	}
	var body api.DebugSessionRequest
	if err := c.BodyParser(&body); err != nil {
		return "", invalidBody(err)
	}
	return body.Input, nil
}

// PostDebugSessions starts a debugger session on the agent draft. The
// session owns the uploaded files from here on.
func (h *Handler) PostDebugSessions(c *fiber.Ctx, params api.PostDebugSessionsParams) error {
	rc := state(c)
	input, err := parseDebugInput(c)
	if err != nil {
		return writeError(c, err)
	}
	agent, _ := rc.Agent()
	if agent == nil {
		return writeError(c, entities.ErrAgentNotFound)
	}

	in := domain.SessionInput{Agent: agent, Input: input, Attachments: rc.Attachments()}
	if len(in.Attachments) > 0 {
		in.UploadKey = rc.RequestID
	}
	sess, err := h.uc.StartSession(c.UserContext(), in)
	if err != nil {
		rc.Logger().Infow("failed to start session", "error", err.Error())
		return writeError(c, err)
	}
	if in.UploadKey != "" {
		rc.Detach()
	}
	rc.Logger().Infow("debug session started", "session_id", sess.ID)

	p := rc.Principal()
	switch {
	case params.Wait != nil && *params.Wait:
		final, err := h.uc.WaitSession(c.UserContext(), p, sess.ID)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(http.StatusOK).JSON(mapper.ToOAPIDebugSession(*final))
	case wantsEventStream(c):
		return h.streamSession(c, sess.ID, 0)
	}
	return c.Status(http.StatusAccepted).JSON(mapper.ToOAPIDebugSession(*sess))
}

// GetDebugSessionsSessionId returns a session snapshot.
func (h *Handler) GetDebugSessionsSessionId(c *fiber.Ctx, sessionId string) error {
	sess, err := h.uc.Session(c.UserContext(), state(c).Principal(), sessionId)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(mapper.ToOAPIDebugSession(*sess))
}

// GetDebugSessionsSessionIdEvents streams session events, resuming after
// Last-Event-ID when given.
func (h *Handler) GetDebugSessionsSessionIdEvents(c *fiber.Ctx, sessionId string, params api.GetDebugSessionsSessionIdEventsParams) error {
	var after int64
	if params.LastEventId != nil {
		n, err := strconv.ParseInt(strings.TrimSpace(*params.LastEventId), 10, 64)
		if err != nil || n < 0 {
			return writeError(c, fmt.Errorf("%w: Last-Event-ID must be a sequence number", entities.ErrInvalidArgument))
		}
		after = n
	}
	return h.streamSession(c, sessionId, after)
}

func (h *Handler) streamSession(c *fiber.Ctx, sessionID string, after int64) error {
	rc := state(c)
	ctx, cancel := context.WithCancel(c.UserContext())
	events, err := h.uc.SubscribeSession(ctx, rc.Principal(), sessionID, after)
	if err != nil {
		cancel()
		return writeError(c, err)
	}

	log := rc.Logger().With("session_id", sessionID)
	return h.stream(c, log, func(sctx context.Context, sw *sseWriter) {
		defer cancel()
		for {
			select {
			case <-sctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := sw.event(ev.Seq, ev.Type, ev.Data); err != nil {
					return
				}
			}
		}
	})
}

// DeleteDebugSessionsSessionId cancels a running session.
func (h *Handler) DeleteDebugSessionsSessionId(c *fiber.Ctx, sessionId string) error {
	sess, err := h.uc.CancelSession(c.UserContext(), state(c).Principal(), sessionId)
	if err != nil {
		return writeError(c, err)
	}
	state(c).Logger().Infow("debug session cancelled", "session_id", sessionId)
	return c.Status(http.StatusOK).JSON(mapper.ToOAPIDebugSession(*sess))
}
