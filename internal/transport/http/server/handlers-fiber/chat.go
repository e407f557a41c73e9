package handlers_fiber

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/mapper"
	api "agent-runtime/internal/oapi"
	"agent-runtime/internal/reqctx"
	"agent-runtime/internal/usecase/domain"

	"github.com/gofiber/fiber/v2"
)

// Chat SSE event types.
const (
	eventToken = "token"
	eventDone  = "done"
	eventError = "error"
)

type tokenPayload struct {
	Delta string `json:"delta"`
}

type errorPayload struct {
	Code    api.ErrorResponseErrorCode `json:"code"`
	Message string                     `json:"message"`
}

func streamError(err error) errorPayload {
	_, code, msg := classify(err)
	return errorPayload{Code: code, Message: msg}
}

func parseChatRequest(c *fiber.Ctx) (api.ChatRequest, error) {
	var body api.ChatRequest
	ct := strings.ToLower(c.Get(fiber.HeaderContentType))
	switch {
	case strings.HasPrefix(ct, fiber.MIMEMultipartForm), strings.HasPrefix(ct, fiber.MIMEApplicationForm):
		body.Message = c.FormValue("message")
		if v := c.FormValue("conversation_id"); v != "" {
			body.ConversationId = &v
		}
		if v := c.FormValue("stream"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return body, invalidBody(err)
			}
			body.Stream = &b
		}
	default:
		if err := c.BodyParser(&body); err != nil {
			return body, invalidBody(err)
		}
	}
	return body, nil
}

// holdUploads keeps request files alive past the handler for a streamed
// response and returns the cleanup to run when the stream ends.
func (h *Handler) holdUploads(rc *reqctx.Context) func() {
	if len(rc.Attachments()) == 0 || h.uploads == nil {
		return func() {}
	}
	rc.Detach()
	key := rc.RequestID
	log := rc.Logger()
	return func() {
		if err := h.uploads.Remove(key); err != nil {
			log.Warnw("failed to remove uploads", "error", err)
		}
	}
}

// PostEmbAgentIdChat runs one chat turn, buffered or as an SSE stream.
func (h *Handler) PostEmbAgentIdChat(c *fiber.Ctx, agentId string) error {
	rc := state(c)
	body, err := parseChatRequest(c)
	if err != nil {
		return writeError(c, err)
	}

	agent, mode := rc.Agent()
	if agent == nil {
		return writeError(c, entities.ErrAgentNotFound)
	}
	if !agent.Embodiments.Chat {
		return writeError(c, entities.ErrEmbodimentDisabled)
	}
	in := domain.ChatInput{
		Agent:       agent,
		Mode:        mode,
		Message:     body.Message,
		Attachments: rc.Attachments(),
	}
	if body.ConversationId != nil {
		in.ConversationID = *body.ConversationId
	}

	if (body.Stream != nil && *body.Stream) || wantsEventStream(c) {
		log := rc.Logger()
		release := h.holdUploads(rc)
		return h.stream(c, log, func(ctx context.Context, sw *sseWriter) {
			defer release()
			turn, err := h.uc.Chat(ctx, in, func(delta string) error {
				return sw.event(0, eventToken, tokenPayload{Delta: delta})
			})
			if err != nil {
				if ctx.Err() == nil {
					log.Warnw("chat failed", "error", err.Error())
					_ = sw.event(0, eventError, streamError(err))
				}
				return
			}
			_ = sw.event(0, eventDone, mapper.ToOAPIChatResponse(*turn))
		})
	}

	turn, err := h.uc.Chat(c.UserContext(), in, nil)
	if err != nil {
		rc.Logger().Warnw("chat failed", "error", err.Error())
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(mapper.ToOAPIChatResponse(*turn))
}
