package handlers_fiber

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/mapper"
	api "agent-runtime/internal/oapi"
	"agent-runtime/internal/usecase/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func completionUsage(u entities.Usage) api.CompletionUsage {
	return api.CompletionUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// PostEmbAgentIdV1ChatCompletions serves the OpenAI chat completions API
// on top of the agent. The response model is always the agent id.
func (h *Handler) PostEmbAgentIdV1ChatCompletions(c *fiber.Ctx, agentId string) error {
	rc := state(c)
	agent, mode := rc.Agent()
	if agent == nil {
		return writeOpenAIError(c, entities.ErrAgentNotFound)
	}
	if !agent.Embodiments.OpenAI {
		return writeOpenAIError(c, entities.ErrEmbodimentDisabled)
	}

	var body api.ChatCompletionRequest
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return writeOpenAIError(c, invalidBody(err))
	}
	in := domain.CompletionInput{
		Agent:       agent,
		Mode:        mode,
		Messages:    mapper.FromOAPICompletionMessages(body.Messages),
		Temperature: body.Temperature,
		MaxTokens:   body.MaxCompletionTokens,
	}
	if in.MaxTokens == nil {
		in.MaxTokens = body.MaxTokens
	}

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	model := agent.ID

	if body.Stream || wantsEventStream(c) {
		log := rc.Logger()
		return h.stream(c, log, func(ctx context.Context, sw *sseWriter) {
			chunk := func(delta api.ChatCompletionDelta, finish *string, usage *api.CompletionUsage) api.ChatCompletionChunk {
				return api.ChatCompletionChunk{
					Id:      id,
					Object:  "chat.completion.chunk",
					Created: created,
					Model:   model,
					Choices: []api.ChatCompletionChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
					Usage:   usage,
				}
			}
			if err := sw.data(chunk(api.ChatCompletionDelta{Role: string(entities.RoleAssistant)}, nil, nil)); err != nil {
				return
			}
			res, err := h.uc.Completion(ctx, in, func(delta string) error {
				return sw.data(chunk(api.ChatCompletionDelta{Content: delta}, nil, nil))
			})
			if err != nil {
				if ctx.Err() == nil {
					log.Warnw("completion failed", "error", err.Error())
					_, body := openAIError(err)
					_ = sw.data(body)
					_ = sw.done()
				}
				return
			}
			finish := finishReason(res.FinishReason)
			usage := completionUsage(res.Usage())
			if err := sw.data(chunk(api.ChatCompletionDelta{}, &finish, &usage)); err != nil {
				return
			}
			_ = sw.done()
		})
	}

	res, err := h.uc.Completion(c.UserContext(), in, nil)
	if err != nil {
		rc.Logger().Warnw("completion failed", "error", err.Error())
		return writeOpenAIError(c, err)
	}
	return c.Status(http.StatusOK).JSON(api.ChatCompletion{
		Id:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []api.ChatCompletionChoice{{
			Index: 0,
			Message: api.ChatCompletionMessage{
				Role:    string(entities.RoleAssistant),
				Content: api.MessageContent(res.Content),
			},
			FinishReason: finishReason(res.FinishReason),
		}},
		Usage: completionUsage(res.Usage()),
	})
}

func finishReason(r string) string {
	if r == "" {
		return "stop"
	}
	return r
}

// GetEmbAgentIdV1Models lists the agent as the only model.
func (h *Handler) GetEmbAgentIdV1Models(c *fiber.Ctx, agentId string) error {
	agent, _ := state(c).Agent()
	if agent == nil {
		return writeOpenAIError(c, entities.ErrAgentNotFound)
	}
	if !agent.Embodiments.OpenAI {
		return writeOpenAIError(c, entities.ErrEmbodimentDisabled)
	}
	return c.Status(http.StatusOK).JSON(api.ModelList{
		Object: "list",
		Data: []api.Model{{
			Id:      agent.ID,
			Object:  "model",
			Created: agent.CreatedAt.Unix(),
			OwnedBy: agent.TeamID,
		}},
	})
}
