package runtime

import (
	"context"
	"errors"
	"fmt"

	"agent-runtime/internal/entities"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI runs agents against an OpenAI-compatible chat completions API.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI builds a runner for baseURL authenticated with apiKey.
func NewOpenAI(baseURL, apiKey string, opts ...option.RequestOption) *OpenAI {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	return &OpenAI{client: openai.NewClient(all...)}
}

// Run implements Runner. Streaming is used when emit is set.
func (o *OpenAI) Run(ctx context.Context, req Request, emit Emit) (Result, error) {
	params := toParams(req)
	if emit == nil {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return Result{}, runnerError(ctx, err)
		}
		if len(resp.Choices) == 0 {
			return Result{}, fmt.Errorf("%w: empty choices", entities.ErrRunnerFailed)
		}
		return Result{
			Content:          resp.Choices[0].Message.Content,
			FinishReason:     resp.Choices[0].FinishReason,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}, nil
	}

	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := emit(chunk.Choices[0].Delta.Content); err != nil {
			return Result{}, err
		}
	}
	if err := stream.Err(); err != nil {
		return Result{}, runnerError(ctx, err)
	}

	res := Result{
		PromptTokens:     acc.Usage.PromptTokens,
		CompletionTokens: acc.Usage.CompletionTokens,
	}
	if len(acc.Choices) > 0 {
		res.Content = acc.Choices[0].Message.Content
		res.FinishReason = acc.Choices[0].FinishReason
	}
	return res, nil
}

func toParams(req Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case entities.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case entities.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func runnerError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", entities.ErrRunnerFailed, err)
}
