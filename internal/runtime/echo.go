package runtime

import (
	"context"
	"strings"
	"time"
)

// Echo replies with the last user message, one word per delta.
// It needs no credentials and is the default backend for local runs.
type Echo struct {
	// Delay is slept between deltas.
	Delay time.Duration
}

// Run implements Runner.
func (e Echo) Run(ctx context.Context, req Request, emit Emit) (Result, error) {
	input := LastUserMessage(req.Messages)
	words := strings.Fields(input)

	var prompt int64
	for _, m := range req.Messages {
		prompt += int64(len(strings.Fields(m.Content)))
	}

	var out strings.Builder
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		delta := w
		if i > 0 {
			delta = " " + w
		}
		out.WriteString(delta)
		if emit != nil {
			if err := emit(delta); err != nil {
				return Result{}, err
			}
		}
		if e.Delay > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(e.Delay):
			}
		}
	}

	return Result{
		Content:          out.String(),
		FinishReason:     "stop",
		PromptTokens:     prompt,
		CompletionTokens: int64(len(words)),
	}, nil
}
