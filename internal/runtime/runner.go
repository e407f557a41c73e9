// Package runtime defines the agent execution port and its backends.
package runtime

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"agent-runtime/internal/entities"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    entities.Role
	Content string
}

// Request is a single agent execution. A nil Temperature leaves the
// backend default in place.
type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Result is the outcome of a finished execution.
type Result struct {
	Content          string
	FinishReason     string
	PromptTokens     int64
	CompletionTokens int64
}

// Usage converts token counts to the entity type.
func (r Result) Usage() entities.Usage {
	return entities.NewUsage(r.PromptTokens, r.CompletionTokens)
}

// Emit receives streamed content deltas in order. Returning an error aborts the run.
type Emit func(delta string) error

// Runner executes agents. A nil emit means buffered execution.
type Runner interface {
	Run(ctx context.Context, req Request, emit Emit) (Result, error)
}

// BuildOptions tunes prompt assembly.
type BuildOptions struct {
	DefaultModel    string
	InlineTextLimit int
}

// BuildRequest assembles the model request for an agent definition:
// system prompt first, then history in order, then the new user input
// followed by a description of the attachments.
func BuildRequest(def entities.Definition, history []Message, input string, files []entities.Attachment, opts BuildOptions) Request {
	model := def.Model
	if model == "" {
		model = opts.DefaultModel
	}

	msgs := make([]Message, 0, len(history)+2)
	if def.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: entities.RoleSystem, Content: def.SystemPrompt})
	}
	msgs = append(msgs, history...)
	if input != "" || len(files) > 0 {
		msgs = append(msgs, Message{Role: entities.RoleUser, Content: withAttachments(input, files, opts.InlineTextLimit)})
	}

	req := Request{
		Model:     model,
		Messages:  msgs,
		MaxTokens: def.MaxTokens,
	}
	if def.Temperature > 0 {
		t := def.Temperature
		req.Temperature = &t
	}
	return req
}

func withAttachments(input string, files []entities.Attachment, limit int) string {
	if len(files) == 0 {
		return input
	}
	var b strings.Builder
	b.WriteString(input)
	for _, f := range files {
		b.WriteString("\n\n")
		if text, ok := readText(f, limit); ok {
			fmt.Fprintf(&b, "[file %s]\n%s", f.Name, text)
			continue
		}
		fmt.Fprintf(&b, "[attached file %s (%s, %d bytes)]", f.Name, f.ContentType, f.Size)
	}
	return b.String()
}

// readText loads small text attachments so they can be inlined in the prompt.
func readText(f entities.Attachment, limit int) (string, bool) {
	if limit <= 0 || f.Size > int64(limit) || !isText(f.ContentType) {
		return "", false
	}
	data, err := os.ReadFile(f.Path)
	if err != nil || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") ||
		strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/xml") ||
		strings.HasPrefix(ct, "application/yaml")
}

// LastUserMessage returns the content of the last user turn.
func LastUserMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == entities.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
