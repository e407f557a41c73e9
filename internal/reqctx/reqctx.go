// Package reqctx carries per-request state on context.Context.
//
// Exactly one Context is created for every incoming HTTP request by the
// RequestContext middleware. Later middleware in the chain (auth, upload,
// agent loading) fill it in and handlers read it back from the fiber user
// context, so nothing request scoped is passed through globals.
package reqctx

import (
	"context"
	"sync"
	"time"

	"agent-runtime/internal/entities"

	"go.uber.org/zap"
)

type ctxKey struct{}

// Context is the request-scoped state.
type Context struct {
	RequestID string
	StartedAt time.Time

	mu          sync.RWMutex
	log         *zap.SugaredLogger
	principal   *entities.Principal
	agent       *entities.Agent
	mode        entities.VersionMode
	attachments []entities.Attachment
	detached    bool
}

// New creates request state with a logger tagged by request id.
func New(requestID string, log *zap.SugaredLogger) *Context {
	return &Context{
		RequestID: requestID,
		StartedAt: time.Now(),
		log:       log.With("request_id", requestID),
		mode:      entities.VersionDeployed,
	}
}

// With returns ctx carrying rc.
func With(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From extracts request state from ctx.
func From(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	return rc, ok && rc != nil
}

// MustFrom is From for code that only runs behind the RequestContext middleware.
func MustFrom(ctx context.Context) *Context {
	rc, ok := From(ctx)
	if !ok {
		panic("reqctx: request context missing")
	}
	return rc
}

// Logger returns the request logger enriched with the known team and agent.
func (c *Context) Logger() *zap.SugaredLogger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log
}

// SetPrincipal records the authenticated caller.
func (c *Context) SetPrincipal(p *entities.Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.principal = p
	if p != nil && p.TeamID != "" {
		c.log = c.log.With("team_id", p.TeamID)
	}
}

// Principal returns the caller, nil when anonymous.
func (c *Context) Principal() *entities.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.principal
}

// SetAgent records the resolved agent and the version to execute.
func (c *Context) SetAgent(a *entities.Agent, mode entities.VersionMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agent = a
	c.mode = mode
	if a != nil {
		c.log = c.log.With("agent_id", a.ID)
	}
}

// Agent returns the resolved agent and version mode.
func (c *Context) Agent() (*entities.Agent, entities.VersionMode) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agent, c.mode
}

// AddAttachments appends uploaded files.
func (c *Context) AddAttachments(files ...entities.Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachments = append(c.attachments, files...)
}

// Attachments returns a copy of the uploaded files.
func (c *Context) Attachments() []entities.Attachment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]entities.Attachment, len(c.attachments))
	copy(out, c.attachments)
	return out
}

// Detach hands uploaded files over to a longer-lived owner, so request
// completion must not remove them.
func (c *Context) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
}

// Detached reports whether Detach was called.
func (c *Context) Detached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detached
}

// Elapsed is the time since the request started.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.StartedAt)
}
