// Package debugger runs agent drafts as asynchronous sessions whose progress
// is published as an ordered event log.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/metrics"
	"agent-runtime/internal/reqctx"
	"agent-runtime/internal/runtime"
	"agent-runtime/internal/sessionstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunRecorder stores usage of finished sessions.
type RunRecorder interface {
	RecordRun(ctx context.Context, run entities.Run) error
}

// UploadRemover deletes files a session took over from its request.
type UploadRemover interface {
	Remove(key string) error
}

// Config tunes session execution.
type Config struct {
	MaxPerTeam      int
	Retention       time.Duration
	RunTimeout      time.Duration
	JanitorInterval time.Duration
	Build           runtime.BuildOptions
}

// StartInput describes a new session.
type StartInput struct {
	Agent       *entities.Agent
	Input       string
	Attachments []entities.Attachment
	// UploadKey names the upload directory the session now owns.
	UploadKey string
}

type activeRun struct {
	teamID    string
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// Manager starts, tracks and cleans up debugger sessions.
type Manager struct {
	store   sessionstore.Store
	runner  runtime.Runner
	runs    RunRecorder
	uploads UploadRemover
	log     *zap.SugaredLogger
	cfg     Config
	now     func() time.Time

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	active  map[string]*activeRun
	perTeam map[string]int
}

// New creates a manager. Sessions run on contexts derived from an internal
// base that Shutdown cancels, never from the request that started them.
func New(store sessionstore.Store, runner runtime.Runner, runs RunRecorder, uploads UploadRemover, cfg Config, log *zap.SugaredLogger) *Manager {
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		store:   store,
		runner:  runner,
		runs:    runs,
		uploads: uploads,
		log:     log.Named("debugger"),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		base:    base,
		stop:    stop,
		active:  make(map[string]*activeRun),
		perTeam: make(map[string]int),
	}
}

type startedData struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Model     string `json:"model"`
}

type tokenData struct {
	Delta string `json:"delta"`
}

type completedData struct {
	Output       string         `json:"output"`
	FinishReason string         `json:"finish_reason"`
	Usage        entities.Usage `json:"usage"`
}

type failedData struct {
	Error string `json:"error"`
}

// Start persists a pending session and runs it in the background.
func (m *Manager) Start(ctx context.Context, in StartInput) (*entities.DebugSession, error) {
	if in.Agent == nil {
		return nil, fmt.Errorf("%w: agent is required", entities.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Input) == "" && len(in.Attachments) == 0 {
		return nil, fmt.Errorf("%w: input is required", entities.ErrInvalidArgument)
	}

	sess := &entities.DebugSession{
		ID:          uuid.NewString(),
		AgentID:     in.Agent.ID,
		TeamID:      in.Agent.TeamID,
		Status:      entities.SessionPending,
		Input:       in.Input,
		Attachments: in.Attachments,
		UploadKey:   in.UploadKey,
		CreatedAt:   m.now(),
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if m.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(m.base, m.cfg.RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(m.base)
	}
	run := &activeRun{teamID: sess.TeamID, cancel: cancel, done: make(chan struct{})}

	if err := m.reserve(sess.ID, run); err != nil {
		cancel()
		return nil, err
	}
	if err := m.store.Create(ctx, sess); err != nil {
		m.release(sess.ID)
		cancel()
		return nil, fmt.Errorf("create session: %w", err)
	}

	log := m.log
	if rc, ok := reqctx.From(ctx); ok {
		log = rc.Logger().Named("debugger")
	}
	log = log.With("session_id", sess.ID, "agent_id", sess.AgentID)
	log.Infow("debug session started")

	snapshot := *sess
	m.wg.Add(1)
	go m.execute(runCtx, run, &snapshot, in.Agent.Draft, log)
	return sess, nil
}

func (m *Manager) reserve(id string, run *activeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return entities.ErrShuttingDown
	}
	if m.cfg.MaxPerTeam > 0 && m.perTeam[run.teamID] >= m.cfg.MaxPerTeam {
		return fmt.Errorf("%w: team already runs %d sessions", entities.ErrTooManySessions, m.cfg.MaxPerTeam)
	}
	m.active[id] = run
	m.perTeam[run.teamID]++
	return nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.active[id]
	if !ok {
		return
	}
	delete(m.active, id)
	if m.perTeam[run.teamID]--; m.perTeam[run.teamID] <= 0 {
		delete(m.perTeam, run.teamID)
	}
}

func (m *Manager) execute(ctx context.Context, run *activeRun, sess *entities.DebugSession, def entities.Definition, log *zap.SugaredLogger) {
	defer m.wg.Done()
	defer run.cancel()

	metrics.SessionStarted()
	defer metrics.SessionFinished()

	// Store writes must land even after the run context is cancelled.
	storeCtx := context.WithoutCancel(ctx)
	started := m.now()

	req := runtime.BuildRequest(def, nil, sess.Input, sess.Attachments, m.cfg.Build)

	sess.Status = entities.SessionRunning
	err := m.store.Save(storeCtx, sess)
	if err == nil {
		_, err = m.store.Append(storeCtx, sess.ID, entities.EventSessionStarted, startedData{
			SessionID: sess.ID,
			AgentID:   sess.AgentID,
			Model:     req.Model,
		})
	}

	var res runtime.Result
	if err == nil {
		res, err = m.runner.Run(ctx, req, func(delta string) error {
			_, appendErr := m.store.Append(storeCtx, sess.ID, entities.EventToken, tokenData{Delta: delta})
			return appendErr
		})
	}

	m.finish(storeCtx, run, sess, res, err, started, log)
	close(run.done)
}

func (m *Manager) wasCancelled(run *activeRun) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return run.cancelled
}

func (m *Manager) finish(ctx context.Context, run *activeRun, sess *entities.DebugSession, res runtime.Result, runErr error, started time.Time, log *zap.SugaredLogger) {
	finished := m.now()
	sess.FinishedAt = &finished

	var (
		eventType string
		eventData any
		status    entities.RunStatus
	)
	switch {
	case runErr == nil:
		sess.Status = entities.SessionCompleted
		sess.Output = res.Content
		sess.Usage = res.Usage()
		eventType = entities.EventSessionCompleted
		eventData = completedData{Output: res.Content, FinishReason: res.FinishReason, Usage: sess.Usage}
		status = entities.RunSucceeded
	case m.wasCancelled(run) || errors.Is(runErr, context.Canceled):
		sess.Status = entities.SessionCancelled
		eventType = entities.EventSessionCancelled
		eventData = struct{}{}
		status = entities.RunCancelled
	default:
		msg := runErr.Error()
		if errors.Is(runErr, context.DeadlineExceeded) {
			msg = "run timed out"
		}
		sess.Status = entities.SessionFailed
		sess.Error = msg
		eventType = entities.EventSessionFailed
		eventData = failedData{Error: msg}
		status = entities.RunFailed
	}

	// A cancel from another replica may already have ended the session.
	owner, err := m.store.ClaimTerminal(ctx, sess.ID)
	if err != nil {
		log.Errorw("failed to claim terminal event", "error", err)
		owner = true
	}
	if !owner {
		status = entities.RunCancelled
	}

	if m.runs != nil {
		err := m.runs.RecordRun(ctx, entities.Run{
			ID:               sess.ID,
			AgentID:          sess.AgentID,
			TeamID:           sess.TeamID,
			Source:           entities.SourceDebug,
			Status:           status,
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			DurationMS:       finished.Sub(started).Milliseconds(),
			CreatedAt:        finished,
		})
		if err != nil {
			log.Errorw("failed to record run", "error", err)
		}
	}
	metrics.RecordRun(string(entities.SourceDebug), string(status))

	if !owner {
		m.release(sess.ID)
		log.Infow("debug session ended elsewhere", "duration_ms", finished.Sub(started).Milliseconds())
		return
	}

	// The slot is freed before subscribers see the terminal event.
	if err := m.store.Save(ctx, sess); err != nil {
		log.Errorw("failed to save finished session", "error", err)
	}
	m.release(sess.ID)
	if _, err := m.store.Append(ctx, sess.ID, eventType, eventData); err != nil {
		log.Errorw("failed to append terminal event", "error", err)
	}

	if runErr != nil && status == entities.RunFailed {
		log.Warnw("debug session failed", "error", runErr)
		return
	}
	log.Infow("debug session finished", "status", sess.Status, "duration_ms", finished.Sub(started).Milliseconds())
}

// Get returns a session snapshot.
func (m *Manager) Get(ctx context.Context, id string) (*entities.DebugSession, error) {
	return m.store.Get(ctx, id)
}

// Events returns the buffered events after seq.
func (m *Manager) Events(ctx context.Context, id string, after int64) ([]entities.SessionEvent, error) {
	return m.store.Events(ctx, id, after)
}

// Subscribe replays events after seq and follows the session until it ends.
func (m *Manager) Subscribe(ctx context.Context, id string, after int64) (<-chan entities.SessionEvent, error) {
	return m.store.Subscribe(ctx, id, after)
}

// Wait blocks until the session reaches a terminal state.
func (m *Manager) Wait(ctx context.Context, id string) (*entities.DebugSession, error) {
	ch, err := m.store.Subscribe(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	for range ch {
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.Get(ctx, id)
}

// Cancel stops a running session and returns its final state.
func (m *Manager) Cancel(ctx context.Context, id string) (*entities.DebugSession, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, entities.ErrSessionFinished
	}

	m.mu.Lock()
	run, ok := m.active[id]
	if ok {
		run.cancelled = true
		run.cancel()
	}
	m.mu.Unlock()

	if ok {
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return m.store.Get(ctx, id)
	}

	// Not running here: either it just finished or it is owned by another replica.
	sess, err = m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, entities.ErrSessionFinished
	}
	owner, err := m.store.ClaimTerminal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, entities.ErrSessionFinished
	}
	now := m.now()
	sess.Status = entities.SessionCancelled
	sess.FinishedAt = &now
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	if _, err := m.store.Append(ctx, id, entities.EventSessionCancelled, struct{}{}); err != nil {
		return nil, err
	}
	return sess, nil
}

// Running reports how many sessions of teamID are executing.
func (m *Manager) Running(teamID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perTeam[teamID]
}

// Sweep deletes finished sessions older than the retention window with their uploads.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-m.cfg.Retention)
	removed := 0
	for _, s := range sessions {
		if !s.Status.Terminal() || s.FinishedAt == nil || s.FinishedAt.After(cutoff) {
			continue
		}
		if m.uploads != nil && s.UploadKey != "" {
			if err := m.uploads.Remove(s.UploadKey); err != nil {
				m.log.Warnw("failed to remove session uploads", "session_id", s.ID, "error", err)
			}
		}
		if err := m.store.Delete(ctx, s.ID); err != nil && !errors.Is(err, entities.ErrSessionNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RunJanitor sweeps on every tick until ctx ends.
func (m *Manager) RunJanitor(ctx context.Context) {
	interval := m.cfg.JanitorInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.log.Errorw("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.log.Infow("expired sessions removed", "count", n)
			}
		}
	}
}

// Shutdown cancels running sessions and waits for them to record their
// outcome. Start fails with ErrShuttingDown afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
