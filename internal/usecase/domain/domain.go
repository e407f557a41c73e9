package domain

import (
	"context"
	"time"

	"agent-runtime/internal/debugger"
	"agent-runtime/internal/entities"
	"agent-runtime/internal/metrics"
	"agent-runtime/internal/repository"
	"agent-runtime/internal/runtime"

	"go.uber.org/zap"
)

// SessionManager runs debugger sessions in the background.
type SessionManager interface {
	Start(ctx context.Context, in debugger.StartInput) (*entities.DebugSession, error)
	Get(ctx context.Context, id string) (*entities.DebugSession, error)
	Wait(ctx context.Context, id string) (*entities.DebugSession, error)
	Cancel(ctx context.Context, id string) (*entities.DebugSession, error)
	Subscribe(ctx context.Context, id string, after int64) (<-chan entities.SessionEvent, error)
}

// Deps carries the agent execution collaborators.
type Deps struct {
	Runner       runtime.Runner
	Sessions     SessionManager
	Build        runtime.BuildOptions
	HistoryLimit int
	RunTimeout   time.Duration
	AdminKey     string
}

// Usecase struct implements all usecase interfaces.
type Usecase struct {
	ctx     context.Context
	log     *zap.SugaredLogger
	repo    repository.Repository
	timeout time.Duration

	runner       runtime.Runner
	sessions     SessionManager
	build        runtime.BuildOptions
	historyLimit int
	runTimeout   time.Duration
	adminKey     string
	now          func() time.Time
}

// New constructs a new usecase layer with its dependencies.
func New(
	log *zap.SugaredLogger,
	ctx context.Context,
	repo repository.Repository,
	timeout time.Duration,
	deps Deps,
) *Usecase {
	return &Usecase{
		ctx:          ctx,
		log:          log,
		repo:         repo,
		timeout:      timeout,
		runner:       deps.Runner,
		sessions:     deps.Sessions,
		build:        deps.Build,
		historyLimit: deps.HistoryLimit,
		runTimeout:   deps.RunTimeout,
		adminKey:     deps.AdminKey,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// recordRun stores usage of a finished embodiment run. It outlives the
// request so a disconnecting client is still accounted for.
func (u *Usecase) recordRun(ctx context.Context, agent *entities.Agent, source entities.RunSource, res runtime.Result, runErr error, started time.Time) {
	status := entities.RunSucceeded
	switch {
	case runErr == nil:
	case isCancellation(runErr):
		status = entities.RunCancelled
	default:
		status = entities.RunFailed
	}

	finished := u.now()
	run := entities.Run{
		ID:               newID(),
		AgentID:          agent.ID,
		TeamID:           agent.TeamID,
		Source:           source,
		Status:           status,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		DurationMS:       finished.Sub(started).Milliseconds(),
		CreatedAt:        finished,
	}

	recCtx, cancel := withTimeout(context.WithoutCancel(ctx), u.timeout)
	defer cancel()
	if err := u.repo.RecordRun(recCtx, run); err != nil {
		u.log.Errorw("failed to record run", "agent_id", agent.ID, "source", source, "error", err)
	}
	metrics.RecordRun(string(source), string(status))
}
