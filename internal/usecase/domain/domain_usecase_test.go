package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-runtime/internal/debugger"
	"agent-runtime/internal/entities"
	"agent-runtime/internal/repository"
	"agent-runtime/internal/runtime"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type repoMock struct{ mock.Mock }

var _ repository.Repository = (*repoMock)(nil)

func (m *repoMock) OnStart(_ context.Context) error { return nil }
func (m *repoMock) OnStop(_ context.Context) error  { return nil }

func (m *repoMock) CreateTeam(ctx context.Context, team entities.Team) (*entities.Team, error) {
	args := m.Called(ctx, team)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Team), args.Error(1)
}

func (m *repoMock) GetTeam(ctx context.Context, id string) (*entities.Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Team), args.Error(1)
}

func (m *repoMock) DeactivateTeam(ctx context.Context, id string) (entities.DeactivateResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return entities.DeactivateResult{}, args.Error(1)
	}
	return args.Get(0).(entities.DeactivateResult), args.Error(1)
}

func (m *repoMock) CreateAPIKey(ctx context.Context, key entities.APIKey) (*entities.APIKey, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.APIKey), args.Error(1)
}

func (m *repoMock) GetAPIKeyByHash(ctx context.Context, hash string) (*entities.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.APIKey), args.Error(1)
}

func (m *repoMock) CreateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error) {
	args := m.Called(ctx, agent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Agent), args.Error(1)
}

func (m *repoMock) GetAgent(ctx context.Context, id string) (*entities.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Agent), args.Error(1)
}

func (m *repoMock) ListAgents(ctx context.Context, teamID string) ([]entities.Agent, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Agent), args.Error(1)
}

func (m *repoMock) UpdateAgent(ctx context.Context, agent entities.Agent) (*entities.Agent, error) {
	args := m.Called(ctx, agent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Agent), args.Error(1)
}

func (m *repoMock) DeployAgent(ctx context.Context, id string) (*entities.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Agent), args.Error(1)
}

func (m *repoMock) CreateConversation(ctx context.Context, conv entities.Conversation) (*entities.Conversation, error) {
	args := m.Called(ctx, conv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Conversation), args.Error(1)
}

func (m *repoMock) GetConversation(ctx context.Context, id string) (*entities.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Conversation), args.Error(1)
}

func (m *repoMock) ListConversations(ctx context.Context, agentID string, limit int) ([]entities.Conversation, error) {
	args := m.Called(ctx, agentID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Conversation), args.Error(1)
}

func (m *repoMock) AppendMessages(ctx context.Context, msgs ...entities.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *repoMock) ListMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Message), args.Error(1)
}

func (m *repoMock) RecordRun(ctx context.Context, run entities.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *repoMock) UsageSummary(ctx context.Context, teamID string, filter entities.UsageFilter) (entities.UsageSummary, error) {
	args := m.Called(ctx, teamID, filter)
	if args.Get(0) == nil {
		return entities.UsageSummary{}, args.Error(1)
	}
	return args.Get(0).(entities.UsageSummary), args.Error(1)
}

func (m *repoMock) AgentUsage(ctx context.Context, agentID string) (entities.AgentUsage, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return entities.AgentUsage{}, args.Error(1)
	}
	return args.Get(0).(entities.AgentUsage), args.Error(1)
}

type sessionsMock struct{ mock.Mock }

func (m *sessionsMock) Start(ctx context.Context, in debugger.StartInput) (*entities.DebugSession, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DebugSession), args.Error(1)
}

func (m *sessionsMock) Get(ctx context.Context, id string) (*entities.DebugSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DebugSession), args.Error(1)
}

func (m *sessionsMock) Wait(ctx context.Context, id string) (*entities.DebugSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DebugSession), args.Error(1)
}

func (m *sessionsMock) Cancel(ctx context.Context, id string) (*entities.DebugSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DebugSession), args.Error(1)
}

func (m *sessionsMock) Subscribe(ctx context.Context, id string, after int64) (<-chan entities.SessionEvent, error) {
	args := m.Called(ctx, id, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan entities.SessionEvent), args.Error(1)
}

type failingRunner struct{ err error }

func (f failingRunner) Run(context.Context, runtime.Request, runtime.Emit) (runtime.Result, error) {
	return runtime.Result{}, f.err
}

type capturingRunner struct{ req runtime.Request }

func (c *capturingRunner) Run(ctx context.Context, req runtime.Request, emit runtime.Emit) (runtime.Result, error) {
	c.req = req
	return runtime.Echo{}.Run(ctx, req, emit)
}

func newUsecase(repo *repoMock, deps Deps) *Usecase {
	if deps.Runner == nil {
		deps.Runner = runtime.Echo{}
	}
	if deps.HistoryLimit == 0 {
		deps.HistoryLimit = 20
	}
	return New(zap.NewNop().Sugar(), context.Background(), repo, time.Second, deps)
}

func chatAgent() *entities.Agent {
	deployed := entities.Definition{Model: "m", SystemPrompt: "be helpful"}
	return &entities.Agent{
		ID:          "agent-1",
		TeamID:      "team-1",
		Name:        "helper",
		Draft:       entities.Definition{Model: "m-draft"},
		Deployed:    &deployed,
		Version:     1,
		Embodiments: entities.Embodiments{Chat: true, OpenAI: true},
	}
}

func TestUsecase_CreateTeamValidation(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})

	_, err := uc.CreateTeam(context.Background(), entities.Team{Name: "no id"})
	require.ErrorIs(t, err, entities.ErrInvalidArgument)
	_, err = uc.CreateTeam(context.Background(), entities.Team{ID: "t", Name: "T", Members: []entities.Member{{Email: "x@y"}}})
	require.ErrorIs(t, err, entities.ErrInvalidArgument)
	repo.AssertNotCalled(t, "CreateTeam", mock.Anything, mock.Anything)
}

func TestUsecase_CreateTeamActivatesMembers(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})

	expected := &entities.Team{ID: "t", Name: "T", Active: true}
	repo.On("CreateTeam", mock.Anything, mock.MatchedBy(func(team entities.Team) bool {
		return team.ID == "t" && len(team.Members) == 1 && team.Members[0].Active
	})).Return(expected, nil)

	team, err := uc.CreateTeam(context.Background(), entities.Team{ID: "t", Name: "T", Members: []entities.Member{{ID: "u1"}}})
	require.NoError(t, err)
	require.Equal(t, expected, team)
	repo.AssertExpectations(t)
}

func TestUsecase_TeamGetValidation(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})

	_, err := uc.Team(context.Background(), "")
	require.ErrorIs(t, err, entities.ErrInvalidArgument)
}

func TestUsecase_DeactivateValidation(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})

	_, err := uc.DeactivateTeam(context.Background(), "")
	require.ErrorIs(t, err, entities.ErrInvalidArgument)
}

func TestUsecase_IssueKey(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})

	var stored entities.APIKey
	repo.On("GetTeam", mock.Anything, "team-1").Return(&entities.Team{ID: "team-1", Active: true}, nil)
	repo.On("CreateAPIKey", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(entities.APIKey) }).
		Return(&entities.APIKey{ID: "k1", TeamID: "team-1", Name: "ci"}, nil)

	issued, err := uc.IssueKey(context.Background(), "team-1", "ci")
	require.NoError(t, err)
	require.Contains(t, issued.Plaintext, keyPrefix)
	require.Equal(t, entities.HashAPIKey(issued.Plaintext), stored.Hash)
	require.Equal(t, entities.KeyPrefix(issued.Plaintext), stored.Prefix)
	require.Equal(t, "k1", issued.Key.ID)
}

func TestUsecase_IssueKeyInactiveTeam(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})

	repo.On("GetTeam", mock.Anything, "team-1").Return(&entities.Team{ID: "team-1", Active: false}, nil)
	_, err := uc.IssueKey(context.Background(), "team-1", "ci")
	require.ErrorIs(t, err, entities.ErrTeamInactive)
	repo.AssertNotCalled(t, "CreateAPIKey", mock.Anything, mock.Anything)
}

func TestUsecase_Authenticate(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{AdminKey: "admin-key-0123456789"})
	ctx := context.Background()

	p, err := uc.Authenticate(ctx, "admin-key-0123456789")
	require.NoError(t, err)
	require.True(t, p.Admin)

	repo.On("GetAPIKeyByHash", mock.Anything, entities.HashAPIKey("team-key")).
		Return(&entities.APIKey{ID: "k1", TeamID: "team-1"}, nil)
	p, err = uc.Authenticate(ctx, "team-key")
	require.NoError(t, err)
	require.Equal(t, &entities.Principal{TeamID: "team-1", KeyID: "k1"}, p)

	revoked := time.Now()
	repo.On("GetAPIKeyByHash", mock.Anything, entities.HashAPIKey("old-key")).
		Return(&entities.APIKey{ID: "k2", TeamID: "team-1", RevokedAt: &revoked}, nil)
	_, err = uc.Authenticate(ctx, "old-key")
	require.ErrorIs(t, err, entities.ErrUnauthorized)

	_, err = uc.Authenticate(ctx, "  ")
	require.ErrorIs(t, err, entities.ErrUnauthorized)
}

func TestUsecase_CreateAgent(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})
	ctx := context.Background()

	_, err := uc.CreateAgent(ctx, entities.Agent{TeamID: "team-1"})
	require.ErrorIs(t, err, entities.ErrInvalidArgument)
	_, err = uc.CreateAgent(ctx, entities.Agent{TeamID: "team-1", Name: "a", Draft: entities.Definition{Temperature: 3}})
	require.ErrorIs(t, err, entities.ErrInvalidArgument)

	repo.On("GetTeam", mock.Anything, "team-1").Return(&entities.Team{ID: "team-1", Active: true}, nil)
	repo.On("CreateAgent", mock.Anything, mock.MatchedBy(func(a entities.Agent) bool {
		return a.ID != "" && a.Name == "a"
	})).Return(&entities.Agent{ID: "generated", Name: "a", TeamID: "team-1"}, nil)

	a, err := uc.CreateAgent(ctx, entities.Agent{TeamID: "team-1", Name: "a"})
	require.NoError(t, err)
	require.Equal(t, "generated", a.ID)
	repo.AssertExpectations(t)
}

func TestUsecase_MessagesChecksTeam(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})
	ctx := context.Background()

	repo.On("GetConversation", mock.Anything, "c1").Return(&entities.Conversation{ID: "c1", TeamID: "team-1"}, nil)
	_, err := uc.Messages(ctx, &entities.Principal{TeamID: "team-2"}, "c1", 10)
	require.ErrorIs(t, err, entities.ErrForbidden)

	repo.On("ListMessages", mock.Anything, "c1", 10).Return([]entities.Message{{ID: "m1"}}, nil)
	msgs, err := uc.Messages(ctx, &entities.Principal{TeamID: "team-1"}, "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestUsecase_ChatNewConversation(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})

	repo.On("RecordRun", mock.Anything, mock.MatchedBy(func(r entities.Run) bool {
		return r.Source == entities.SourceChat && r.Status == entities.RunSucceeded && r.TeamID == "team-1"
	})).Return(nil)
	repo.On("CreateConversation", mock.Anything, mock.MatchedBy(func(c entities.Conversation) bool {
		return c.AgentID == "agent-1" && c.ID != ""
	})).Return(&entities.Conversation{ID: "conv-1", AgentID: "agent-1", TeamID: "team-1"}, nil)
	repo.On("AppendMessages", mock.Anything, mock.MatchedBy(func(msgs []entities.Message) bool {
		return len(msgs) == 2 &&
			msgs[0].Role == entities.RoleUser && msgs[0].Content == "hi there" &&
			msgs[1].Role == entities.RoleAssistant && msgs[1].Content == "hi there"
	})).Return(nil)

	var deltas []string
	turn, err := uc.Chat(context.Background(), ChatInput{Agent: chatAgent(), Mode: entities.VersionDeployed, Message: "hi there"},
		func(d string) error {
			deltas = append(deltas, d)
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, "conv-1", turn.ConversationID)
	require.Equal(t, "hi there", turn.Reply.Content)
	require.Equal(t, []string{"hi", " there"}, deltas)
	repo.AssertExpectations(t)
}

func TestUsecase_ChatExistingConversation(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{HistoryLimit: 5})

	repo.On("GetConversation", mock.Anything, "conv-1").Return(&entities.Conversation{ID: "conv-1", AgentID: "agent-1", TeamID: "team-1"}, nil)
	repo.On("ListMessages", mock.Anything, "conv-1", 5).Return([]entities.Message{
		{Role: entities.RoleUser, Content: "earlier"},
		{Role: entities.RoleAssistant, Content: "reply"},
	}, nil)
	repo.On("RecordRun", mock.Anything, mock.Anything).Return(nil)
	repo.On("AppendMessages", mock.Anything, mock.Anything).Return(nil)

	turn, err := uc.Chat(context.Background(), ChatInput{Agent: chatAgent(), Message: "again", ConversationID: "conv-1"}, nil)
	require.NoError(t, err)
	require.Equal(t, "conv-1", turn.ConversationID)
	// echo prompt tokens: system prompt (2) + history (2) + input (1)
	require.Equal(t, int64(5), turn.Usage.PromptTokens)
	repo.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
}

func TestUsecase_ChatRejections(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})
	ctx := context.Background()

	disabled := chatAgent()
	disabled.Embodiments.Chat = false
	_, err := uc.Chat(ctx, ChatInput{Agent: disabled, Message: "x"}, nil)
	require.ErrorIs(t, err, entities.ErrEmbodimentDisabled)

	undeployed := chatAgent()
	undeployed.Deployed = nil
	_, err = uc.Chat(ctx, ChatInput{Agent: undeployed, Mode: entities.VersionDeployed, Message: "x"}, nil)
	require.ErrorIs(t, err, entities.ErrAgentNotDeployed)

	_, err = uc.Chat(ctx, ChatInput{Agent: chatAgent(), Message: " "}, nil)
	require.ErrorIs(t, err, entities.ErrInvalidArgument)

	repo.On("GetConversation", mock.Anything, "foreign").Return(&entities.Conversation{ID: "foreign", AgentID: "other"}, nil)
	_, err = uc.Chat(ctx, ChatInput{Agent: chatAgent(), Message: "x", ConversationID: "foreign"}, nil)
	require.ErrorIs(t, err, entities.ErrConversationNotFound)
}

func TestUsecase_ChatRunnerFailureRecordsRun(t *testing.T) {
	repo := &repoMock{}
	boom := errors.New("boom")
	uc := newUsecase(repo, Deps{Runner: failingRunner{err: boom}})

	repo.On("RecordRun", mock.Anything, mock.MatchedBy(func(r entities.Run) bool {
		return r.Status == entities.RunFailed
	})).Return(nil)

	_, err := uc.Chat(context.Background(), ChatInput{Agent: chatAgent(), Message: "x"}, nil)
	require.ErrorIs(t, err, boom)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "AppendMessages", mock.Anything, mock.Anything)
}

func TestUsecase_Completion(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})
	ctx := context.Background()

	repo.On("RecordRun", mock.Anything, mock.MatchedBy(func(r entities.Run) bool {
		return r.Source == entities.SourceOpenAI
	})).Return(nil)

	res, err := uc.Completion(ctx, CompletionInput{
		Agent: chatAgent(),
		Messages: []runtime.Message{
			{Role: entities.RoleSystem, Content: "caller rules"},
			{Role: entities.RoleUser, Content: "ping"},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "ping", res.Content)
	// agent system prompt (2) + caller system (2) + user (1)
	require.Equal(t, int64(5), res.PromptTokens)

	_, err = uc.Completion(ctx, CompletionInput{Agent: chatAgent()}, nil)
	require.ErrorIs(t, err, entities.ErrInvalidArgument)

	_, err = uc.Completion(ctx, CompletionInput{Agent: chatAgent(), Messages: []runtime.Message{{Role: "tool", Content: "x"}}}, nil)
	require.ErrorIs(t, err, entities.ErrInvalidArgument)

	disabled := chatAgent()
	disabled.Embodiments.OpenAI = false
	_, err = uc.Completion(ctx, CompletionInput{Agent: disabled, Messages: []runtime.Message{{Role: entities.RoleUser, Content: "x"}}}, nil)
	require.ErrorIs(t, err, entities.ErrEmbodimentDisabled)
}

func TestUsecase_CompletionTemperature(t *testing.T) {
	repo := &repoMock{}
	runner := &capturingRunner{}
	uc := newUsecase(repo, Deps{Runner: runner})
	ctx := context.Background()
	repo.On("RecordRun", mock.Anything, mock.Anything).Return(nil)

	msgs := []runtime.Message{{Role: entities.RoleUser, Content: "ping"}}
	zero := 0.0
	_, err := uc.Completion(ctx, CompletionInput{Agent: chatAgent(), Messages: msgs, Temperature: &zero}, nil)
	require.NoError(t, err)
	require.NotNil(t, runner.req.Temperature)
	require.Equal(t, 0.0, *runner.req.Temperature)

	_, err = uc.Completion(ctx, CompletionInput{Agent: chatAgent(), Messages: msgs}, nil)
	require.NoError(t, err)
	require.Nil(t, runner.req.Temperature)

	tooHot := 2.5
	_, err = uc.Completion(ctx, CompletionInput{Agent: chatAgent(), Messages: msgs, Temperature: &tooHot}, nil)
	require.ErrorIs(t, err, entities.ErrInvalidArgument)
}

func TestUsecase_UsageSummaryValidation(t *testing.T) {
	repo := &repoMock{}
	uc := newUsecase(repo, Deps{})

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err := uc.UsageSummary(context.Background(), "team-1", entities.UsageFilter{From: &from, To: &to})
	require.ErrorIs(t, err, entities.ErrInvalidArgument)

	repo.On("UsageSummary", mock.Anything, "team-1", entities.UsageFilter{Limit: 10}).
		Return(entities.UsageSummary{TeamID: "team-1"}, nil)
	sum, err := uc.UsageSummary(context.Background(), "team-1", entities.UsageFilter{})
	require.NoError(t, err)
	require.Equal(t, "team-1", sum.TeamID)
}

func TestUsecase_SessionAccess(t *testing.T) {
	repo := &repoMock{}
	sessions := &sessionsMock{}
	uc := newUsecase(repo, Deps{Sessions: sessions})
	ctx := context.Background()

	sess := &entities.DebugSession{ID: "s1", TeamID: "team-1", Status: entities.SessionRunning}
	sessions.On("Get", mock.Anything, "s1").Return(sess, nil)

	_, err := uc.Session(ctx, &entities.Principal{TeamID: "team-2"}, "s1")
	require.ErrorIs(t, err, entities.ErrForbidden)
	_, err = uc.CancelSession(ctx, &entities.Principal{TeamID: "team-2"}, "s1")
	require.ErrorIs(t, err, entities.ErrForbidden)
	sessions.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)

	cancelled := &entities.DebugSession{ID: "s1", TeamID: "team-1", Status: entities.SessionCancelled}
	sessions.On("Cancel", mock.Anything, "s1").Return(cancelled, nil)
	got, err := uc.CancelSession(ctx, &entities.Principal{Admin: true}, "s1")
	require.NoError(t, err)
	require.Equal(t, entities.SessionCancelled, got.Status)
}
