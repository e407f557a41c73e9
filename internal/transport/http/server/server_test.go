package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agent-runtime/config"
	"agent-runtime/internal/debugger"
	api "agent-runtime/internal/oapi"
	"agent-runtime/internal/ratelimit"
	"agent-runtime/internal/repository/memory"
	"agent-runtime/internal/runtime"
	"agent-runtime/internal/sessionstore"
	"agent-runtime/internal/upload"
	"agent-runtime/internal/usecase"
	"agent-runtime/internal/usecase/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminKey = "admin-key-0123456789"

type testServer struct {
	app      *fiber.App
	sessions *debugger.Manager
	teamKey  string
	otherKey string
}

// stallingRunner emits one token and then waits for cancellation.
type stallingRunner struct{}

func (stallingRunner) Run(ctx context.Context, _ runtime.Request, emit runtime.Emit) (runtime.Result, error) {
	if emit != nil {
		if err := emit("thinking"); err != nil {
			return runtime.Result{}, err
		}
	}
	<-ctx.Done()
	return runtime.Result{}, ctx.Err()
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	return newTestServerWithRunner(t, limiter, runtime.Echo{})
}

func newTestServerWithRunner(t *testing.T, limiter *ratelimit.Limiter, runner runtime.Runner) *testServer {
	t.Helper()
	log := zap.NewNop().Sugar()
	ctx := context.Background()

	repo := memory.New(log)
	uploads, err := upload.New(t.TempDir(), log)
	require.NoError(t, err)
	mgr := debugger.New(sessionstore.NewMemory(), runner, repo, uploads, debugger.Config{
		MaxPerTeam: 2,
		Retention:  time.Hour,
		RunTimeout: 5 * time.Second,
	}, log)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	uc := usecase.New(log, ctx, repo, 5*time.Second, domain.Deps{
		Runner:       runner,
		Sessions:     mgr,
		HistoryLimit: 20,
		RunTimeout:   5 * time.Second,
		AdminKey:     adminKey,
	})
	app := New(Deps{
		Log:          log,
		Usecase:      uc,
		Uploads:      uploads,
		Limiter:      limiter,
		HTTP:         config.HTTPConfig{BodyLimit: 4 << 20},
		Upload:       config.UploadConfig{MaxFiles: 2, MaxFileSize: 1024},
		PingInterval: time.Second,
	})

	s := &testServer{app: app, sessions: mgr}
	s.teamKey = s.setupTeam(t, "t1")
	s.otherKey = s.setupTeam(t, "t2")
	return s
}

func (s *testServer) do(t *testing.T, method, path, key string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if key != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) setupTeam(t *testing.T, id string) string {
	t.Helper()
	resp, _ := s.do(t, http.MethodPost, "/api/teams", adminKey, api.Team{TeamId: id, Name: id})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/api/teams/"+id+"/keys", adminKey, api.IssueKeyRequest{Name: "ci"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var key api.IssuedKey
	require.NoError(t, json.Unmarshal(body, &key))
	require.Equal(t, id, key.TeamId)
	return key.Key
}

func (s *testServer) createAgent(t *testing.T, id string, emb api.Embodiments) {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/agents", s.teamKey, api.AgentRequest{
		AgentId:     &id,
		Name:        "Helper",
		Draft:       api.Definition{Model: "echo", SystemPrompt: "be kind"},
		Embodiments: emb,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
}

func decodeError(t *testing.T, body []byte) api.ErrorResponse {
	t.Helper()
	var e api.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	resp, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "agentrt_http_requests_total")
}

func TestTeamsRequireAdmin(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.do(t, http.MethodGet, "/api/teams/t1", s.teamKey, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, api.FORBIDDEN, decodeError(t, body).Error.Code)

	resp, body = s.do(t, http.MethodGet, "/api/teams/t1", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, api.UNAUTHORIZED, decodeError(t, body).Error.Code)

	resp, body = s.do(t, http.MethodPost, "/api/teams", adminKey, api.Team{TeamId: "t1", Name: "dup"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, api.ALREADYEXISTS, decodeError(t, body).Error.Code)
}

func TestIssuedKeysStayWithTheirTeam(t *testing.T) {
	s := newTestServer(t, nil)
	thirdKey := s.setupTeam(t, "t3")

	for key, team := range map[string]string{s.teamKey: "t1", s.otherKey: "t2", thirdKey: "t3"} {
		resp, body := s.do(t, http.MethodGet, "/api/usage", key, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		var summary struct {
			TeamID string `json:"team_id"`
		}
		require.NoError(t, json.Unmarshal(body, &summary))
		require.Equal(t, team, summary.TeamID)
	}

	resp, body := s.do(t, http.MethodGet, "/api/teams/t1", adminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var team api.Team
	require.NoError(t, json.Unmarshal(body, &team))
	require.Equal(t, "t1", team.TeamId)
}

func TestDeactivatedTeamLosesAccess(t *testing.T) {
	s := newTestServer(t, nil)
	resp, _ := s.do(t, http.MethodPost, "/api/teams/t2/deactivate", adminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/agents", s.otherKey, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAgentLifecycleAndChat(t *testing.T) {
	s := newTestServer(t, nil)
	s.createAgent(t, "helper", api.Embodiments{Chat: true})

	resp, body := s.do(t, http.MethodPost, "/emb/helper/chat", s.teamKey, api.ChatRequest{Message: "hello"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, api.AGENTNOTDEPLOYED, decodeError(t, body).Error.Code)

	resp, body = s.do(t, http.MethodPost, "/api/agents/helper/deploy", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var agent api.Agent
	require.NoError(t, json.Unmarshal(body, &agent))
	require.Equal(t, 1, agent.Version)
	require.NotNil(t, agent.Deployed)

	resp, body = s.do(t, http.MethodPost, "/emb/helper/chat", s.teamKey, api.ChatRequest{Message: "hello world"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var turn api.ChatResponse
	require.NoError(t, json.Unmarshal(body, &turn))
	require.Equal(t, "hello world", turn.Message.Content)
	require.NotEmpty(t, turn.ConversationId)

	conv := turn.ConversationId
	resp, _ = s.do(t, http.MethodPost, "/emb/helper/chat", s.teamKey, api.ChatRequest{Message: "again", ConversationId: &conv})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/conversations/"+conv+"/messages", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs struct {
		Messages []api.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs.Messages, 4)

	resp, _ = s.do(t, http.MethodGet, "/api/conversations/"+conv+"/messages", s.otherKey, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/agents/helper", s.otherKey, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/emb/helper/chat", "", api.ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatStream(t *testing.T) {
	s := newTestServer(t, nil)
	s.createAgent(t, "helper", api.Embodiments{Chat: true, Public: true})
	resp, _ := s.do(t, http.MethodPost, "/api/agents/helper/deploy", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stream := true
	resp, body := s.do(t, http.MethodPost, "/emb/helper/chat", "", api.ChatRequest{Message: "one two", Stream: &stream})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))

	text := string(body)
	require.Contains(t, text, "event: token\ndata: {\"delta\":\"one\"}\n\n")
	require.Contains(t, text, "event: token\ndata: {\"delta\":\" two\"}\n\n")
	require.Contains(t, text, "event: done\n")
	require.Less(t, strings.Index(text, "event: token"), strings.Index(text, "event: done"))
}

func TestChatWithAttachment(t *testing.T) {
	s := newTestServer(t, nil)
	s.createAgent(t, "helper", api.Embodiments{Chat: true})
	resp, _ := s.do(t, http.MethodPost, "/api/agents/helper/deploy", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("message", "summarize"))
	fw, err := w.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("milk eggs"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/emb/helper/chat", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.teamKey)
	resp, body := s.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var turn api.ChatResponse
	require.NoError(t, json.Unmarshal(body, &turn))
	require.True(t, strings.HasPrefix(turn.Message.Content, "summarize"))
	require.Contains(t, turn.Message.Content, "notes.txt")
}

func TestOpenAICompatible(t *testing.T) {
	s := newTestServer(t, nil)
	s.createAgent(t, "helper", api.Embodiments{Openai: true})
	resp, _ := s.do(t, http.MethodPost, "/api/agents/helper/deploy", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reqBody := map[string]any{
		"model":    "ignored",
		"messages": []map[string]any{{"role": "user", "content": "hi there"}},
	}
	resp, body := s.do(t, http.MethodPost, "/emb/helper/v1/chat/completions", s.teamKey, reqBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var completion api.ChatCompletion
	require.NoError(t, json.Unmarshal(body, &completion))
	require.Equal(t, "chat.completion", completion.Object)
	require.Equal(t, "helper", completion.Model)
	require.Equal(t, "hi there", string(completion.Choices[0].Message.Content))
	require.Equal(t, "stop", completion.Choices[0].FinishReason)
	require.Equal(t, int64(2), completion.Usage.CompletionTokens)

	reqBody["stream"] = true
	resp, body = s.do(t, http.MethodPost, "/emb/helper/v1/chat/completions", s.teamKey, reqBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	require.Contains(t, text, `"object":"chat.completion.chunk"`)
	require.Contains(t, text, `"content":"hi"`)
	require.True(t, strings.HasSuffix(text, "data: [DONE]\n\n"))

	resp, body = s.do(t, http.MethodGet, "/emb/helper/v1/models", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var models api.ModelList
	require.NoError(t, json.Unmarshal(body, &models))
	require.Equal(t, "list", models.Object)
	require.Equal(t, "helper", models.Data[0].Id)

	resp, body = s.do(t, http.MethodPost, "/emb/helper/v1/chat/completions", "", reqBody)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var oerr api.OpenAIError
	require.NoError(t, json.Unmarshal(body, &oerr))
	require.Equal(t, "authentication_error", oerr.Error.Type)

	resp, body = s.do(t, http.MethodPost, "/emb/helper/chat", s.teamKey, api.ChatRequest{Message: "x"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, api.EMBODIMENTDISABLED, decodeError(t, body).Error.Code)
}

func TestDebugSessionFlow(t *testing.T) {
	s := newTestServer(t, nil)
	s.createAgent(t, "helper", api.Embodiments{})

	resp, body := s.do(t, http.MethodPost, "/api/debug/sessions?wait=true", s.teamKey,
		map[string]string{"agent_id": "helper", "input": "debug me"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sess api.DebugSession
	require.NoError(t, json.Unmarshal(body, &sess))
	require.Equal(t, "completed", sess.Status)
	require.Equal(t, "debug me", sess.Output)

	resp, body = s.do(t, http.MethodGet, "/api/debug/sessions/"+sess.SessionId+"/events", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	require.True(t, strings.HasPrefix(text, "id: 1\nevent: session.started\n"), text)
	require.Contains(t, text, "event: token\n")
	require.Contains(t, text, "event: session.completed\n")

	resp, body = s.do(t, http.MethodGet, "/api/debug/sessions/"+sess.SessionId+"/events", s.teamKey, nil, "Last-Event-ID", "1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(string(body), "id: 2\n"), string(body))

	resp, body = s.do(t, http.MethodDelete, "/api/debug/sessions/"+sess.SessionId, s.teamKey, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, api.SESSIONFINISHED, decodeError(t, body).Error.Code)

	resp, _ = s.do(t, http.MethodGet, "/api/debug/sessions/"+sess.SessionId, s.otherKey, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/debug/sessions/"+sess.SessionId, s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &sess))
	require.Equal(t, "completed", sess.Status)
}

func TestDebugSessionAcceptedAndStreamed(t *testing.T) {
	s := newTestServer(t, nil)
	s.createAgent(t, "helper", api.Embodiments{})

	resp, body := s.do(t, http.MethodPost, "/api/debug/sessions", s.teamKey,
		map[string]string{"input": "async"}, "X-AGENT-ID", "helper")
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	resp, body = s.do(t, http.MethodPost, "/api/debug/sessions", s.teamKey,
		map[string]string{"agent_id": "helper", "input": "live run"}, fiber.HeaderAccept, "text/event-stream")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	require.Contains(t, text, "event: session.started")
	require.Contains(t, text, "event: session.completed")
}

func TestUsage(t *testing.T) {
	s := newTestServer(t, nil)
	s.createAgent(t, "helper", api.Embodiments{Chat: true})
	resp, _ := s.do(t, http.MethodPost, "/api/agents/helper/deploy", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/emb/helper/chat", s.teamKey, api.ChatRequest{Message: "count me"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/api/usage", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var summary struct {
		TeamID string `json:"team_id"`
		Totals struct {
			Runs int64 `json:"runs"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(body, &summary))
	require.Equal(t, "t1", summary.TeamID)
	require.Equal(t, int64(1), summary.Totals.Runs)

	resp, _ = s.do(t, http.MethodGet, "/api/usage?team_id=t2", s.teamKey, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/usage?from=yesterday", s.teamKey, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/agents/helper/usage", s.teamKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimited(t *testing.T) {
	s := newTestServer(t, ratelimit.New(0.001, 2, time.Minute))

	for i := 0; i < 2; i++ {
		resp, _ := s.do(t, http.MethodGet, "/api/agents", s.teamKey, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := s.do(t, http.MethodGet, "/api/agents", s.teamKey, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, api.RATELIMITED, decodeError(t, body).Error.Code)
	require.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	resp, body := s.do(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, api.NOTFOUND, decodeError(t, body).Error.Code)
}

func TestShutdownEndsLiveSessionStreams(t *testing.T) {
	s := newTestServerWithRunner(t, nil, stallingRunner{})
	s.createAgent(t, "helper", api.Embodiments{})

	resp, body := s.do(t, http.MethodPost, "/api/debug/sessions", s.teamKey,
		map[string]string{"agent_id": "helper", "input": "hang"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var sess api.DebugSession
	require.NoError(t, json.Unmarshal(body, &sess))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.app.Listener(ln) }()

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/api/debug/sessions/"+sess.SessionId+"/events", nil)
	require.NoError(t, err)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.teamKey)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)

	read := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(stream.Body)
		read <- string(data)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, Shutdown(ctx, s.app, s.sessions))
	require.Less(t, time.Since(start), 3*time.Second)

	select {
	case text := <-read:
		require.Contains(t, text, "event: session.started")
		require.Contains(t, text, "event: session.cancelled")
	case <-time.After(3 * time.Second):
		t.Fatal("event stream did not end")
	}
}
