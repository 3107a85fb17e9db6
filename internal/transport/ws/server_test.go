package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hliang02/skyops/internal/agents"
	"github.com/hliang02/skyops/internal/config"
	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/eventbus"
	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/repository"
	"github.com/hliang02/skyops/internal/service"
	skyhttp "github.com/hliang02/skyops/internal/transport/http"
)

const hubProblem = "Thunderstorm ground stop at the hub, multiple flights grounded, need a recovery plan"

func newTestServer(t *testing.T) (*service.Service, *httptest.Server) {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clients := llm.NewClientCache(time.Minute, func(string) llm.LLMClient {
		return llm.NewMockClient()
	})
	cfg := &config.Config{
		ExecutionTimeout: 10 * time.Second,
		PlanTimeout:      time.Second,
		MaxRetries:       1,
		LLMModel:         "test-model",
		TurnLimits:       config.TurnLimits{Coordinator: 8, Specialist: 2},
	}
	bus := eventbus.New(store, time.Minute)
	runner := agents.NewRunner(clients, "test-model")
	svc := service.New(store, bus, clients, runner, nil, cfg)

	ts := httptest.NewServer(skyhttp.NewExternalServer(svc, NewHandler(svc)))
	t.Cleanup(ts.Close)
	return svc, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func startRun(t *testing.T, svc *service.Service) string {
	t.Helper()
	resp, err := svc.StartRun(t.Context(), domain.SolveRequest{
		Problem:           hubProblem,
		WorkflowType:      domain.WorkflowTypeHandoff,
		OrchestrationMode: domain.ModeDeterministic,
	})
	require.NoError(t, err)
	return resp.RunID
}

func TestStreamRunOverWebsocket(t *testing.T) {
	svc, ts := newTestServer(t)
	runID := startRun(t, svc)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/runs/"+runID), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var kinds []domain.EventKind
	for {
		var ev domain.WorkflowEvent
		if err := conn.ReadJSON(&ev); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
				"expected normal closure, got %v", err)
			break
		}
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, domain.KindRunStarted, kinds[0])
	require.Equal(t, domain.KindRunCompleted, kinds[len(kinds)-1])
}

func TestWebsocketUnknownRunRejected(t *testing.T) {
	_, ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/runs/run_missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketResumesFromCursor(t *testing.T) {
	svc, ts := newTestServer(t)
	runID := startRun(t, svc)

	// Wait for the run to finish so the whole log is replayable.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := svc.GetRun(t.Context(), runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/runs/"+runID+"?since=3-0"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var ev domain.WorkflowEvent
	require.NoError(t, conn.ReadJSON(&ev))
	require.EqualValues(t, 4, ev.Sequence)
}
