package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hliang02/skyops/internal/agents"
	"github.com/hliang02/skyops/internal/config"
	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/eventbus"
	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/repository"
	"github.com/hliang02/skyops/internal/workflow"
)

const hubProblem = "Thunderstorm ground stop at the hub, multiple flights grounded, need a recovery plan"

func testConfig() *config.Config {
	return &config.Config{
		ExecutionTimeout: 10 * time.Second,
		PlanTimeout:      time.Second,
		MaxRetries:       1,
		LLMModel:         "test-model",
		TurnLimits:       config.TurnLimits{Coordinator: 8, Specialist: 2},
	}
}

func newTestService(t *testing.T, runner workflow.AgentRunner) (*Service, *repository.SQLiteStore) {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clients := llm.NewClientCache(time.Minute, func(string) llm.LLMClient {
		return llm.NewMockClient()
	})
	bus := eventbus.New(store, time.Minute)
	if runner == nil {
		runner = agents.NewRunner(clients, "test-model")
	}
	return New(store, bus, clients, runner, nil, testConfig()), store
}

func waitForStatus(t *testing.T, svc *Service, runID string, want domain.RunStatus) *domain.Run {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := svc.GetRun(context.Background(), runID)
		require.NoError(t, err)
		if run.Status == want {
			return run
		}
		if run.Status.Terminal() {
			t.Fatalf("run reached %s, want %s", run.Status, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run never reached %s", want)
	return nil
}

func TestStartRunCompletesAndPersists(t *testing.T) {
	svc, _ := newTestService(t, nil)

	resp, err := svc.StartRun(context.Background(), domain.SolveRequest{
		Problem:           hubProblem,
		WorkflowType:      domain.WorkflowTypeHandoff,
		OrchestrationMode: domain.ModeDeterministic,
	})
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusPending, resp.Status)
	require.Equal(t, "hub_disruption", resp.Scenario)
	require.NotEmpty(t, resp.Agents)

	ch, err := svc.Bus().Subscribe(context.Background(), resp.RunID, 0)
	require.NoError(t, err)
	var sawCompleted bool
	for ev := range ch {
		if ev.Kind == domain.KindRunCompleted {
			sawCompleted = true
		}
	}
	require.True(t, sawCompleted, "stream must end with run_completed")

	run := waitForStatus(t, svc, resp.RunID, domain.RunStatusCompleted)
	require.Equal(t, 100.0, run.ProgressPct)
	require.Len(t, run.Stages, len(domain.StageOrder))
	for _, st := range run.Stages {
		require.Equal(t, domain.StageStatusSucceeded, st.Status, "stage %s", st.StageID)
	}
	require.Greater(t, run.DecisionCount, 0)
	require.Greater(t, run.EvidenceCount, 0)
}

func TestStartRunValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.StartRun(context.Background(), domain.SolveRequest{Problem: "   "})
	require.Error(t, err)

	_, err = svc.StartRun(context.Background(), domain.SolveRequest{
		Problem:      hubProblem,
		WorkflowType: "circular",
	})
	require.Error(t, err)

	_, err = svc.StartRun(context.Background(), domain.SolveRequest{
		Problem:           hubProblem,
		WorkflowType:      domain.WorkflowTypeHandoff,
		OrchestrationMode: "psychic",
	})
	require.Error(t, err)
}

type stuckRunner struct{}

func (stuckRunner) Invoke(ctx context.Context, inv workflow.Invocation) (*workflow.AgentResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCancelRunMarksCancelled(t *testing.T) {
	svc, _ := newTestService(t, stuckRunner{})

	resp, err := svc.StartRun(context.Background(), domain.SolveRequest{
		Problem:           hubProblem,
		WorkflowType:      domain.WorkflowTypeHandoff,
		OrchestrationMode: domain.ModeDeterministic,
	})
	require.NoError(t, err)

	waitForStatus(t, svc, resp.RunID, domain.RunStatusRunning)
	require.NoError(t, svc.CancelRun(context.Background(), resp.RunID))

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := svc.GetRun(context.Background(), resp.RunID)
		require.NoError(t, err)
		if run.Status == domain.RunStatusCancelled {
			// Cancelling again is a no-op.
			require.NoError(t, svc.CancelRun(context.Background(), resp.RunID))
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("run never reached cancelled")
}

func TestCancelUnknownRun(t *testing.T) {
	svc, _ := newTestService(t, nil)
	err := svc.CancelRun(context.Background(), "run_missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWorkflowCatalog(t *testing.T) {
	svc, _ := newTestService(t, nil)
	catalog := svc.Workflows()
	require.Len(t, catalog, 2)
	require.Equal(t, domain.WorkflowTypeHandoff, catalog[1].Type)
	require.Contains(t, catalog[1].Modes, domain.ModeMesh)
}
