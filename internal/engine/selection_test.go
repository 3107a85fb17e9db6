package engine

import (
	"context"
	"testing"
	"time"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/registry"
	"github.com/hliang02/skyops/internal/workflow"
)

// scriptedPlanClient returns a fixed completion for the planning call.
type scriptedPlanClient struct {
	content string
}

func (c scriptedPlanClient) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return &llm.ChatCompletionResponse{
		Choices: []llm.Choice{{Message: &llm.ChatMessage{Role: "assistant", Content: c.content}}},
	}, nil
}

func (c scriptedPlanClient) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.Usage, error) {
	return &llm.Usage{}, nil
}

func newSelectionEngine(sink *eventSink, planContent string) *Engine {
	e := New(Options{
		RunID:             "run_sel01",
		WorkflowType:      domain.WorkflowTypeHandoff,
		OrchestrationMode: domain.ModeLLMDirected,
		PlanTimeout:       time.Second,
		PlannerModel:      "test-model",
		Emit:              sink.emit,
		Runner:            &queueRunner{responses: map[string][]*workflow.AgentResponse{}},
		Clients: llm.NewClientCache(time.Minute, func(string) llm.LLMClient {
			return scriptedPlanClient{content: planContent}
		}),
	})
	e.trace = NewTraceEmitter(e.runID, sink.emit)
	e.scenario = registry.DetectScenario(hubProblem)
	e.selected, e.excluded = registry.SelectAgentsForProblem(hubProblem)
	return e
}

func TestLLMSelectionReordersAndExcludes(t *testing.T) {
	sink := &eventSink{}
	plan := "```json\n" + `{
  "selectedAgentIds": ["crew_recovery", "fleet_recovery", "recovery_coordinator"],
  "executionOrder": ["recovery_coordinator", "crew_recovery", "fleet_recovery"],
  "excludedAgentIds": ["weather_safety"],
  "coordinatorAgentId": "recovery_coordinator",
  "confidence": 0.92,
  "reasoning": "Crew and fleet dominate this disruption.",
  "agentReasons": {"crew_recovery": "Crew connections at risk."}
}` + "\n```"
	e := newSelectionEngine(sink, plan)

	e.applyLLMDirectedSelection(context.Background(), hubProblem)

	ids := make([]string, 0, len(e.selected))
	for _, a := range e.selected {
		ids = append(ids, a.AgentID)
	}
	want := []string{"crew_recovery", "fleet_recovery", "recovery_coordinator"}
	if len(ids) != len(want) {
		t.Fatalf("selected = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("selected[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
	if e.coordinatorID != "recovery_coordinator" {
		t.Fatalf("coordinator = %s", e.coordinatorID)
	}
	if e.selected[0].Reason != "LLM-selected for this query. Crew connections at risk." {
		t.Fatalf("reason = %q", e.selected[0].Reason)
	}

	for _, a := range e.excluded {
		if a.AgentID == "weather_safety" && a.Reason != "LLM-excluded for this query." {
			t.Fatalf("weather_safety reason = %q", a.Reason)
		}
		if a.Included {
			t.Fatalf("excluded agent %s still marked included", a.AgentID)
		}
	}

	decisions := sink.byKind(domain.KindOrchestratorDecision)
	found := false
	for _, ev := range decisions {
		if ev.Payload["decisionType"] == "llm_agent_selection" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an llm_agent_selection decision event")
	}
}

func TestLLMSelectionDropsUnknownIDsAndForcesCoordinatorLast(t *testing.T) {
	sink := &eventSink{}
	plan := `{"selectedAgentIds": ["ghost_agent", "recovery_coordinator", "fleet_recovery"],
  "executionOrder": ["recovery_coordinator", "fleet_recovery"],
  "coordinatorAgentId": "fleet_recovery",
  "confidence": 0.7, "reasoning": "test"}`
	e := newSelectionEngine(sink, plan)

	e.applyLLMDirectedSelection(context.Background(), hubProblem)

	for _, a := range e.selected {
		if a.AgentID == "ghost_agent" {
			t.Fatal("unknown agent id must be dropped")
		}
	}
	// fleet_recovery is not a coordinator, so the scenario default wins
	// and must still run last.
	last := e.selected[len(e.selected)-1]
	if last.AgentID != "recovery_coordinator" {
		t.Fatalf("coordinator must be last, got %s", last.AgentID)
	}
	if e.coordinatorID != "recovery_coordinator" {
		t.Fatalf("coordinator = %s", e.coordinatorID)
	}
}

func TestLLMSelectionFailureKeepsBaseline(t *testing.T) {
	sink := &eventSink{}
	e := newSelectionEngine(sink, "I cannot answer in JSON today.")
	baseline := len(e.selected)

	e.applyLLMDirectedSelection(context.Background(), hubProblem)

	if len(e.selected) != baseline {
		t.Fatalf("baseline selection must survive parse failure, got %d agents", len(e.selected))
	}
	for _, a := range e.selected {
		if !a.Included {
			t.Fatal("baseline inclusion flags must be untouched")
		}
	}
}
