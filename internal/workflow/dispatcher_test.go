package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// scriptedRunner replays canned responses per agent, recording calls.
type scriptedRunner struct {
	responses map[string][]*AgentResponse
	calls     []string
	err       error
	errOn     string
}

func (r *scriptedRunner) Invoke(ctx context.Context, inv Invocation) (*AgentResponse, error) {
	r.calls = append(r.calls, inv.AgentID)
	if r.err != nil && inv.AgentID == r.errOn {
		return nil, r.err
	}
	if queue := r.responses[inv.AgentID]; len(queue) > 0 {
		resp := queue[0]
		r.responses[inv.AgentID] = queue[1:]
		return resp, nil
	}
	return &AgentResponse{Messages: []Message{
		{AgentID: inv.AgentID, Role: "assistant", Content: fmt.Sprintf("%s findings", inv.AgentID)},
	}}, nil
}

func collect(ch <-chan RawEvent) []RawEvent {
	var events []RawEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func countType(events []RawEvent, typ RawEventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestPipelineRunsEachAgentOnce(t *testing.T) {
	specialists, coordinator := hubProfiles(t)
	topo, err := NewPipeline("test", specialists, coordinator)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	runner := &scriptedRunner{responses: map[string][]*AgentResponse{}}
	d := NewDispatcher(topo, runner, nil)

	events := collect(d.RunStream(context.Background(), "ground stop at hub"))

	if got := countType(events, RawExecutorInvoked); got != len(topo.Order) {
		t.Fatalf("expected %d invocations, got %d", len(topo.Order), got)
	}
	if got := countType(events, RawWorkflowOutput); got != 1 {
		t.Fatalf("expected 1 output event, got %d", got)
	}
	if runner.calls[len(runner.calls)-1] != coordinator.ID {
		t.Fatalf("coordinator must run last, got %s", runner.calls[len(runner.calls)-1])
	}
	for i, id := range topo.Order {
		if runner.calls[i] != id {
			t.Fatalf("call %d = %s, want %s", i, runner.calls[i], id)
		}
	}
}

func TestPipelineFailurePropagates(t *testing.T) {
	specialists, coordinator := hubProfiles(t)
	topo, _ := NewPipeline("test", specialists, coordinator)
	runner := &scriptedRunner{
		responses: map[string][]*AgentResponse{},
		err:       errors.New("provider exploded"),
		errOn:     "crew_recovery",
	}
	d := NewDispatcher(topo, runner, nil)

	events := collect(d.RunStream(context.Background(), "ground stop"))

	if got := countType(events, RawWorkflowFailed); got != 1 {
		t.Fatalf("expected 1 failed event, got %d", got)
	}
	if got := countType(events, RawWorkflowOutput); got != 0 {
		t.Fatalf("expected no output after failure, got %d", got)
	}
}

func TestMeshHonorsHandoffsAndTerminates(t *testing.T) {
	specialists, coordinator := hubProfiles(t)
	topo, _ := NewCoordinatorHub("test", specialists[:2], coordinator, 8, 2, nil)

	coordID := coordinator.ID
	runner := &scriptedRunner{responses: map[string][]*AgentResponse{
		coordID: {
			{Messages: []Message{{AgentID: coordID, Content: "delegating"}}, HandoffTo: specialists[0].ID},
			{Messages: []Message{{AgentID: coordID, Content: "delegating again"}}, HandoffTo: specialists[1].ID},
			{Messages: []Message{{AgentID: coordID, Content: "I recommend option 1 with this implementation timeline"}}},
		},
		specialists[0].ID: {
			{Messages: []Message{{AgentID: specialists[0].ID, Content: "fleet findings"}}, HandoffTo: coordID},
		},
		specialists[1].ID: {
			{Messages: []Message{{AgentID: specialists[1].ID, Content: "crew findings"}}, HandoffTo: coordID},
		},
	}}
	d := NewDispatcher(topo, runner, nil)

	events := collect(d.RunStream(context.Background(), "hub disruption"))

	if got := countType(events, RawWorkflowOutput); got != 1 {
		t.Fatalf("expected terminal output, got %d", got)
	}
	wantCalls := []string{coordID, specialists[0].ID, coordID, specialists[1].ID, coordID}
	if len(runner.calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", runner.calls, wantCalls)
	}
	for i := range wantCalls {
		if runner.calls[i] != wantCalls[i] {
			t.Fatalf("call %d = %s, want %s", i, runner.calls[i], wantCalls[i])
		}
	}
}

func TestMeshDeniesOffGraphHandoff(t *testing.T) {
	specialists, coordinator := hubProfiles(t)
	topo, _ := NewCoordinatorHub("test", specialists[:1], coordinator, 2, 1, nil)

	// Specialist requests a forbidden specialist-to-specialist handoff;
	// control must revert to the coordinator instead.
	runner := &scriptedRunner{responses: map[string][]*AgentResponse{
		coordinator.ID: {
			{Messages: []Message{{AgentID: coordinator.ID, Content: "delegating"}}, HandoffTo: specialists[0].ID},
			{Messages: []Message{{AgentID: coordinator.ID, Content: "recommend plan, implementation timeline attached rank_options"}}},
		},
		specialists[0].ID: {
			{Messages: []Message{{AgentID: specialists[0].ID, Content: "findings"}}, HandoffTo: specialists[1].ID},
		},
	}}
	d := NewDispatcher(topo, runner, nil)

	events := collect(d.RunStream(context.Background(), "hub disruption"))

	denied := false
	for _, ev := range events {
		if ev.Type == RawWorkflowStatus && ev.Reason == "handoff_denied:"+specialists[1].ID {
			denied = true
		}
	}
	if !denied {
		t.Fatal("expected a handoff_denied status event")
	}
	for _, call := range runner.calls {
		if call == specialists[1].ID {
			t.Fatal("forbidden handoff target must not execute")
		}
	}
}

func TestMeshCoordinatorTurnLimitStops(t *testing.T) {
	specialists, coordinator := hubProfiles(t)
	topo, _ := NewCoordinatorHub("test", specialists[:1], coordinator, 1, 1, nil)

	// Coordinator never emits termination language, so the run stops on
	// its turn limit and still yields output.
	runner := &scriptedRunner{responses: map[string][]*AgentResponse{
		coordinator.ID: {
			{Messages: []Message{{AgentID: coordinator.ID, Content: "delegating"}}, HandoffTo: specialists[0].ID},
		},
	}}
	d := NewDispatcher(topo, runner, nil)

	events := collect(d.RunStream(context.Background(), "hub disruption"))

	if got := countType(events, RawWorkflowOutput); got != 1 {
		t.Fatalf("expected output even at turn limit, got %d", got)
	}
	limitHit := false
	for _, ev := range events {
		if ev.Type == RawWorkflowStatus && ev.Reason == "coordinator_turn_limit_reached" {
			limitHit = true
		}
	}
	if !limitHit {
		t.Fatal("expected coordinator_turn_limit_reached status")
	}
}

func TestShouldTerminate(t *testing.T) {
	short := []Message{{Content: "recommend with timeline"}}
	if ShouldTerminate(short) {
		t.Fatal("must not terminate below the conversation floor")
	}

	long := make([]Message, 0, 6)
	for i := 0; i < 5; i++ {
		long = append(long, Message{Content: "analysis"})
	}
	long = append(long, Message{Content: "I recommend option 2; implementation timeline follows"})
	if !ShouldTerminate(long) {
		t.Fatal("expected termination on recommendation + timeline")
	}

	toolSignal := make([]Message, 0, 6)
	for i := 0; i < 5; i++ {
		toolSignal = append(toolSignal, Message{Content: "analysis"})
	}
	toolSignal = append(toolSignal, Message{Content: "ran rank_options across candidates"})
	if !ShouldTerminate(toolSignal) {
		t.Fatal("expected termination on scoring tool signal")
	}
}

func TestTextVariants(t *testing.T) {
	cases := []struct {
		content any
		want    string
	}{
		{"plain", "plain"},
		{[]TextPart{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}}, "a b"},
		{[]any{"x", map[string]any{"text": "y"}, TextPart{Text: "z"}}, "x y z"},
		{nil, ""},
		{42, "42"},
	}
	for _, tc := range cases {
		if got := Text(tc.content); got != tc.want {
			t.Fatalf("Text(%v) = %q, want %q", tc.content, got, tc.want)
		}
	}
}
