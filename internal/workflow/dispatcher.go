package workflow

import (
	"context"
	"log"
	"strings"

	"github.com/hliang02/skyops/policy"
)

// RawEventType tags the low-level callbacks the dispatcher emits.
type RawEventType string

const (
	RawWorkflowStarted   RawEventType = "workflow_started"
	RawExecutorInvoked   RawEventType = "executor_invoked"
	RawExecutorCompleted RawEventType = "executor_completed"
	RawAgentDelta        RawEventType = "agent_run_update"
	RawWorkflowStatus    RawEventType = "workflow_status"
	RawWorkflowOutput    RawEventType = "workflow_output"
	RawWorkflowFailed    RawEventType = "workflow_failed"
)

// RawEvent is one low-level callback from the execution substrate. The
// engine's normalization layer translates these into the canonical
// event vocabulary.
type RawEvent struct {
	Type     RawEventType
	AgentID  string
	Delta    string
	Response *AgentResponse
	Output   []Message
	Reason   string
	Err      error
}

// minConversationLen is the floor before termination signals are
// considered, so a short initial exchange never terminates the mesh.
const minConversationLen = 6

// PolicyChecker validates proposed handoffs.
type PolicyChecker interface {
	Evaluate(ctx context.Context, input policy.HandoffInput) (string, error)
}

// Dispatcher interprets a topology against an agent runner, streaming
// raw events as execution proceeds.
type Dispatcher struct {
	topo   *Topology
	runner AgentRunner
	policy PolicyChecker // may be nil
}

// NewDispatcher creates a dispatcher for one topology.
func NewDispatcher(topo *Topology, runner AgentRunner, checker PolicyChecker) *Dispatcher {
	return &Dispatcher{topo: topo, runner: runner, policy: checker}
}

// RunStream executes the topology, returning the raw event channel. The
// channel closes when execution finishes, fails, or ctx is cancelled.
func (d *Dispatcher) RunStream(ctx context.Context, problem string) <-chan RawEvent {
	out := make(chan RawEvent, 64)
	go func() {
		defer close(out)
		if d.topo.Kind == KindMesh {
			d.runMesh(ctx, problem, out)
			return
		}
		d.runPipeline(ctx, problem, out)
	}()
	return out
}

// emit delivers an event unless the consumer has gone away.
func emit(ctx context.Context, out chan<- RawEvent, ev RawEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) invoke(ctx context.Context, out chan<- RawEvent, agentID, problem string, transcript []Message) (*AgentResponse, error) {
	return d.runner.Invoke(ctx, Invocation{
		AgentID:    agentID,
		Problem:    problem,
		Transcript: transcript,
		OnDelta: func(text string) {
			emit(ctx, out, RawEvent{Type: RawAgentDelta, AgentID: agentID, Delta: text})
		},
	})
}

func (d *Dispatcher) runPipeline(ctx context.Context, problem string, out chan<- RawEvent) {
	if !emit(ctx, out, RawEvent{Type: RawWorkflowStarted}) {
		return
	}
	conversation := []Message{{AgentID: "user", Role: "user", Content: problem}}

	for _, agentID := range d.topo.Order {
		if !emit(ctx, out, RawEvent{Type: RawExecutorInvoked, AgentID: agentID}) {
			return
		}
		resp, err := d.invoke(ctx, out, agentID, problem, conversation)
		if err != nil {
			emit(ctx, out, RawEvent{Type: RawWorkflowFailed, AgentID: agentID, Err: err})
			return
		}
		conversation = append(conversation, resp.Messages...)
		if !emit(ctx, out, RawEvent{Type: RawExecutorCompleted, AgentID: agentID, Response: resp}) {
			return
		}
	}
	emit(ctx, out, RawEvent{Type: RawWorkflowOutput, Output: conversation})
}

func (d *Dispatcher) runMesh(ctx context.Context, problem string, out chan<- RawEvent) {
	if !emit(ctx, out, RawEvent{Type: RawWorkflowStarted}) {
		return
	}
	conversation := []Message{{AgentID: "user", Role: "user", Content: problem}}
	counts := make(map[string]int, len(d.topo.Participants))
	current := d.topo.StartID

	for {
		participant := d.topo.Participants[current]
		if counts[current] >= participant.TurnLimit {
			if current == d.topo.CoordinatorID {
				emit(ctx, out, RawEvent{Type: RawWorkflowStatus, AgentID: current, Reason: "coordinator_turn_limit_reached"})
				break
			}
			// Exhausted specialist: control reverts to the hub.
			current = d.topo.CoordinatorID
			continue
		}

		if !emit(ctx, out, RawEvent{Type: RawExecutorInvoked, AgentID: current}) {
			return
		}
		counts[current]++

		resp, err := d.invoke(ctx, out, current, problem, conversation)
		if err != nil {
			emit(ctx, out, RawEvent{Type: RawWorkflowFailed, AgentID: current, Err: err})
			return
		}
		conversation = append(conversation, resp.Messages...)
		if !emit(ctx, out, RawEvent{Type: RawExecutorCompleted, AgentID: current, Response: resp}) {
			return
		}

		if ShouldTerminate(conversation) {
			break
		}

		next, ok := d.nextAgent(ctx, out, current, resp, counts)
		if !ok {
			break
		}
		current = next
	}
	emit(ctx, out, RawEvent{Type: RawWorkflowOutput, Output: conversation})
}

// nextAgent resolves where control goes after one turn. A requested
// handoff is honored only if the adjacency graph and the policy engine
// both allow it; otherwise control reverts to the coordinator, or to
// the next unheard specialist when the coordinator itself finished.
func (d *Dispatcher) nextAgent(ctx context.Context, out chan<- RawEvent, current string, resp *AgentResponse, counts map[string]int) (string, bool) {
	if want := resp.HandoffTo; want != "" {
		if _, known := d.topo.Participants[want]; known && d.topo.CanHandoff(current, want) && d.policyAllows(ctx, current, want, counts) {
			emit(ctx, out, RawEvent{Type: RawWorkflowStatus, AgentID: current, Reason: "handoff:" + want})
			return want, true
		}
		emit(ctx, out, RawEvent{Type: RawWorkflowStatus, AgentID: current, Reason: "handoff_denied:" + want})
	}

	if current != d.topo.CoordinatorID {
		return d.topo.CoordinatorID, true
	}
	for _, id := range d.topo.SpecialistIDs() {
		if counts[id] == 0 {
			return id, true
		}
	}
	return "", false
}

func (d *Dispatcher) policyAllows(ctx context.Context, from, to string, counts map[string]int) bool {
	if d.policy == nil {
		return true
	}
	target := d.topo.Participants[to]
	decision, err := d.policy.Evaluate(ctx, policy.HandoffInput{
		From:             from,
		FromCategory:     string(d.topo.Participants[from].Profile.Category),
		To:               to,
		ToCategory:       string(target.Profile.Category),
		ToExecutionCount: counts[to],
		ToTurnLimit:      target.TurnLimit,
	})
	if err != nil {
		log.Printf("WARN: handoff policy evaluation failed: %v", err)
		return true
	}
	return decision == "allow"
}

// ShouldTerminate inspects the conversation for completion signals:
// recommendation plus timeline/implementation language, or evidence
// that scoring/ranking/plan tools ran, over a minimum length floor.
func ShouldTerminate(conversation []Message) bool {
	if len(conversation) < minConversationLen {
		return false
	}
	start := len(conversation) - 8
	if start < 0 {
		start = 0
	}
	var sb strings.Builder
	for _, m := range conversation[start:] {
		sb.WriteString(Text(m.Content))
		sb.WriteString(" ")
	}
	recent := strings.ToLower(sb.String())

	hasRecommendation := strings.Contains(recent, "recommend")
	hasTimeline := strings.Contains(recent, "timeline") || strings.Contains(recent, "implementation")
	hasFinalToolSignal := strings.Contains(recent, "generate_plan") ||
		strings.Contains(recent, "rank_options") ||
		strings.Contains(recent, "score_recovery_option")

	return (hasRecommendation && hasTimeline) || hasFinalToolSignal
}
