package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hliang02/skyops/internal/domain"
)

// EmitFunc receives every normalized event the engine produces. The
// event bus assigns sequences downstream; the engine never sees them.
type EmitFunc func(*domain.WorkflowEvent)

// TraceEmitter produces the rich narrative events consumed by the run
// canvas: plans, decisions, spans, handovers, data-source activity and
// coordinator artifacts.
type TraceEmitter struct {
	runID         string
	traceID       string
	emit          EmitFunc
	spanStack     []string
	currentSpanID string
}

// NewTraceEmitter creates an emitter scoped to one run.
func NewTraceEmitter(runID string, emit EmitFunc) *TraceEmitter {
	return &TraceEmitter{
		runID:   runID,
		traceID: "trace-" + uuid.New().String()[:8],
		emit:    emit,
	}
}

func (t *TraceEmitter) send(kind domain.EventKind, message string, payload map[string]any) {
	if t.emit == nil {
		return
	}
	ev := domain.NewEvent(t.runID, kind, message)
	ev.TraceID = t.traceID
	ev.SpanID = t.currentSpanID
	if p, ok := payload["parentSpanId"].(string); ok {
		ev.ParentSpanID = p
	}
	if id, ok := payload["agentId"].(string); ok && id != "" {
		name := id
		if n, ok := payload["agentName"].(string); ok && n != "" {
			name = n
		}
		ev.Actor = domain.Actor{Kind: "agent", ID: id, Name: name}
		ev.AgentName = name
	} else {
		ev.Actor = domain.Actor{Kind: "orchestrator", ID: "orchestrator", Name: "Orchestrator"}
	}
	if tool, ok := payload["toolName"].(string); ok {
		ev.ToolName = tool
	}
	ev.Payload = payload
	t.emit(ev)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func selectionPayload(agents []domain.AgentSelectionResult) []map[string]any {
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		out = append(out, map[string]any{
			"id": a.AgentID, "name": a.AgentName, "reason": a.Reason,
			"icon": a.Icon, "color": a.Color, "dataSources": a.DataSources,
		})
	}
	return out
}

// Plan announces the selected and excluded agent sets for a problem.
func (t *TraceEmitter) Plan(problem string, selected, excluded []domain.AgentSelectionResult) {
	t.send(domain.KindOrchestratorPlan,
		fmt.Sprintf("Execution plan created with %d agents", len(selected)),
		map[string]any{
			"selectedAgents":      selectionPayload(selected),
			"excludedAgents":      selectionPayload(excluded),
			"problemSummary":      truncate(problem, 200),
			"estimatedAgentCount": len(selected),
		})
}

// Decision records one orchestrator-level decision.
func (t *TraceEmitter) Decision(decisionType, reason string, confidence float64, inputs []string) {
	if inputs == nil {
		inputs = []string{}
	}
	t.send(domain.KindOrchestratorDecision, reason, map[string]any{
		"decisionType":     decisionType,
		"reason":           reason,
		"confidence":       confidence,
		"inputsConsidered": inputs,
	})
}

func (t *TraceEmitter) IncludeAgent(reason string, inputs []string) {
	if len(inputs) == 0 {
		inputs = []string{"problem_analysis"}
	}
	t.Decision("include_agent", reason, 0.95, inputs)
}

func (t *TraceEmitter) ExcludeAgent(reason string, inputs []string) {
	if len(inputs) == 0 {
		inputs = []string{"problem_analysis"}
	}
	t.Decision("exclude_agent", reason, 0.90, inputs)
}

// SpanStarted opens an agent execution span and returns its id.
func (t *TraceEmitter) SpanStarted(agentID, agentName, objective string) string {
	spanID := "span-" + uuid.New().String()[:8]
	parent := t.currentSpanID
	t.spanStack = append(t.spanStack, spanID)
	t.currentSpanID = spanID

	t.send(domain.KindSpanStarted,
		fmt.Sprintf("%s starting: %s", agentName, truncate(objective, 50)),
		map[string]any{
			"spanId": spanID, "parentSpanId": parent,
			"agentId": agentID, "agentName": agentName, "objective": objective,
		})
	return spanID
}

// SpanEnded closes the current span.
func (t *TraceEmitter) SpanEnded(agentID, agentName string, success bool, resultSummary string) {
	spanID := t.currentSpanID
	if n := len(t.spanStack); n > 0 {
		t.spanStack = t.spanStack[:n-1]
		t.currentSpanID = ""
		if n > 1 {
			t.currentSpanID = t.spanStack[n-2]
		}
	}

	status := "completed"
	if !success {
		status = "failed"
	}
	t.send(domain.KindSpanEnded, fmt.Sprintf("%s %s", agentName, status), map[string]any{
		"spanId": spanID, "agentId": agentID, "agentName": agentName,
		"success": success, "resultSummary": resultSummary,
	})
}

// Handover records a control transfer between agents.
func (t *TraceEmitter) Handover(fromAgent, toAgent, reason string) {
	t.send(domain.KindHandover,
		fmt.Sprintf("Handover: %s -> %s", fromAgent, toAgent),
		map[string]any{"fromAgent": fromAgent, "toAgent": toAgent, "reason": reason})
}

func (t *TraceEmitter) AgentObjective(agentID, agentName, objective string) {
	t.send(domain.KindAgentObjective, fmt.Sprintf("%s objective updated", agentName), map[string]any{
		"agentId": agentID, "agentName": agentName, "objective": objective,
	})
}

func (t *TraceEmitter) ToolCalled(agentID, agentName, toolName, toolID, toolInput string) {
	t.send(domain.KindToolCalled, fmt.Sprintf("%s called %s", agentName, toolName), map[string]any{
		"agentId": agentID, "agentName": agentName,
		"toolName": toolName, "toolId": toolID, "toolInput": truncate(toolInput, 220),
	})
}

func (t *TraceEmitter) ToolCompleted(agentID, agentName, toolName, toolID string, latencyMs int64, resultCount int) {
	t.send(domain.KindToolCompleted,
		fmt.Sprintf("%s completed %s in %dms", agentName, toolName, latencyMs),
		map[string]any{
			"agentId": agentID, "agentName": agentName,
			"toolName": toolName, "toolId": toolID,
			"latencyMs": latencyMs, "resultCount": resultCount, "status": "completed",
		})
}

func (t *TraceEmitter) ToolFailed(agentID, agentName, toolName, toolID, errMsg string) {
	t.send(domain.KindToolFailed, fmt.Sprintf("%s failed %s", agentName, toolName), map[string]any{
		"agentId": agentID, "agentName": agentName,
		"toolName": toolName, "toolId": toolID,
		"status": "failed", "error": truncate(errMsg, 220),
	})
}

func (t *TraceEmitter) AgentActivated(a domain.AgentSelectionResult) {
	dataSources := a.DataSources
	if dataSources == nil {
		dataSources = []string{}
	}
	t.send(domain.KindAgentActivated,
		fmt.Sprintf("%s activated: %s", a.AgentName, truncate(a.Reason, 60)),
		map[string]any{
			"agentId": a.AgentID, "agentName": a.AgentName, "reason": a.Reason,
			"dataSources": dataSources, "icon": a.Icon, "color": a.Color,
		})
}

func (t *TraceEmitter) AgentExcluded(a domain.AgentSelectionResult) {
	t.send(domain.KindAgentExcluded,
		fmt.Sprintf("%s excluded: %s", a.AgentName, truncate(a.Reason, 60)),
		map[string]any{"agentId": a.AgentID, "agentName": a.AgentName, "reason": a.Reason})
}

func (t *TraceEmitter) QueryStart(agentID, agentName, sourceType, querySummary, queryID, queryType string) {
	t.send(domain.KindDataSourceQueryStart,
		fmt.Sprintf("%s query started by %s", sourceType, agentName),
		map[string]any{
			"agentId": agentID, "agentName": agentName, "sourceType": sourceType,
			"querySummary":   truncate(querySummary, 200),
			"queryId":        queryID,
			"queryType":      queryType,
			"sourceProvider": SourceProvider(sourceType),
		})
}

func (t *TraceEmitter) QueryComplete(agentID, agentName, sourceType string, resultCount int, latencyMs int64, queryID, querySummary string) {
	if querySummary == "" {
		querySummary = fmt.Sprintf("Retrieved evidence from %s", sourceType)
	}
	t.send(domain.KindDataSourceQueryComplete,
		fmt.Sprintf("%s: %d results in %dms", sourceType, resultCount, latencyMs),
		map[string]any{
			"agentId": agentID, "agentName": agentName, "sourceType": sourceType,
			"resultCount": resultCount, "latencyMs": latencyMs,
			"queryId":        queryID,
			"querySummary":   truncate(querySummary, 200),
			"sourceProvider": SourceProvider(sourceType),
		})
}

func (t *TraceEmitter) AgentEvidence(agentID, agentName, sourceType, summary string, resultCount int, confidence float64) {
	t.send(domain.KindAgentEvidence,
		fmt.Sprintf("%s gathered %d evidence items from %s", agentID, resultCount, sourceType),
		map[string]any{
			"agentId": agentID, "agentName": agentName, "sourceType": sourceType,
			"summary":     truncate(summary, 260),
			"resultCount": resultCount, "confidence": confidence,
			"sourceProvider": SourceProvider(sourceType),
		})
}

func (t *TraceEmitter) AgentRecommendation(agentID, agentName, recommendation string, confidence float64) {
	t.send(domain.KindAgentRecommendation,
		fmt.Sprintf("%s recommendation (confidence: %.0f%%)", agentID, confidence*100),
		map[string]any{
			"agentId": agentID, "agentName": agentName,
			"recommendation": recommendation, "confidence": confidence,
		})
}

// CoordinatorScoring publishes the score matrix across recovery options.
func (t *TraceEmitter) CoordinatorScoring(options []domain.RecoveryOption, criteria []string, scores map[string]map[string]float64) {
	t.send(domain.KindCoordinatorScoring,
		fmt.Sprintf("Scored %d recovery options across %d criteria", len(options), len(criteria)),
		map[string]any{"options": options, "criteria": criteria, "scores": scores})
}

// CoordinatorPlan publishes the selected option and implementation timeline.
func (t *TraceEmitter) CoordinatorPlan(selectedOptionID string, timeline []domain.TimelineEntry, summary string) {
	t.send(domain.KindCoordinatorPlan, truncate(summary, 100), map[string]any{
		"selectedOptionId": selectedOptionID,
		"timeline":         timeline, "summary": summary,
	})
}

// RecoveryOption publishes one ranked recovery option.
func (t *TraceEmitter) RecoveryOption(opt domain.RecoveryOption) {
	t.send(domain.KindRecoveryOption,
		fmt.Sprintf("Option #%d: %s", opt.Rank, truncate(opt.Description, 60)),
		map[string]any{
			"optionId": opt.OptionID, "description": opt.Description,
			"scores": opt.Scores, "rank": opt.Rank,
		})
}
