package engine

import (
	"fmt"
	"log"
	"strings"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/workflow"
)

// processRawEvent normalizes one dispatcher callback into canonical
// events. It returns errLoopCapped for a graceful invocation-cap stop
// and a hard error when the run must fail.
func (e *Engine) processRawEvent(ev workflow.RawEvent) error {
	switch ev.Type {
	case workflow.RawWorkflowStarted:
		e.emitEvent(domain.KindWorkflowStatus, "workflow started", map[string]any{
			"status": "started",
		})
		e.emitProgress("workflow_started")
		return nil

	case workflow.RawExecutorInvoked:
		return e.onExecutorInvoked(ev.AgentID)

	case workflow.RawExecutorCompleted:
		e.onExecutorCompleted(ev.AgentID, ev.Response)
		return nil

	case workflow.RawAgentDelta:
		e.onAgentDelta(ev.AgentID)
		return nil

	case workflow.RawWorkflowStatus:
		e.emitEvent(domain.KindWorkflowStatus, ev.Reason, map[string]any{
			"status":        "status_update",
			"workflowState": ev.Reason,
		})
		return nil

	case workflow.RawWorkflowOutput:
		e.emitEvent(domain.KindWorkflowOutput, "workflow produced output", map[string]any{
			"has_output": len(ev.Output) > 0,
		})
		e.emitProgress("workflow_output")
		return nil

	case workflow.RawWorkflowFailed:
		e.onWorkflowFailed(ev)
		if ev.Err != nil {
			return fmt.Errorf("workflow failed at %s: %w", ev.AgentID, ev.Err)
		}
		return fmt.Errorf("workflow failed at %s", ev.AgentID)
	}
	return nil
}

func (e *Engine) agentName(agentID string) string {
	if profile, ok := e.profiles[agentID]; ok {
		return profile.AgentName
	}
	return agentID
}

func (e *Engine) onExecutorInvoked(executorID string) error {
	if executorID == "" {
		executorID = "unknown"
	}
	e.invocationsTotal++
	agentName := e.agentName(executorID)
	executionCount := e.executionCounts[executorID] + 1
	e.executionCounts[executorID] = executionCount

	objective := "Analyze disruption state and produce evidence-backed findings"
	profile, known := e.profiles[executorID]
	if known {
		sources := "domain tools"
		if len(profile.DataSources) > 0 {
			sources = joinComma(profile.DataSources)
		}
		objective = fmt.Sprintf("Analyze %s using %s", scenarioWords(e.scenario), sources)
	}

	if e.maxInvocations > 0 && e.invocationsTotal > e.maxInvocations {
		return e.onInvocationCapBreached()
	}

	e.agentStartedAt[executorID] = e.now().UTC()
	e.activeIDs[executorID] = true
	if e.agentProgressPct[executorID] < 5.0 {
		e.agentProgressPct[executorID] = 5.0
	}

	e.emitEvent(domain.KindExecutorInvoked, fmt.Sprintf("%s invoked", agentName), map[string]any{
		"executor_id":    executorID,
		"executor_name":  agentName,
		"agentId":        executorID,
		"agentName":      agentName,
		"executionCount": executionCount,
	})
	e.emitEvent(domain.KindAgentObjective, fmt.Sprintf("%s objective set", agentName), map[string]any{
		"agentId":         executorID,
		"agentName":       agentName,
		"objective":       objective,
		"currentStep":     "starting_analysis",
		"percentComplete": e.agentProgressPct[executorID],
		"executionCount":  executionCount,
	})

	if e.lastExecutorID != "" && e.lastExecutorID != executorID {
		e.trace.Handover(e.lastExecutorID, executorID,
			fmt.Sprintf("Coordinator delegated next analysis step in %s", e.scenario))
	}
	e.trace.SpanStarted(executorID, agentName, objective)
	e.trace.AgentObjective(executorID, agentName, objective)
	e.emitQueryStarts(executorID, objective)
	e.lastExecutorID = executorID

	e.emitProgress("executor_invoked:" + executorID)
	return nil
}

// onInvocationCapBreached decides between a graceful cap and a hard
// loop-guard failure. LLM-directed runs that already heard every
// specialist stop cleanly with partial results.
func (e *Engine) onInvocationCapBreached() error {
	specialistTotal := 0
	allHeard := true
	for _, a := range e.selected {
		if a.Category == domain.CategoryCoordinator {
			continue
		}
		specialistTotal++
		if e.executionCounts[a.AgentID] == 0 {
			allHeard = false
		}
	}

	if e.isLLMDirected() && allHeard {
		log.Printf("WARN: llm_directed loop capped run=%s invocations=%d limit=%d specialists_heard=%d",
			e.runID, e.invocationsTotal, e.maxInvocations, specialistTotal)
		e.emitEvent(domain.KindWorkflowStatus, "invocation cap reached", map[string]any{
			"status": "loop_capped",
			"message": fmt.Sprintf("All %d specialists consulted; capping at %d invocations.",
				specialistTotal, e.maxInvocations),
			"executorInvocations":    e.invocationsTotal,
			"maxExecutorInvocations": e.maxInvocations,
			"workflowState":          "COMPLETING",
		})
		return errLoopCapped
	}

	reason := fmt.Sprintf("handoff_loop_guard_triggered: executor invocations exceeded %d", e.maxInvocations)
	e.emitEvent(domain.KindWorkflowFailed, reason, map[string]any{
		"error":                  reason,
		"reason":                 "handoff_loop_guard_triggered",
		"loopGuardTriggered":     true,
		"executorInvocations":    e.invocationsTotal,
		"maxExecutorInvocations": e.maxInvocations,
		"workflowState":          "FAILED",
	})
	return fmt.Errorf("%s", reason)
}

func (e *Engine) onExecutorCompleted(executorID string, resp *workflow.AgentResponse) {
	if executorID == "" {
		executorID = "unknown"
	}
	agentName := e.agentName(executorID)
	responseText := ExtractResponseText(resp)
	messageCount := 0
	if resp != nil {
		messageCount = len(resp.Messages)
	}

	delete(e.activeIDs, executorID)
	startedAt, ok := e.agentStartedAt[executorID]
	if !ok {
		startedAt = e.now().UTC()
	}
	endedAt := e.now().UTC()
	durationMs := endedAt.Sub(startedAt).Milliseconds()
	e.agentProgressPct[executorID] = 100.0
	executionCount := e.executionCounts[executorID]
	if executionCount == 0 {
		executionCount = 1
	}

	e.emitEvent(domain.KindExecutorCompleted, fmt.Sprintf("%s completed", agentName), map[string]any{
		"executor_id":    executorID,
		"executor_name":  agentName,
		"agentId":        executorID,
		"agentName":      agentName,
		"status":         "completed",
		"executionCount": executionCount,
	})

	summary := truncate(responseText, 240)
	completionReason := "analysis_complete"
	if summary == "" {
		summary = fmt.Sprintf("%s completed execution.", agentName)
		completionReason = "executor_completed"
	}

	e.completedIDs[executorID] = true
	e.emitEvent(domain.KindAgentCompleted, summary, map[string]any{
		"agentId":          executorID,
		"agentName":        agentName,
		"message_count":    messageCount,
		"summary":          summary,
		"status":           "completed",
		"completionReason": completionReason,
		"startedAt":        startedAt.Format(timeLayout),
		"endedAt":          endedAt.Format(timeLayout),
		"durationMs":       durationMs,
		"executionCount":   executionCount,
	})

	spanSummary := truncate(responseText, 220)
	if spanSummary == "" {
		spanSummary = "Analysis complete"
	}
	e.trace.SpanEnded(executorID, agentName, true, spanSummary)

	e.emitQueryCompletionsAndEvidence(executorID, responseText, messageCount)

	e.agentResponses = append(e.agentResponses, AgentActivity{
		Agent:     executorID,
		Messages:  messageCount,
		Timestamp: endedAt,
	})

	if e.isBounded() && e.coordinatorID != "" && executorID == e.coordinatorID {
		e.emitCoordinatorArtifacts(responseText)
	}
	e.emitProgress("agent_completed:" + executorID)
}

func (e *Engine) onAgentDelta(executorID string) {
	if executorID == "" {
		executorID = e.lastExecutorID
	}
	if executorID == "" {
		executorID = "unknown"
	}
	agentName := e.agentName(executorID)
	prev := e.agentProgressPct[executorID]
	if prev < 5.0 {
		prev = 5.0
	}
	next := prev + 8.0
	if next > 92.0 {
		next = 92.0
	}
	e.agentProgressPct[executorID] = next
	e.activeIDs[executorID] = true

	payload := map[string]any{
		"agentId":         executorID,
		"agentName":       agentName,
		"percentComplete": next,
		"currentStep":     "streaming_analysis",
		"executionCount":  e.executionCounts[executorID],
	}
	streaming := map[string]any{"is_streaming": true}
	for k, v := range payload {
		streaming[k] = v
	}
	e.emitEvent(domain.KindAgentStreaming, fmt.Sprintf("%s streaming", agentName), streaming)
	e.emitEvent(domain.KindAgentProgress, fmt.Sprintf("%s progress %.0f%%", agentName, next), payload)
	e.emitProgress("agent_streaming:" + executorID)
}

func (e *Engine) onWorkflowFailed(ev workflow.RawEvent) {
	errMsg := "Unknown error"
	if ev.Err != nil {
		errMsg = ev.Err.Error()
	}
	e.emitEvent(domain.KindWorkflowFailed, errMsg, map[string]any{
		"error": errMsg,
	})

	for agentID, ctx := range e.queryContexts {
		agentName := e.agentName(agentID)
		for _, q := range ctx.queries {
			e.trace.ToolFailed(agentID, agentName, q.toolName, q.queryID, errMsg)
		}
		e.trace.SpanEnded(agentID, agentName, false, errMsg)
	}
	e.queryContexts = make(map[string]*queryContext)

	for agentID := range e.activeIDs {
		e.failedIDs[agentID] = true
	}
	e.activeIDs = make(map[string]bool)
	e.emitProgress("workflow_failed")
}

// emitQueryStarts opens one synthesized data-source query per datastore
// assigned to the agent, tracked for completion when the turn ends.
func (e *Engine) emitQueryStarts(agentID, objective string) {
	profile, ok := e.profiles[agentID]
	if !ok || len(profile.DataSources) == 0 {
		return
	}

	ctx := &queryContext{startedAt: e.now().UTC(), objective: objective}
	for idx, sourceType := range profile.DataSources {
		queryID := fmt.Sprintf("%s-%s-%s", agentID, sourceType, querySuffix(agentID, sourceType))
		querySummary := fmt.Sprintf("%s retrieving %s evidence from %s for objective: %s",
			profile.AgentName, scenarioWords(e.scenario), sourceType, truncate(objective, 80))
		toolName := toolNameFor(sourceType)

		e.trace.QueryStart(agentID, profile.AgentName, sourceType, querySummary, queryID, queryTypeFor(sourceType))
		e.trace.ToolCalled(agentID, profile.AgentName, toolName, queryID, querySummary)

		ctx.queries = append(ctx.queries, queryRecord{
			sourceType:   sourceType,
			queryID:      queryID,
			querySummary: querySummary,
			sourceIndex:  idx,
			toolName:     toolName,
		})
	}
	e.queryContexts[agentID] = ctx
}

// emitQueryCompletionsAndEvidence closes the agent's open queries with
// synthesized result counts and latencies, records evidence, and ends
// with a recommendation event.
func (e *Engine) emitQueryCompletionsAndEvidence(agentID, responseText string, messageCount int) {
	ctx, ok := e.queryContexts[agentID]
	if !ok {
		return
	}
	delete(e.queryContexts, agentID)
	if len(ctx.queries) == 0 {
		return
	}

	elapsedMs := e.now().UTC().Sub(ctx.startedAt).Milliseconds()
	snippet := responseText
	if snippet == "" {
		snippet = "Agent completed domain analysis and returned evidence-backed findings."
	}
	agentName := e.agentName(agentID)
	confidence := estimateConfidence(len(ctx.queries), messageCount, snippet)

	for i, q := range ctx.queries {
		resultCount := estimateResultCount(agentID, q.sourceType, snippet, q.sourceIndex)
		latencyMs := elapsedMs + int64(i*90)
		if latencyMs < 60 {
			latencyMs = 60
		}
		if latencyMs > 2200 {
			latencyMs = 2200
		}
		evidenceSummary := fmt.Sprintf("%s evidence used by %s: %s",
			q.sourceType, agentID, truncate(snippet, 180))

		e.trace.QueryComplete(agentID, agentName, q.sourceType, resultCount, latencyMs, q.queryID, q.querySummary)
		e.trace.ToolCompleted(agentID, agentName, q.toolName, q.queryID, latencyMs, resultCount)
		e.trace.AgentEvidence(agentID, agentName, q.sourceType, evidenceSummary, resultCount, confidence)

		e.evidence = append(e.evidence, domain.Evidence{
			EvidenceID: fmt.Sprintf("ev-%s", querySuffix(agentID, fmt.Sprintf("%s-%d", q.sourceType, e.invocationsTotal))),
			RunID:      e.runID,
			AgentID:    agentID,
			Source:     q.sourceType,
			Summary:    truncate(evidenceSummary, 260),
			Confidence: confidence,
			Ts:         e.now().UTC(),
		})
	}

	recommendation := truncate(snippet, 260)
	if recommendation == "" {
		recommendation = fmt.Sprintf("%s completed analysis.", agentID)
	}
	e.trace.AgentRecommendation(agentID, agentName, recommendation, confidence)
}

// emitCoordinatorArtifacts parses the coordinator's output into recovery
// options, a scoring matrix and the final plan. Emitted at most once
// per execution.
func (e *Engine) emitCoordinatorArtifacts(responseText string) {
	if e.artifactsEmitted {
		return
	}
	decision := ParseCoordinatorArtifacts(responseText)

	if len(decision.Options) > 0 {
		for _, opt := range decision.Options {
			e.trace.RecoveryOption(opt)
		}
		scores := make(map[string]map[string]float64, len(decision.Options))
		for _, opt := range decision.Options {
			scores[opt.OptionID] = opt.Scores
		}
		e.trace.CoordinatorScoring(decision.Options, decision.Criteria, scores)
	}

	e.trace.CoordinatorPlan(decision.SelectedOptionID, decision.Timeline, decision.Summary)
	e.artifactsEmitted = true
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func joinComma(items []string) string {
	return strings.Join(items, ", ")
}

func joinLines(items []string) string {
	return strings.Join(items, "\n")
}

// scenarioWords renders a scenario id as prose ("hub_disruption" ->
// "hub disruption").
func scenarioWords(scenario string) string {
	return strings.ReplaceAll(scenario, "_", " ")
}

// titleCaseScenario renders a scenario id as a heading ("hub_disruption"
// -> "Hub Disruption").
func titleCaseScenario(scenario string) string {
	words := strings.Split(scenario, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
