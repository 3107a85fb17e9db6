// Package engine implements the orchestration run loop: scenario
// detection, agent selection, workflow construction, guarded execution
// and normalization of raw workflow callbacks into the canonical event
// log.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/registry"
	"github.com/hliang02/skyops/internal/workflow"
)

// errLoopCapped signals a graceful invocation-cap stop rather than a
// guard failure.
var errLoopCapped = errors.New("loop capped")

// Options configures one engine instance for one run.
type Options struct {
	RunID             string
	WorkflowType      domain.WorkflowType
	OrchestrationMode domain.OrchestrationMode

	// MaxInvocationsOverride replaces the mode-derived invocation cap
	// when positive.
	MaxInvocationsOverride int

	CoordinatorTurnLimit int
	SpecialistTurnLimit  int
	TurnLimitOverrides   map[string]int

	ExecutionTimeout time.Duration
	PlanTimeout      time.Duration
	MaxRetries       int
	PlannerModel     string

	Emit    EmitFunc
	Runner  workflow.AgentRunner
	Policy  workflow.PolicyChecker
	Clients *llm.ClientCache
}

// AgentActivity summarizes one agent turn for the run result.
type AgentActivity struct {
	Agent     string    `json:"agent"`
	Messages  int       `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the terminal output of a run.
type Result struct {
	Status         string          `json:"status"`
	Scenario       string          `json:"scenario"`
	AgentResponses []AgentActivity `json:"agent_responses"`
	EvidenceCount  int             `json:"evidence_count"`
	Summary        string          `json:"summary"`
}

// queryContext tracks in-flight synthesized data-source queries for one
// agent turn.
type queryContext struct {
	startedAt time.Time
	objective string
	queries   []queryRecord
}

type queryRecord struct {
	sourceType   string
	queryID      string
	querySummary string
	sourceIndex  int
	toolName     string
}

// Engine drives a single orchestration run end to end.
type Engine struct {
	opts     Options
	runID    string
	mode     domain.OrchestrationMode
	scenario string
	trace    *TraceEmitter

	selected      []domain.AgentSelectionResult
	excluded      []domain.AgentSelectionResult
	profiles      map[string]domain.AgentSelectionResult
	coordinatorID string
	topo          *workflow.Topology

	decisions []domain.Decision
	evidence  []domain.Evidence

	completedPhases map[string]bool
	currentStep     string

	invocationsTotal int
	maxInvocations   int
	executionCounts  map[string]int
	activeIDs        map[string]bool
	completedIDs     map[string]bool
	failedIDs        map[string]bool
	activatedIDs     map[string]bool
	agentStartedAt   map[string]time.Time
	agentProgressPct map[string]float64
	queryContexts    map[string]*queryContext
	lastExecutorID   string

	artifactsEmitted bool
	agentResponses   []AgentActivity

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates an engine for one run. A handoff run with no explicit
// mode defaults to llm_directed.
func New(opts Options) *Engine {
	mode := opts.OrchestrationMode
	if opts.WorkflowType == domain.WorkflowTypeHandoff && mode == "" {
		mode = domain.ModeLLMDirected
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = 600 * time.Second
	}
	if opts.PlanTimeout <= 0 {
		opts.PlanTimeout = 30 * time.Second
	}
	if opts.CoordinatorTurnLimit <= 0 {
		opts.CoordinatorTurnLimit = 8
	}
	if opts.SpecialistTurnLimit <= 0 {
		opts.SpecialistTurnLimit = 2
	}
	return &Engine{
		opts:             opts,
		runID:            opts.RunID,
		mode:             mode,
		scenario:         registry.DefaultScenario,
		profiles:         make(map[string]domain.AgentSelectionResult),
		completedPhases:  make(map[string]bool),
		currentStep:      "initializing",
		executionCounts:  make(map[string]int),
		activeIDs:        make(map[string]bool),
		completedIDs:     make(map[string]bool),
		failedIDs:        make(map[string]bool),
		activatedIDs:     make(map[string]bool),
		agentStartedAt:   make(map[string]time.Time),
		agentProgressPct: make(map[string]float64),
		queryContexts:    make(map[string]*queryContext),
		now:              time.Now,
		sleep:            time.Sleep,
	}
}

// Mode returns the resolved orchestration mode for the run.
func (e *Engine) Mode() domain.OrchestrationMode { return e.mode }

// Decisions returns the orchestrator decision trail.
func (e *Engine) Decisions() []domain.Decision { return e.decisions }

// Evidence returns the collected evidence records.
func (e *Engine) Evidence() []domain.Evidence { return e.evidence }

// Scenario returns the detected scenario.
func (e *Engine) Scenario() string { return e.scenario }

// AgentMetadata returns selection results for the run snapshot surface.
func (e *Engine) AgentMetadata() []domain.AgentSelectionResult {
	out := make([]domain.AgentSelectionResult, 0, len(e.selected)+len(e.excluded))
	out = append(out, e.selected...)
	out = append(out, e.excluded...)
	return out
}

func (e *Engine) isDeterministic() bool {
	return e.opts.WorkflowType == domain.WorkflowTypeHandoff && e.mode == domain.ModeDeterministic
}

func (e *Engine) isLLMDirected() bool {
	return e.opts.WorkflowType == domain.WorkflowTypeHandoff && e.mode == domain.ModeLLMDirected
}

func (e *Engine) isBounded() bool {
	return e.opts.WorkflowType == domain.WorkflowTypeHandoff && e.mode.Bounded()
}

// emitEvent sends one normalized event, resolving the actor from the
// payload the way the trace emitter does.
func (e *Engine) emitEvent(kind domain.EventKind, message string, payload map[string]any) {
	if e.opts.Emit == nil {
		return
	}
	ev := domain.NewEvent(e.runID, kind, message)
	if id, ok := payload["agentId"].(string); ok && id != "" {
		name := id
		if n, ok := payload["agentName"].(string); ok && n != "" {
			name = n
		}
		ev.Actor = domain.Actor{Kind: "agent", ID: id, Name: name}
		ev.AgentName = name
	}
	ev.Payload = payload
	e.opts.Emit(ev)
}

func (e *Engine) recordDecision(decisionType, reasoning string, confidence float64, action map[string]any) {
	payload, _ := json.Marshal(map[string]any{
		"confidence": confidence,
		"action":     action,
	})
	e.decisions = append(e.decisions, domain.Decision{
		DecisionID: "dec-" + uuid.New().String()[:8],
		RunID:      e.runID,
		Type:       decisionType,
		Reasoning:  reasoning,
		Payload:    payload,
		Ts:         e.now().UTC(),
	})
	log.Printf("INFO: orchestrator decision run=%s type=%s reasoning=%s",
		e.runID, decisionType, truncate(reasoning, 100))
}

// progressPayload computes run-level progress from phase weights, with
// the execute phase scaled by specialist completion.
func (e *Engine) progressPayload(currentStep string) map[string]any {
	agentTotal := len(e.selected)
	completionRatio := 0.0
	if agentTotal > 0 {
		completionRatio = float64(len(e.completedIDs)) / float64(agentTotal)
	}

	phaseWeights := map[string]float64{
		domain.StageSelectAgents:     0.10,
		domain.StageActivateAgents:   0.12,
		domain.StageCreateWorkflow:   0.12,
		domain.StageExecuteWorkflow:  0.56,
		domain.StageSynthesizeOutput: 0.10,
	}

	base := 0.0
	for phase, weight := range phaseWeights {
		if phase == domain.StageExecuteWorkflow {
			continue
		}
		if e.completedPhases[phase] {
			base += weight
		}
	}
	executeComponent := phaseWeights[domain.StageExecuteWorkflow] * completionRatio
	if e.completedPhases[domain.StageExecuteWorkflow] {
		executeComponent = phaseWeights[domain.StageExecuteWorkflow]
	}

	pct := (base + executeComponent) * 100
	if pct > 100 {
		pct = 100
	}
	pct = float64(int(pct*100+0.5)) / 100

	return map[string]any{
		"runProgressPct":         pct,
		"agentsTotal":            agentTotal,
		"agentsActivated":        len(e.activatedIDs),
		"agentsRunning":          len(e.activeIDs),
		"agentsDone":             len(e.completedIDs),
		"agentsErrored":          len(e.failedIDs),
		"executorInvocations":    e.invocationsTotal,
		"maxExecutorInvocations": e.maxInvocations,
		"currentStep":            currentStep,
	}
}

func (e *Engine) emitProgress(currentStep string) {
	e.currentStep = currentStep
	payload := e.progressPayload(currentStep)
	if e.opts.Emit == nil {
		return
	}
	ev := domain.NewEvent(e.runID, domain.KindProgressUpdate, currentStep)
	ev.Payload = payload
	if pct, ok := payload["runProgressPct"].(float64); ok {
		ev.ProgressPct = &pct
	}
	e.opts.Emit(ev)
}

func (e *Engine) emitStageStarted(stageID, stageName string) {
	payload := e.progressPayload(stageID)
	payload["stage_id"] = stageID
	payload["stage_name"] = stageName
	e.emitEvent(domain.KindStageStarted, stageName, payload)
}

func (e *Engine) emitStageCompleted(stageID, stageName string, startedAt time.Time) {
	durationMs := e.now().Sub(startedAt).Milliseconds()
	e.completedPhases[stageID] = true
	payload := e.progressPayload(stageID)
	payload["stage_id"] = stageID
	payload["stage_name"] = stageName
	payload["durationMs"] = durationMs
	e.emitEvent(domain.KindStageCompleted, stageName, payload)
}

// Run executes the five engine phases for a problem and returns the
// final result. Every state change is mirrored onto the event stream.
func (e *Engine) Run(ctx context.Context, problem string) (*Result, error) {
	log.Printf("INFO: orchestrator run started run=%s workflow_type=%s mode=%s",
		e.runID, e.opts.WorkflowType, e.mode)

	e.trace = NewTraceEmitter(e.runID, e.opts.Emit)

	e.emitEvent(domain.KindRunStarted, "orchestration run started", map[string]any{
		"workflow_type":      string(e.opts.WorkflowType),
		"orchestration_mode": string(e.mode),
		"problem_summary":    truncate(problem, 200),
	})
	e.emitProgress("run_started")

	result, err := e.runPhases(ctx, problem)
	if err != nil {
		e.recordDecision("failure", fmt.Sprintf("Workflow execution failed: %v", err), 1.0,
			map[string]any{"error": err.Error()})
		e.emitEvent(domain.KindRunFailed, "orchestration run failed", map[string]any{
			"error":              err.Error(),
			"decision_count":     len(e.decisions),
			"orchestration_mode": string(e.mode),
		})
		log.Printf("ERROR: orchestrator run failed run=%s: %v", e.runID, err)
		return nil, err
	}

	e.emitEvent(domain.KindRunCompleted, "orchestration run completed", map[string]any{
		"result":             result,
		"decision_count":     len(e.decisions),
		"evidence_count":     len(e.evidence),
		"scenario":           e.scenario,
		"orchestration_mode": string(e.mode),
	})
	e.emitProgress("run_completed")
	log.Printf("INFO: orchestrator run completed run=%s decisions=%d", e.runID, len(e.decisions))
	return result, nil
}

func (e *Engine) runPhases(ctx context.Context, problem string) (*Result, error) {
	// Phase 1: detect scenario and select agents.
	selectStarted := e.now()
	e.emitStageStarted(domain.StageSelectAgents, "Select Agents")
	e.scenario = registry.DetectScenario(problem)
	if err := e.selectAgents(ctx, problem); err != nil {
		return nil, err
	}
	e.emitStageCompleted(domain.StageSelectAgents, "Select Agents", selectStarted)

	// Phase 2: activation events for the canvas.
	activateStarted := e.now()
	e.emitStageStarted(domain.StageActivateAgents, "Activate Agents")
	e.emitAgentActivations()
	e.emitStageCompleted(domain.StageActivateAgents, "Activate Agents", activateStarted)

	// Phase 3: build the execution topology.
	createStarted := e.now()
	e.emitStageStarted(domain.StageCreateWorkflow, "Create Workflow")
	if err := e.buildWorkflow(problem); err != nil {
		return nil, err
	}
	e.emitEvent(domain.KindWorkflowStatus, "workflow created", map[string]any{
		"status":             "workflow_created",
		"workflow_type":      string(e.opts.WorkflowType),
		"orchestration_mode": string(e.mode),
		"scenario":           e.scenario,
	})
	e.emitStageCompleted(domain.StageCreateWorkflow, "Create Workflow", createStarted)

	// Phase 4: execute under the invocation cap.
	executeStarted := e.now()
	e.emitStageStarted(domain.StageExecuteWorkflow, "Execute Workflow")
	e.maxInvocations = e.resolveInvocationCap()
	input := e.buildWorkflowInput(problem)
	result, err := e.executeWithRetries(ctx, input)
	if err != nil {
		return nil, err
	}
	e.completedPhases[domain.StageExecuteWorkflow] = true
	e.emitStageCompleted(domain.StageExecuteWorkflow, "Execute Workflow", executeStarted)

	// Phase 5: record completion.
	synthStarted := e.now()
	e.emitStageStarted(domain.StageSynthesizeOutput, "Synthesize Output")
	e.recordDecision("commit", "All agents completed, solution validated", 0.98, nil)
	e.emitStageCompleted(domain.StageSynthesizeOutput, "Synthesize Output", synthStarted)

	return result, nil
}

// resolveInvocationCap derives the executor invocation budget from the
// orchestration mode and agent count, unless explicitly overridden.
func (e *Engine) resolveInvocationCap() int {
	if e.opts.MaxInvocationsOverride > 0 {
		return e.opts.MaxInvocationsOverride
	}
	n := len(e.selected)
	switch {
	case e.isDeterministic():
		// One pass through all specialists plus coordinator synthesis.
		return maxInt(20, n*2)
	case e.isLLMDirected():
		// Coordinator may cycle through specialists multiple times.
		return maxInt(40, n*5)
	default:
		return maxInt(30, n*4)
	}
}

func (e *Engine) selectAgents(ctx context.Context, problem string) error {
	e.selected, e.excluded = registry.SelectAgentsForProblem(problem)
	scenarioDef := registry.ScenarioByName(e.scenario)
	e.coordinatorID = scenarioDef.CoordinatorID

	if e.isLLMDirected() {
		e.emitEvent(domain.KindWorkflowStatus, "LLM is selecting specialist set and handoff order.", map[string]any{
			"status":      "llm_selection_started",
			"message":     "LLM is selecting specialist set and handoff order.",
			"currentStep": "selecting_agents",
		})
		e.applyLLMDirectedSelection(ctx, problem)
	}

	for _, agent := range e.selected {
		if agent.Category == domain.CategoryCoordinator {
			e.coordinatorID = agent.AgentID
			break
		}
	}

	for _, a := range e.selected {
		e.profiles[a.AgentID] = a
	}
	for _, a := range e.excluded {
		e.profiles[a.AgentID] = a
	}

	e.trace.Plan(problem, e.selected, e.excluded)
	for _, agent := range e.selected {
		e.trace.IncludeAgent(agent.Reason, agent.ConditionsEvaluated)
		e.recordDecision("include_agent", agent.Reason, 0.9,
			map[string]any{"agent_id": agent.AgentID, "agent_name": agent.AgentName})
	}
	return nil
}

func (e *Engine) emitAgentActivations() {
	for _, agent := range e.selected {
		e.trace.AgentActivated(agent)
		e.activatedIDs[agent.AgentID] = true
		e.emitProgress("activated:" + agent.AgentID)
	}
	for _, agent := range e.excluded {
		e.trace.AgentExcluded(agent)
	}
}

func (e *Engine) buildWorkflow(problem string) error {
	activeIDs := make([]string, 0, len(e.selected))
	for _, a := range e.selected {
		activeIDs = append(activeIDs, a.AgentID)
	}
	topo, err := workflow.Build(workflow.BuildParams{
		WorkflowType:      e.opts.WorkflowType,
		Mode:              e.mode,
		Scenario:          e.scenario,
		ActiveAgentIDs:    activeIDs,
		CoordinatorID:     e.coordinatorID,
		CoordinatorLimit:  e.opts.CoordinatorTurnLimit,
		SpecialistLimit:   e.opts.SpecialistTurnLimit,
		TurnLimitOverride: e.opts.TurnLimitOverrides,
	})
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	e.topo = topo
	e.coordinatorID = topo.CoordinatorID
	return nil
}

// buildWorkflowInput renders the analysis prompt handed to the first
// executor, listing active specialists and their datastore assignments.
func (e *Engine) buildWorkflowInput(problem string) string {
	var specialists []domain.AgentSelectionResult
	for _, a := range e.selected {
		if a.Category != domain.CategoryCoordinator {
			specialists = append(specialists, a)
		}
	}

	var names, assignments []string
	for _, a := range specialists {
		names = append(names, a.AgentName)
		stores := "none"
		if len(a.DataSources) > 0 {
			stores = joinComma(a.DataSources)
		}
		assignments = append(assignments, fmt.Sprintf("- %s (%s) -> allowed stores: %s", a.AgentName, a.AgentID, stores))
	}

	return fmt.Sprintf(`## Aviation Problem Analysis Task

### Scenario: %s

### Problem Description
%s

### Instructions
Analyze this problem using the specialist agents available to you.
Each specialist has domain-specific tools with access to real aviation data sources.
Use only the registered datastores assigned to each specialist.
Prioritize evidence-backed findings from Azure stores and Microsoft Fabric stores when available.
After collecting all specialist analyses, synthesize a comprehensive decision with:
- Ranked recovery/decision options (scored 0-100 on each criterion)
- Recommended option with justification
- Implementation timeline

### Active Specialists
%s

### Specialist Datastore Assignments
%s
`, titleCaseScenario(e.scenario), problem, joinComma(names), joinLines(assignments))
}

// executeWithRetries runs the workflow under the bounded-mode deadline,
// retrying transient provider failures with a clean state each attempt.
func (e *Engine) executeWithRetries(ctx context.Context, input string) (*Result, error) {
	for attempt := 1; attempt <= e.opts.MaxRetries; attempt++ {
		execCtx := ctx
		cancel := context.CancelFunc(func() {})
		if e.isBounded() {
			execCtx, cancel = context.WithTimeout(ctx, e.opts.ExecutionTimeout)
		}
		result, err := e.streamWorkflow(execCtx, input)
		cancel()

		switch {
		case err == nil:
			return result, nil

		case e.isBounded() && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			reason := "deterministic_execution_timeout"
			if e.isLLMDirected() {
				reason = "llm_directed_execution_timeout"
			}
			e.emitEvent(domain.KindWorkflowFailed, "bounded orchestration execution timeout", map[string]any{
				"error":              "bounded orchestration execution timeout",
				"reason":             reason,
				"workflowState":      "FAILED",
				"timeoutSeconds":     int(e.opts.ExecutionTimeout.Seconds()),
				"orchestration_mode": string(e.mode),
			})
			return nil, fmt.Errorf("%s: %w", reason, err)

		case llm.IsAuthError(err):
			if e.opts.Clients != nil {
				e.opts.Clients.Clear()
			}
			if attempt >= e.opts.MaxRetries {
				return nil, err
			}
			delay := time.Duration(1<<attempt) * time.Second
			log.Printf("WARN: auth error, retrying run=%s attempt=%d retry_in=%s", e.runID, attempt, delay)
			e.resetWorkflowState()
			e.sleep(delay)

		case llm.IsRateLimitError(err):
			if attempt >= e.opts.MaxRetries {
				return nil, err
			}
			delay := minDuration(time.Duration(1<<attempt)*time.Second, 30*time.Second)
			if hint, ok := llm.RetryAfterHint(err); ok {
				delay = hint
			}
			log.Printf("WARN: rate limited, retrying run=%s attempt=%d retry_in=%s", e.runID, attempt, delay)
			e.resetWorkflowState()
			e.sleep(delay)

		default:
			if e.isBounded() && ctx.Err() == nil {
				reason := "deterministic_execution_error"
				if e.isLLMDirected() {
					reason = "llm_directed_execution_error"
				}
				e.emitEvent(domain.KindWorkflowFailed, err.Error(), map[string]any{
					"error":              err.Error(),
					"reason":             reason,
					"workflowState":      "FAILED",
					"orchestration_mode": string(e.mode),
				})
			}
			return nil, err
		}
	}
	return nil, fmt.Errorf("retry loop exited unexpectedly")
}

// resetWorkflowState clears transient per-execution state so a retry
// starts clean. Cumulative records (decisions, evidence, selection)
// survive.
func (e *Engine) resetWorkflowState() {
	e.activeIDs = make(map[string]bool)
	e.completedIDs = make(map[string]bool)
	e.failedIDs = make(map[string]bool)
	e.agentStartedAt = make(map[string]time.Time)
	e.agentProgressPct = make(map[string]float64)
	e.executionCounts = make(map[string]int)
	e.invocationsTotal = 0
	e.queryContexts = make(map[string]*queryContext)
	e.lastExecutorID = ""
	e.artifactsEmitted = false
	e.agentResponses = nil
	log.Printf("INFO: workflow state reset run=%s", e.runID)
}

// streamWorkflow consumes the dispatcher's raw event stream, normalizing
// each callback. A graceful loop cap stops consumption and returns the
// partial result.
func (e *Engine) streamWorkflow(ctx context.Context, input string) (*Result, error) {
	log.Printf("INFO: workflow execution started run=%s", e.runID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := workflow.NewDispatcher(e.topo, e.opts.Runner, e.opts.Policy)
	events := d.RunStream(runCtx, input)

	capped := false
	for ev := range events {
		err := e.processRawEvent(ev)
		if errors.Is(err, errLoopCapped) {
			capped = true
			cancel()
			break
		}
		if err != nil {
			cancel()
			for range events {
			}
			return nil, err
		}
	}
	if capped {
		log.Printf("INFO: workflow loop capped gracefully run=%s agents_heard=%d",
			e.runID, len(e.agentResponses))
		for range events {
		}
	}
	if err := ctx.Err(); err != nil && !capped {
		return nil, err
	}

	return &Result{
		Status:         "completed",
		Scenario:       e.scenario,
		AgentResponses: e.agentResponses,
		EvidenceCount:  len(e.evidence),
		Summary: fmt.Sprintf("Problem analyzed by %d agents in %s scenario",
			len(e.agentResponses), e.scenario),
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
