// Package domain defines the core domain models for the orchestration engine.
package domain

// RunStatus represents the lifecycle status of an orchestration run.
// Transitions are forward-only: a terminal run never resurrects.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// rank orders statuses for monotonic transition checks.
func (s RunStatus) rank() int {
	switch s {
	case RunStatusPending:
		return 0
	case RunStatusRunning:
		return 1
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s == next {
		return false
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// StageStatus represents the status of one engine stage within a run.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// WorkflowType selects the execution topology family for a run.
type WorkflowType string

const (
	WorkflowTypeSequential WorkflowType = "sequential"
	WorkflowTypeHandoff    WorkflowType = "handoff"
)

// OrchestrationMode refines how a handoff workflow is driven.
type OrchestrationMode string

const (
	ModeDeterministic OrchestrationMode = "deterministic"
	ModeLLMDirected   OrchestrationMode = "llm_directed"
	ModeMesh          OrchestrationMode = "mesh"
)

// Bounded reports whether the mode runs under an overall execution deadline.
func (m OrchestrationMode) Bounded() bool {
	return m == ModeDeterministic || m == ModeLLMDirected
}

// AgentCategory classifies registry entries.
type AgentCategory string

const (
	CategorySpecialist  AgentCategory = "specialist"
	CategoryCoordinator AgentCategory = "coordinator"
	CategoryPlaceholder AgentCategory = "placeholder"
)

// EventLevel is the severity attached to a workflow event.
type EventLevel string

const (
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// EventKind is the closed vocabulary of normalized workflow events.
type EventKind string

const (
	// Lifecycle
	KindRunStarted   EventKind = "run_started"
	KindRunCompleted EventKind = "run_completed"
	KindRunFailed    EventKind = "run_failed"

	// Stages
	KindStageStarted   EventKind = "stage_started"
	KindStageCompleted EventKind = "stage_completed"
	KindStageFailed    EventKind = "stage_failed"

	// Agent lifecycle
	KindAgentObjective      EventKind = "agent.objective"
	KindAgentProgress       EventKind = "agent.progress"
	KindAgentStreaming      EventKind = "agent.streaming"
	KindAgentCompleted      EventKind = "agent.completed"
	KindAgentActivated      EventKind = "agent.activated"
	KindAgentExcluded       EventKind = "agent.excluded"
	KindAgentEvidence       EventKind = "agent.evidence"
	KindAgentRecommendation EventKind = "agent.recommendation"

	// Executor lifecycle
	KindExecutorInvoked   EventKind = "executor.invoked"
	KindExecutorCompleted EventKind = "executor.completed"

	// Tools and data sources
	KindToolCalled          EventKind = "tool.called"
	KindToolCompleted       EventKind = "tool.completed"
	KindToolFailed          EventKind = "tool.failed"
	KindDataSourceQueryStart    EventKind = "data_source.query_start"
	KindDataSourceQueryComplete EventKind = "data_source.query_complete"

	// Orchestration narrative
	KindOrchestratorPlan     EventKind = "orchestrator.plan"
	KindOrchestratorDecision EventKind = "orchestrator.decision"
	KindHandover             EventKind = "handover"
	KindWorkflowStatus       EventKind = "workflow.status"
	KindWorkflowFailed       EventKind = "workflow.failed"
	KindWorkflowOutput       EventKind = "workflow.output"

	// Coordinator output
	KindCoordinatorScoring EventKind = "coordinator.scoring"
	KindCoordinatorPlan    EventKind = "coordinator.plan"
	KindRecoveryOption     EventKind = "recovery.option"

	// Progress
	KindProgressUpdate EventKind = "progress_update"
	KindSpanStarted    EventKind = "span.started"
	KindSpanEnded      EventKind = "span.ended"
	KindHeartbeat      EventKind = "heartbeat"
)

// Terminal reports whether the event kind ends a subscription.
func (k EventKind) Terminal() bool {
	return k == KindRunCompleted || k == KindRunFailed
}
