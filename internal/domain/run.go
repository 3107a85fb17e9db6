package domain

import (
	"encoding/json"
	"time"
)

// Stage identifiers, in execution order.
const (
	StageSelectAgents     = "select_agents"
	StageActivateAgents   = "activate_agents"
	StageCreateWorkflow   = "create_workflow"
	StageExecuteWorkflow  = "execute_workflow"
	StageSynthesizeOutput = "synthesize_output"
)

// StageOrder lists the engine stages in the order they run.
var StageOrder = []string{
	StageSelectAgents,
	StageActivateAgents,
	StageCreateWorkflow,
	StageExecuteWorkflow,
	StageSynthesizeOutput,
}

// Stage is one engine phase of a run as persisted in the run store.
type Stage struct {
	StageID    string      `json:"stage_id"`
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Run represents a single orchestration of a problem across agents.
type Run struct {
	RunID             string            `json:"run_id"`
	Problem           string            `json:"problem"`
	Scenario          string            `json:"scenario"`
	WorkflowType      WorkflowType      `json:"workflow_type"`
	OrchestrationMode OrchestrationMode `json:"orchestration_mode"`
	Status            RunStatus         `json:"status"`
	ProgressPct       float64           `json:"progress_pct"`
	Stages            []Stage           `json:"stages,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	Error             json.RawMessage   `json:"error,omitempty"`

	// Derived counts for the snapshot surface.
	DecisionCount int `json:"decision_count,omitempty"`
	EvidenceCount int `json:"evidence_count,omitempty"`
}

// Decision is one orchestrator-level reasoning record in the run's
// append-only audit trail.
type Decision struct {
	DecisionID string          `json:"decision_id"`
	RunID      string          `json:"run_id"`
	Type       string          `json:"decision_type"`
	Reasoning  string          `json:"reasoning"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Ts         time.Time       `json:"ts"`
}

// Evidence is one recorded agent finding, attributable to a data source.
type Evidence struct {
	EvidenceID string    `json:"evidence_id"`
	RunID      string    `json:"run_id"`
	AgentID    string    `json:"agent_id"`
	Source     string    `json:"source"`
	Summary    string    `json:"summary"`
	Confidence float64   `json:"confidence"`
	Ts         time.Time `json:"ts"`
}
