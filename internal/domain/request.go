package domain

// TurnLimits caps how many times each participant may be invoked in one
// run of the dynamic handoff mesh.
type TurnLimits struct {
	Coordinator int `json:"coordinator,omitempty"`
	Specialist  int `json:"specialist,omitempty"`
}

// SolveRequest is the request to start an orchestration run.
type SolveRequest struct {
	Problem                string            `json:"problem"`
	WorkflowType           WorkflowType      `json:"workflow_type,omitempty"`
	OrchestrationMode      OrchestrationMode `json:"orchestration_mode,omitempty"`
	MaxExecutorInvocations int               `json:"max_executor_invocations,omitempty"`
	AutonomousTurnLimits   *TurnLimits       `json:"autonomous_turn_limits,omitempty"`
}

// SolveResponse acknowledges a started run with enough agent metadata
// for a client to render the canvas immediately.
type SolveResponse struct {
	RunID    string                 `json:"run_id"`
	Status   RunStatus              `json:"status"`
	Message  string                 `json:"message"`
	Scenario string                 `json:"scenario"`
	Agents   []AgentSelectionResult `json:"agents"`
}

// WorkflowDescriptor describes one available workflow type for the catalog.
type WorkflowDescriptor struct {
	Type        WorkflowType        `json:"type"`
	Modes       []OrchestrationMode `json:"modes,omitempty"`
	Description string              `json:"description"`
}
