package domain

// RecoveryOption is one candidate course of action ranked by the coordinator.
type RecoveryOption struct {
	OptionID    string             `json:"optionId"`
	Description string             `json:"description"`
	Rank        int                `json:"rank"`
	Scores      map[string]float64 `json:"scores"`
}

// TimelineEntry is one step of the coordinator's implementation timeline.
type TimelineEntry struct {
	Time   string `json:"time"`
	Action string `json:"action"`
	Agent  string `json:"agent,omitempty"`
}

// CoordinatorDecision is the structured artifact extracted from the
// coordinator agent's final output.
type CoordinatorDecision struct {
	Criteria         []string         `json:"criteria"`
	Options          []RecoveryOption `json:"options"`
	SelectedOptionID string           `json:"selectedOptionId"`
	Summary          string           `json:"summary"`
	Timeline         []TimelineEntry  `json:"timeline"`
}

// SelectionPlan is the strict JSON shape expected back from the
// LLM-directed planning call.
type SelectionPlan struct {
	SelectedAgentIDs   []string          `json:"selectedAgentIds"`
	ExecutionOrder     []string          `json:"executionOrder"`
	ExcludedAgentIDs   []string          `json:"excludedAgentIds"`
	CoordinatorAgentID string            `json:"coordinatorAgentId"`
	Confidence         float64           `json:"confidence"`
	Reasoning          string            `json:"reasoning"`
	AgentReasons       map[string]string `json:"agentReasons"`
}
