package domain

// AgentProfile is a registry entry describing one agent's capabilities.
// Profiles are immutable after registry load.
type AgentProfile struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	ShortName   string        `json:"short_name"`
	Category    AgentCategory `json:"category"`
	Description string        `json:"description"`
	Priority    int           `json:"priority"`
	Icon        string        `json:"icon,omitempty"`
	Color       string        `json:"color,omitempty"`
	DataSources []string      `json:"data_sources,omitempty"`
	Scenarios   []string      `json:"scenarios,omitempty"`
	Phase       int           `json:"phase"`
}

// ScenarioDefinition maps a named scenario to its required agents.
type ScenarioDefinition struct {
	Name          string   `json:"name"`
	Keywords      []string `json:"keywords"`
	AgentIDs      []string `json:"agent_ids"`
	CoordinatorID string   `json:"coordinator_id"`
}

// AgentSelectionResult records one include/exclude decision for a run.
type AgentSelectionResult struct {
	AgentID             string        `json:"agent_id"`
	AgentName           string        `json:"agent_name"`
	ShortName           string        `json:"short_name"`
	Category            AgentCategory `json:"category"`
	Included            bool          `json:"included"`
	Reason              string        `json:"reason"`
	ConditionsEvaluated []string      `json:"conditions_evaluated"`
	Priority            int           `json:"priority"`
	Icon                string        `json:"icon,omitempty"`
	Color               string        `json:"color,omitempty"`
	DataSources         []string      `json:"data_sources,omitempty"`
}
