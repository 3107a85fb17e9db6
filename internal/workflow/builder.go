package workflow

import (
	"fmt"
	"log"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/registry"
)

// BuildParams selects and parameterizes a topology.
type BuildParams struct {
	WorkflowType      domain.WorkflowType
	Mode              domain.OrchestrationMode
	Scenario          string
	ActiveAgentIDs    []string
	CoordinatorID     string
	CoordinatorLimit  int
	SpecialistLimit   int
	TurnLimitOverride map[string]int
}

// Build constructs the topology for a run. Deterministic and
// llm_directed handoff modes run the strict pipeline; mesh mode runs
// the coordinator hub.
func Build(p BuildParams) (*Topology, error) {
	scenario := registry.ScenarioByName(p.Scenario)

	activeIDs := p.ActiveAgentIDs
	if len(activeIDs) == 0 {
		activeIDs = append(append([]string{}, scenario.AgentIDs...), scenario.CoordinatorID)
	}

	coordinatorID := resolveCoordinator(p.CoordinatorID, activeIDs, scenario)
	coordinator, ok := registry.AgentByID(coordinatorID)
	if !ok || coordinator.Category != domain.CategoryCoordinator {
		return nil, fmt.Errorf("unknown coordinator %s", coordinatorID)
	}

	var specialists []domain.AgentProfile
	for _, id := range activeIDs {
		if id == coordinatorID {
			continue
		}
		profile, ok := registry.AgentByID(id)
		if !ok {
			log.Printf("WARN: skipping unknown agent %s", id)
			continue
		}
		specialists = append(specialists, profile)
	}

	name := fmt.Sprintf("%s_workflow", p.Scenario)
	switch p.WorkflowType {
	case domain.WorkflowTypeSequential:
		return NewPipeline(name, specialists, coordinator)
	case domain.WorkflowTypeHandoff:
		switch p.Mode {
		case domain.ModeDeterministic, domain.ModeLLMDirected:
			return NewPipeline(name, specialists, coordinator)
		case domain.ModeMesh:
			return NewCoordinatorHub(name, specialists, coordinator,
				p.CoordinatorLimit, p.SpecialistLimit, p.TurnLimitOverride)
		default:
			return nil, fmt.Errorf("unknown orchestration mode: %s", p.Mode)
		}
	default:
		return nil, fmt.Errorf("unknown workflow type: %s", p.WorkflowType)
	}
}

// resolveCoordinator prefers the explicit id, then the first
// coordinator-category agent among the active ids, then the scenario
// default.
func resolveCoordinator(explicit string, activeIDs []string, scenario domain.ScenarioDefinition) string {
	if explicit != "" {
		return explicit
	}
	for _, id := range activeIDs {
		if profile, ok := registry.AgentByID(id); ok && profile.Category == domain.CategoryCoordinator {
			return id
		}
	}
	return scenario.CoordinatorID
}
