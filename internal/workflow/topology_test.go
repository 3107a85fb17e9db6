package workflow

import (
	"testing"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/registry"
)

func hubProfiles(t *testing.T) ([]domain.AgentProfile, domain.AgentProfile) {
	t.Helper()
	scenario := registry.ScenarioByName("hub_disruption")
	var specialists []domain.AgentProfile
	for _, id := range scenario.AgentIDs {
		p, ok := registry.AgentByID(id)
		if !ok {
			t.Fatalf("unknown agent %s", id)
		}
		specialists = append(specialists, p)
	}
	coordinator, ok := registry.AgentByID(scenario.CoordinatorID)
	if !ok {
		t.Fatalf("unknown coordinator %s", scenario.CoordinatorID)
	}
	return specialists, coordinator
}

func TestPipelineTopologyOrder(t *testing.T) {
	specialists, coordinator := hubProfiles(t)
	topo, err := NewPipeline("test", specialists, coordinator)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if topo.Order[len(topo.Order)-1] != coordinator.ID {
		t.Fatalf("expected coordinator last, got %s", topo.Order[len(topo.Order)-1])
	}
	for _, p := range topo.Participants {
		if p.TurnLimit != 1 {
			t.Fatalf("pipeline turn limit must be 1, got %d for %s", p.TurnLimit, p.Profile.ID)
		}
	}
}

func TestCoordinatorHubAdjacency(t *testing.T) {
	specialists, coordinator := hubProfiles(t)
	topo, err := NewCoordinatorHub("test", specialists, coordinator, 8, 2, nil)
	if err != nil {
		t.Fatalf("NewCoordinatorHub failed: %v", err)
	}

	if topo.StartID != coordinator.ID {
		t.Fatalf("mesh must start at the coordinator, got %s", topo.StartID)
	}
	for _, s := range specialists {
		if !topo.CanHandoff(coordinator.ID, s.ID) {
			t.Fatalf("coordinator cannot reach specialist %s", s.ID)
		}
		if !topo.CanHandoff(s.ID, coordinator.ID) {
			t.Fatalf("specialist %s cannot return to coordinator", s.ID)
		}
	}
	// No specialist-to-specialist edge may ever exist.
	for _, a := range specialists {
		for _, b := range specialists {
			if a.ID != b.ID && topo.CanHandoff(a.ID, b.ID) {
				t.Fatalf("forbidden edge %s -> %s", a.ID, b.ID)
			}
		}
	}
}

func TestCoordinatorHubTurnLimits(t *testing.T) {
	specialists, coordinator := hubProfiles(t)
	topo, err := NewCoordinatorHub("test", specialists, coordinator, 8, 2,
		map[string]int{"fleet_recovery": 4, coordinator.ID: 0})
	if err != nil {
		t.Fatalf("NewCoordinatorHub failed: %v", err)
	}
	if got := topo.Participants[coordinator.ID].TurnLimit; got != 1 {
		t.Fatalf("zero override must clamp to 1, got %d", got)
	}
	if got := topo.Participants["fleet_recovery"].TurnLimit; got != 4 {
		t.Fatalf("override not applied, got %d", got)
	}
	if got := topo.Participants["crew_recovery"].TurnLimit; got != 2 {
		t.Fatalf("default specialist limit expected 2, got %d", got)
	}
}

func TestBuildModeSelection(t *testing.T) {
	base := BuildParams{
		Scenario:         "hub_disruption",
		CoordinatorLimit: 8,
		SpecialistLimit:  2,
	}

	cases := []struct {
		wt   domain.WorkflowType
		mode domain.OrchestrationMode
		want Kind
	}{
		{domain.WorkflowTypeSequential, "", KindPipeline},
		{domain.WorkflowTypeHandoff, domain.ModeDeterministic, KindPipeline},
		{domain.WorkflowTypeHandoff, domain.ModeLLMDirected, KindPipeline},
		{domain.WorkflowTypeHandoff, domain.ModeMesh, KindMesh},
	}
	for _, tc := range cases {
		p := base
		p.WorkflowType = tc.wt
		p.Mode = tc.mode
		topo, err := Build(p)
		if err != nil {
			t.Fatalf("Build(%s/%s) failed: %v", tc.wt, tc.mode, err)
		}
		if topo.Kind != tc.want {
			t.Fatalf("Build(%s/%s) = %s, want %s", tc.wt, tc.mode, topo.Kind, tc.want)
		}
		if topo.CoordinatorID != "recovery_coordinator" {
			t.Fatalf("unexpected coordinator %s", topo.CoordinatorID)
		}
	}
}

func TestBuildRejectsUnknownMode(t *testing.T) {
	_, err := Build(BuildParams{
		WorkflowType: domain.WorkflowTypeHandoff,
		Mode:         "autonomous_chaos",
		Scenario:     "hub_disruption",
	})
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
