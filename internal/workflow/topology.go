package workflow

import (
	"fmt"

	"github.com/hliang02/skyops/internal/domain"
)

// Kind is the execution shape of a topology.
type Kind string

const (
	KindPipeline Kind = "pipeline"
	KindMesh     Kind = "mesh"
)

// Participant is one agent in a topology with its turn limit.
type Participant struct {
	Profile   domain.AgentProfile
	TurnLimit int
}

// Topology is an explicit directed graph of allowed control transfers,
// interpreted by the dispatcher. Keeping the adjacency as data makes the
// coordinator-hub invariant checkable without running anything.
type Topology struct {
	Name          string
	Kind          Kind
	Participants  map[string]Participant
	Order         []string            // pipeline execution order
	Handoffs      map[string][]string // adjacency: agent id -> allowed next ids
	StartID       string
	CoordinatorID string
}

// CanHandoff reports whether from may transfer control to to.
func (t *Topology) CanHandoff(from, to string) bool {
	for _, id := range t.Handoffs[from] {
		if id == to {
			return true
		}
	}
	return false
}

// SpecialistIDs returns the non-coordinator participants in order.
func (t *Topology) SpecialistIDs() []string {
	var ids []string
	for _, id := range t.Order {
		if id != t.CoordinatorID {
			ids = append(ids, id)
		}
	}
	return ids
}

// AgentCount returns the number of participants.
func (t *Topology) AgentCount() int {
	return len(t.Participants)
}

// NewPipeline builds a strict single-pass pipeline: specialists in the
// given order, coordinator last, one turn each.
func NewPipeline(name string, specialists []domain.AgentProfile, coordinator domain.AgentProfile) (*Topology, error) {
	if coordinator.ID == "" {
		return nil, fmt.Errorf("pipeline requires a coordinator")
	}
	t := &Topology{
		Name:          name,
		Kind:          KindPipeline,
		Participants:  make(map[string]Participant, len(specialists)+1),
		Handoffs:      make(map[string][]string),
		CoordinatorID: coordinator.ID,
	}
	for _, p := range specialists {
		if _, dup := t.Participants[p.ID]; dup {
			return nil, fmt.Errorf("duplicate participant %s", p.ID)
		}
		t.Participants[p.ID] = Participant{Profile: p, TurnLimit: 1}
		t.Order = append(t.Order, p.ID)
	}
	t.Participants[coordinator.ID] = Participant{Profile: coordinator, TurnLimit: 1}
	t.Order = append(t.Order, coordinator.ID)
	t.StartID = t.Order[0]

	// Chain adjacency mirrors the fixed order.
	for i := 0; i < len(t.Order)-1; i++ {
		t.Handoffs[t.Order[i]] = []string{t.Order[i+1]}
	}
	return t, nil
}

// NewCoordinatorHub builds the constrained handoff mesh: the coordinator
// may hand off to any specialist, each specialist only back to the
// coordinator.
func NewCoordinatorHub(name string, specialists []domain.AgentProfile, coordinator domain.AgentProfile,
	coordinatorLimit, specialistLimit int, overrides map[string]int) (*Topology, error) {
	if coordinator.ID == "" {
		return nil, fmt.Errorf("handoff mesh requires a coordinator")
	}
	if len(specialists) == 0 {
		return nil, fmt.Errorf("handoff mesh requires at least one specialist")
	}

	limit := func(id string, def int) int {
		if v, ok := overrides[id]; ok {
			def = v
		}
		if def < 1 {
			def = 1
		}
		return def
	}

	t := &Topology{
		Name:          name,
		Kind:          KindMesh,
		Participants:  make(map[string]Participant, len(specialists)+1),
		Handoffs:      make(map[string][]string),
		StartID:       coordinator.ID,
		CoordinatorID: coordinator.ID,
	}
	t.Participants[coordinator.ID] = Participant{
		Profile:   coordinator,
		TurnLimit: limit(coordinator.ID, coordinatorLimit),
	}
	var specialistIDs []string
	for _, p := range specialists {
		if _, dup := t.Participants[p.ID]; dup {
			return nil, fmt.Errorf("duplicate participant %s", p.ID)
		}
		t.Participants[p.ID] = Participant{
			Profile:   p,
			TurnLimit: limit(p.ID, specialistLimit),
		}
		specialistIDs = append(specialistIDs, p.ID)
		t.Handoffs[p.ID] = []string{coordinator.ID}
	}
	t.Handoffs[coordinator.ID] = specialistIDs
	t.Order = append([]string{}, specialistIDs...)
	t.Order = append(t.Order, coordinator.ID)
	return t, nil
}
