// Package service owns the run lifecycle: starting orchestration runs,
// mirroring engine events into the store and event bus, and serving
// run snapshots.
package service

import (
	"context"
	"sync"

	"github.com/hliang02/skyops/internal/config"
	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/eventbus"
	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/workflow"
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, status domain.RunStatus, limit, offset int) ([]domain.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error
	UpdateRunProgress(ctx context.Context, runID string, pct float64) error
	UpdateStage(ctx context.Context, runID string, stage domain.Stage) error
	SaveDecision(ctx context.Context, dec domain.Decision) error
	SaveEvidence(ctx context.Context, ev domain.Evidence) error
}

type Service struct {
	store   Store
	bus     *eventbus.Bus
	clients *llm.ClientCache
	runner  workflow.AgentRunner
	policy  workflow.PolicyChecker
	config  *config.Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(store Store, bus *eventbus.Bus, clients *llm.ClientCache, runner workflow.AgentRunner, policy workflow.PolicyChecker, cfg *config.Config) *Service {
	return &Service{
		store:   store,
		bus:     bus,
		clients: clients,
		runner:  runner,
		policy:  policy,
		config:  cfg,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Bus exposes the event bus for streaming transports.
func (s *Service) Bus() *eventbus.Bus { return s.bus }

// Workflows describes the available workflow types and modes.
func (s *Service) Workflows() []domain.WorkflowDescriptor {
	return []domain.WorkflowDescriptor{
		{
			Type:        domain.WorkflowTypeSequential,
			Description: "Fixed pipeline: each selected specialist runs once, coordinator last.",
		},
		{
			Type:        domain.WorkflowTypeHandoff,
			Modes:       []domain.OrchestrationMode{domain.ModeDeterministic, domain.ModeLLMDirected, domain.ModeMesh},
			Description: "Coordinator-hub handoff workflow. Deterministic order, LLM-planned order, or a dynamic mesh under turn limits.",
		},
	}
}
