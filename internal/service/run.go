package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/engine"
	"github.com/hliang02/skyops/internal/registry"
)

// StartRun validates the request, creates the run record, and launches
// the orchestration engine in the background.
func (s *Service) StartRun(ctx context.Context, req domain.SolveRequest) (*domain.SolveResponse, error) {
	if strings.TrimSpace(req.Problem) == "" {
		return nil, fmt.Errorf("problem is required")
	}
	workflowType := req.WorkflowType
	if workflowType == "" {
		workflowType = domain.WorkflowTypeHandoff
	}
	if workflowType != domain.WorkflowTypeSequential && workflowType != domain.WorkflowTypeHandoff {
		return nil, fmt.Errorf("unknown workflow_type %q", workflowType)
	}
	mode := req.OrchestrationMode
	if workflowType == domain.WorkflowTypeHandoff && mode == "" {
		mode = domain.ModeLLMDirected
	}
	if mode != "" && mode != domain.ModeDeterministic && mode != domain.ModeLLMDirected && mode != domain.ModeMesh {
		return nil, fmt.Errorf("unknown orchestration_mode %q", mode)
	}

	scenario := registry.DetectScenario(req.Problem)
	included, excluded := registry.SelectAgentsForProblem(req.Problem)

	runID := "run_" + uuid.New().String()[:8]
	run := &domain.Run{
		RunID:             runID,
		Problem:           req.Problem,
		Scenario:          scenario,
		WorkflowType:      workflowType,
		OrchestrationMode: mode,
		Status:            domain.RunStatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[runID] = cancel
	s.mu.Unlock()

	go s.runOrchestration(runCtx, runID, workflowType, mode, req)

	agents := make([]domain.AgentSelectionResult, 0, len(included)+len(excluded))
	agents = append(agents, included...)
	agents = append(agents, excluded...)
	return &domain.SolveResponse{
		RunID:    runID,
		Status:   domain.RunStatusPending,
		Message:  "orchestration run started",
		Scenario: scenario,
		Agents:   agents,
	}, nil
}

func (s *Service) runOrchestration(ctx context.Context, runID string, workflowType domain.WorkflowType, mode domain.OrchestrationMode, req domain.SolveRequest) {
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.cancels[runID]; ok {
			cancel()
			delete(s.cancels, runID)
		}
		s.mu.Unlock()
	}()

	if err := s.store.UpdateRunStatus(context.Background(), runID, domain.RunStatusRunning, nil); err != nil {
		log.Printf("ERROR: failed to update run status: %v", err)
	}

	coordinatorLimit := s.config.TurnLimits.Coordinator
	specialistLimit := s.config.TurnLimits.Specialist
	if req.AutonomousTurnLimits != nil {
		if req.AutonomousTurnLimits.Coordinator > 0 {
			coordinatorLimit = req.AutonomousTurnLimits.Coordinator
		}
		if req.AutonomousTurnLimits.Specialist > 0 {
			specialistLimit = req.AutonomousTurnLimits.Specialist
		}
	}

	eng := engine.New(engine.Options{
		RunID:                  runID,
		WorkflowType:           workflowType,
		OrchestrationMode:      mode,
		MaxInvocationsOverride: req.MaxExecutorInvocations,
		CoordinatorTurnLimit:   coordinatorLimit,
		SpecialistTurnLimit:    specialistLimit,
		ExecutionTimeout:       s.config.ExecutionTimeout,
		PlanTimeout:            s.config.PlanTimeout,
		MaxRetries:             s.config.MaxRetries,
		PlannerModel:           s.config.LLMModel,
		Emit:                   func(ev *domain.WorkflowEvent) { s.handleEvent(ev) },
		Runner:                 s.runner,
		Policy:                 s.policy,
		Clients:                s.clients,
	})

	_, runErr := eng.Run(ctx, req.Problem)
	s.persistAuditTrail(runID, eng)

	if runErr != nil {
		status := domain.RunStatusFailed
		if ctx.Err() != nil && errors.Is(runErr, context.Canceled) {
			status = domain.RunStatusCancelled
		}
		errData, _ := json.Marshal(map[string]string{"message": runErr.Error()})
		if err := s.store.UpdateRunStatus(context.Background(), runID, status, errData); err != nil {
			log.Printf("ERROR: failed to update run status: %v", err)
		}
		return
	}

	if err := s.store.UpdateRunProgress(context.Background(), runID, 100); err != nil {
		log.Printf("ERROR: failed to update run progress: %v", err)
	}
	if err := s.store.UpdateRunStatus(context.Background(), runID, domain.RunStatusCompleted, nil); err != nil {
		log.Printf("ERROR: failed to update run status: %v", err)
	}
}

// handleEvent mirrors stage and progress events into the run store, then
// publishes the event to the bus.
func (s *Service) handleEvent(ev *domain.WorkflowEvent) {
	ctx := context.Background()

	switch ev.Kind {
	case domain.KindStageStarted:
		if stageID, ok := ev.Payload["stage_id"].(string); ok {
			ts := ev.Ts
			if err := s.store.UpdateStage(ctx, ev.RunID, domain.Stage{
				StageID:   stageID,
				Name:      stageID,
				Status:    domain.StageStatusRunning,
				StartedAt: &ts,
			}); err != nil {
				log.Printf("ERROR: failed to update stage %s: %v", stageID, err)
			}
		}
	case domain.KindStageCompleted:
		if stageID, ok := ev.Payload["stage_id"].(string); ok {
			ts := ev.Ts
			var durationMs int64
			if d, ok := ev.Payload["durationMs"].(int64); ok {
				durationMs = d
			}
			started := ts.Add(-time.Duration(durationMs) * time.Millisecond)
			if err := s.store.UpdateStage(ctx, ev.RunID, domain.Stage{
				StageID:    stageID,
				Name:       stageID,
				Status:     domain.StageStatusSucceeded,
				StartedAt:  &started,
				EndedAt:    &ts,
				DurationMs: durationMs,
			}); err != nil {
				log.Printf("ERROR: failed to update stage %s: %v", stageID, err)
			}
		}
	case domain.KindProgressUpdate:
		if ev.ProgressPct != nil {
			if err := s.store.UpdateRunProgress(ctx, ev.RunID, *ev.ProgressPct); err != nil {
				log.Printf("ERROR: failed to update run progress: %v", err)
			}
		}
	}

	s.bus.Publish(ctx, ev)
}

func (s *Service) persistAuditTrail(runID string, eng *engine.Engine) {
	ctx := context.Background()
	for _, dec := range eng.Decisions() {
		if err := s.store.SaveDecision(ctx, dec); err != nil {
			log.Printf("ERROR: failed to save decision run=%s: %v", runID, err)
		}
	}
	for _, ev := range eng.Evidence() {
		if err := s.store.SaveEvidence(ctx, ev); err != nil {
			log.Printf("ERROR: failed to save evidence run=%s: %v", runID, err)
		}
	}
}

// GetRun returns the run snapshot.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists runs, optionally filtered by status.
func (s *Service) ListRuns(ctx context.Context, status domain.RunStatus, limit, offset int) ([]domain.Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListRuns(ctx, status, limit, offset)
}

// CancelRun stops a live run. An already-terminal run is a no-op. A run
// with no live goroutine (after a restart) is marked cancelled directly.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}

	s.mu.Lock()
	cancel, live := s.cancels[runID]
	s.mu.Unlock()
	if live {
		log.Printf("INFO: cancelling run %s", runID)
		cancel()
		return nil
	}

	errData, _ := json.Marshal(map[string]string{"message": "cancelled by operator"})
	return s.store.UpdateRunStatus(ctx, runID, domain.RunStatusCancelled, errData)
}
