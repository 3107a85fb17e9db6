package engine

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/registry"
)

const plannerSystemPrompt = "You are an orchestration planner. Choose the best subset of agents and execution order for the query. " +
	"Return strict JSON only with keys: selectedAgentIds, excludedAgentIds, executionOrder, " +
	"coordinatorAgentId, confidence, reasoning, agentReasons. " +
	"Rules: include exactly one coordinator agent and put coordinator last in executionOrder."

// applyLLMDirectedSelection asks the planner model to refine the
// keyword-derived agent set. Any failure leaves the baseline selection
// untouched.
func (e *Engine) applyLLMDirectedSelection(ctx context.Context, problem string) {
	scenarioDef := registry.ScenarioByName(e.scenario)
	defaultCoordinatorID := scenarioDef.CoordinatorID

	baseline := make(map[string]bool, len(e.selected))
	for _, a := range e.selected {
		baseline[a.AgentID] = true
	}

	allProfiles := append(append([]domain.AgentSelectionResult{}, e.selected...), e.excluded...)
	profileMap := make(map[string]domain.AgentSelectionResult, len(allProfiles))
	var selectable []domain.AgentSelectionResult
	for _, p := range allProfiles {
		profileMap[p.AgentID] = p
		if p.Category != domain.CategoryPlaceholder {
			selectable = append(selectable, p)
		}
	}

	plan := e.planAgentSelection(ctx, problem, selectable, defaultCoordinatorID)
	if plan == nil {
		return
	}

	reasoning := strings.TrimSpace(plan.Reasoning)
	if reasoning == "" {
		reasoning = "LLM-directed orchestration selected agent set."
	}
	confidence := plan.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if plan.Confidence == 0 {
		confidence = 0.8
	}

	selectableIDs := make(map[string]bool, len(selectable))
	for _, p := range selectable {
		selectableIDs[p.AgentID] = true
	}

	var selectedIDs []string
	for _, id := range plan.SelectedAgentIDs {
		if selectableIDs[id] {
			selectedIDs = append(selectedIDs, id)
		}
	}
	var executionOrder []string
	for _, id := range plan.ExecutionOrder {
		if selectableIDs[id] {
			executionOrder = append(executionOrder, id)
		}
	}
	excludedIDs := make(map[string]bool)
	for _, id := range plan.ExcludedAgentIDs {
		if selectableIDs[id] {
			excludedIDs[id] = true
		}
	}

	if len(selectedIDs) == 0 {
		for _, a := range e.selected {
			if selectableIDs[a.AgentID] {
				selectedIDs = append(selectedIDs, a.AgentID)
			}
		}
	}
	if len(selectedIDs) == 0 {
		for _, p := range selectable {
			selectedIDs = append(selectedIDs, p.AgentID)
		}
	}

	coordinatorID := strings.TrimSpace(plan.CoordinatorAgentID)
	if coordinatorID != "" {
		if def, ok := registry.AgentByID(coordinatorID); !ok || def.Category != domain.CategoryCoordinator {
			coordinatorID = defaultCoordinatorID
		}
	} else {
		coordinatorID = defaultCoordinatorID
	}
	if coordinatorID != "" && !contains(selectedIDs, coordinatorID) && selectableIDs[coordinatorID] {
		selectedIDs = append(selectedIDs, coordinatorID)
	}

	var ordered []string
	for _, id := range executionOrder {
		if contains(selectedIDs, id) && !contains(ordered, id) {
			ordered = append(ordered, id)
		}
	}
	for _, id := range selectedIDs {
		if !contains(ordered, id) {
			ordered = append(ordered, id)
		}
	}

	// Coordinator always runs last.
	if coordinatorID != "" && contains(ordered, coordinatorID) {
		var rest []string
		for _, id := range ordered {
			if id != coordinatorID {
				rest = append(rest, id)
			}
		}
		ordered = append(rest, coordinatorID)
	}

	orderedSet := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		orderedSet[id] = true
	}

	var selectedProfiles, excludedProfiles []domain.AgentSelectionResult
	for _, id := range ordered {
		profile, ok := profileMap[id]
		if !ok {
			continue
		}
		suffix := strings.TrimSpace(plan.AgentReasons[id])
		profile.Included = true
		profile.Reason = strings.TrimSpace("LLM-selected for this query. " + suffix)
		selectedProfiles = append(selectedProfiles, profile)
	}
	for _, profile := range allProfiles {
		if orderedSet[profile.AgentID] {
			continue
		}
		if excludedIDs[profile.AgentID] || baseline[profile.AgentID] {
			profile.Reason = "LLM-excluded for this query."
		}
		profile.Included = false
		excludedProfiles = append(excludedProfiles, profile)
	}

	if len(selectedProfiles) == 0 {
		return
	}

	e.selected = selectedProfiles
	e.excluded = excludedProfiles
	if coordinatorID != "" {
		e.coordinatorID = coordinatorID
	}

	selectedList := make([]string, 0, len(selectedProfiles))
	for _, p := range selectedProfiles {
		selectedList = append(selectedList, p.AgentID)
	}
	e.trace.Decision("llm_agent_selection", reasoning, confidence, []string{
		"scenario:" + e.scenario,
		"selected:" + strings.Join(selectedList, ","),
	})
}

// planAgentSelection makes the single planning call. Returns nil on any
// timeout, transport or parse failure so selection degrades to the
// keyword baseline.
func (e *Engine) planAgentSelection(ctx context.Context, problem string,
	selectable []domain.AgentSelectionResult, defaultCoordinatorID string) *domain.SelectionPlan {
	if len(selectable) == 0 || e.opts.Clients == nil {
		return nil
	}

	candidates := make([]map[string]any, 0, len(selectable))
	for _, p := range selectable {
		candidates = append(candidates, map[string]any{
			"agentId":         p.AgentID,
			"agentName":       p.AgentName,
			"category":        string(p.Category),
			"priority":        p.Priority,
			"dataSources":     p.DataSources,
			"defaultIncluded": p.Included,
			"defaultReason":   p.Reason,
		})
	}
	userPayload, err := json.Marshal(map[string]any{
		"problem":              problem,
		"scenario":             e.scenario,
		"defaultCoordinatorId": defaultCoordinatorID,
		"candidateAgents":      candidates,
	})
	if err != nil {
		return nil
	}

	planCtx, cancel := context.WithTimeout(ctx, e.opts.PlanTimeout)
	defer cancel()

	temperature := 0.0
	client := e.opts.Clients.Get("planner")
	resp, err := client.CreateChatCompletion(planCtx, &llm.ChatCompletionRequest{
		Model: e.opts.PlannerModel,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: plannerSystemPrompt},
			{Role: "user", Content: string(userPayload)},
		},
		Temperature: &temperature,
	})
	if err != nil {
		log.Printf("WARN: llm orchestration plan failed run=%s scenario=%s: %v", e.runID, e.scenario, err)
		return nil
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		log.Printf("WARN: llm orchestration plan empty run=%s scenario=%s", e.runID, e.scenario)
		return nil
	}

	raw := ExtractJSONObject(resp.Choices[0].Message.Content)
	if raw == nil {
		log.Printf("WARN: llm orchestration plan parse failed run=%s scenario=%s", e.runID, e.scenario)
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var plan domain.SelectionPlan
	if err := json.Unmarshal(encoded, &plan); err != nil {
		log.Printf("WARN: llm orchestration plan decode failed run=%s: %v", e.runID, err)
		return nil
	}
	return &plan
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
