package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hliang02/skyops/internal/domain"
)

// DetectScenario classifies a problem statement by keyword overlap.
// Pure function over the static keyword table; ties go to the
// first-registered scenario and an all-zero score falls back to the
// default scenario.
func DetectScenario(problem string) string {
	lower := strings.ToLower(problem)
	best := ""
	bestScore := 0
	for _, s := range scenarios {
		score := 0
		for _, kw := range s.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best = s.Name
			bestScore = score
		}
	}
	if best == "" {
		return DefaultScenario
	}
	return best
}

// SelectAgentsForProblem partitions the full registry into included and
// excluded sets for the detected scenario. The included list is sorted
// ascending by priority, which places the coordinator last.
func SelectAgentsForProblem(problem string) (included, excluded []domain.AgentSelectionResult) {
	scenario := DetectScenario(problem)
	def := ScenarioByName(scenario)

	active := make(map[string]bool, len(def.AgentIDs)+1)
	for _, id := range def.AgentIDs {
		active[id] = true
	}
	active[def.CoordinatorID] = true

	for _, agent := range catalog {
		in := active[agent.ID]
		reason := fmt.Sprintf("Not needed for %s", scenario)
		if in {
			reason = fmt.Sprintf("Required for %s scenario", scenario)
		}
		result := domain.AgentSelectionResult{
			AgentID:             agent.ID,
			AgentName:           agent.Name,
			ShortName:           agent.ShortName,
			Category:            agent.Category,
			Included:            in,
			Reason:              reason,
			ConditionsEvaluated: []string{scenario, "keyword_match"},
			Priority:            agent.Priority,
			Icon:                agent.Icon,
			Color:               agent.Color,
			DataSources:         agent.DataSources,
		}
		if in {
			included = append(included, result)
		} else {
			excluded = append(excluded, result)
		}
	}

	sort.SliceStable(included, func(i, j int) bool {
		return included[i].Priority < included[j].Priority
	})
	return included, excluded
}
