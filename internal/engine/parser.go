package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hliang02/skyops/internal/domain"
)

// DefaultRecoveryCriteria are the scoring axes used when the
// coordinator omits its own criteria list.
var DefaultRecoveryCriteria = []string{
	"delay_reduction",
	"crew_margin",
	"safety_score",
	"cost_impact",
	"passenger_impact",
}

var (
	fencedBlockRe    = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")
	optionLineRe     = regexp.MustCompile(`(?i)^option\s*(\d+)\s*[:\-).]\s*(.+)$`)
	rankedLineRe     = regexp.MustCompile(`^(\d+)[).:\-]\s*(.+)$`)
	timelineLineRe   = regexp.MustCompile(`(?i)^(?:[-*]\s*)?(T\+\S+)\s*[:\-]\s*(.+)$`)
	recommendLineRe  = regexp.MustCompile(`(?im)^(?:recommend(?:ation)?|selected option)\s*[:\-]\s*(.+)$`)
	optionIDRe       = regexp.MustCompile(`(?i)(opt[-_ ]?\d+)`)
	summaryLineRe    = regexp.MustCompile(`(?im)^summary\s*[:\-]\s*(.+)$`)
	whitespaceRunRe  = regexp.MustCompile(`\s+`)
)

// normalizeScore coerces an arbitrary JSON value to a score in
// [0, 100], rounded to two decimals.
func normalizeScore(value any) float64 {
	var parsed float64
	switch v := value.(type) {
	case float64:
		parsed = v
	case int:
		parsed = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0.0
		}
		parsed = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0.0
		}
		parsed = f
	default:
		return 0.0
	}
	if parsed < 0 {
		parsed = 0
	}
	if parsed > 100 {
		parsed = 100
	}
	return math.Round(parsed*100) / 100
}

// ExtractJSONObject pulls the first JSON object out of free-form model
// output. Fenced code blocks win; otherwise the text is scanned for a
// balanced object starting at each brace.
func ExtractJSONObject(text string) map[string]any {
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &parsed); err == nil {
			return parsed
		}
	}

	for idx := 0; idx < len(text); idx++ {
		if text[idx] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[idx:]))
		var parsed map[string]any
		if err := dec.Decode(&parsed); err == nil && parsed != nil {
			return parsed
		}
	}
	return nil
}

// ParseCoordinatorArtifacts turns the coordinator's final response into
// a structured decision. Structured JSON output is preferred; plain
// prose falls back to line-pattern heuristics.
func ParseCoordinatorArtifacts(responseText string) domain.CoordinatorDecision {
	parsed := ExtractJSONObject(responseText)
	if parsed == nil {
		return parseHeuristicArtifacts(responseText)
	}

	criteria := stringSlice(parsed["criteria"])
	if len(criteria) == 0 {
		criteria = append([]string{}, DefaultRecoveryCriteria...)
	}

	var options []domain.RecoveryOption
	if rawOptions, ok := parsed["options"].([]any); ok {
		for idx, raw := range rawOptions {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			optionID := firstNonEmpty(asString(item["optionId"]), asString(item["id"]))
			if optionID == "" {
				optionID = fmt.Sprintf("opt-%d", idx+1)
			}
			description := firstNonEmpty(asString(item["description"]), asString(item["summary"]))
			if description == "" {
				description = optionID
			}
			rank := idx + 1
			if r, ok := asInt(item["rank"]); ok {
				rank = r
			}
			rawScores, _ := item["scores"].(map[string]any)
			scores := make(map[string]float64, len(criteria))
			for _, criterion := range criteria {
				scores[criterion] = normalizeScore(rawScores[criterion])
			}
			options = append(options, domain.RecoveryOption{
				OptionID:    optionID,
				Description: description,
				Rank:        rank,
				Scores:      scores,
			})
		}
	}

	var timeline []domain.TimelineEntry
	if rawTimeline, ok := parsed["timeline"].([]any); ok {
		for idx, raw := range rawTimeline {
			switch item := raw.(type) {
			case map[string]any:
				entryTime := asString(item["time"])
				if entryTime == "" {
					entryTime = fmt.Sprintf("T+%d", idx)
				}
				action := firstNonEmpty(asString(item["action"]), asString(item["summary"]))
				if action == "" {
					action = "Action"
				}
				timeline = append(timeline, domain.TimelineEntry{
					Time: entryTime, Action: action, Agent: asString(item["agent"]),
				})
			case string:
				timeline = append(timeline, domain.TimelineEntry{
					Time: fmt.Sprintf("T+%d", idx), Action: strings.TrimSpace(item),
				})
			}
		}
	}

	selectedOptionID := asString(parsed["selectedOptionId"])
	summary := strings.TrimSpace(asString(parsed["summary"]))
	if summary == "" {
		summary = truncate(strings.TrimSpace(whitespaceRunRe.ReplaceAllString(responseText, " ")), 280)
	}
	if selectedOptionID == "" && len(options) > 0 {
		selectedOptionID = options[0].OptionID
	}

	if len(options) == 0 && len(timeline) == 0 {
		return parseHeuristicArtifacts(responseText)
	}

	if summary == "" {
		summary = "Coordinator synthesized specialist findings."
	}
	return domain.CoordinatorDecision{
		Criteria:         criteria,
		Options:          options,
		SelectedOptionID: selectedOptionID,
		Summary:          summary,
		Timeline:         timeline,
	}
}

// parseHeuristicArtifacts recovers options and a timeline from plain
// prose when no JSON payload is present.
func parseHeuristicArtifacts(text string) domain.CoordinatorDecision {
	var options []domain.RecoveryOption
	var timeline []domain.TimelineEntry

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		matched := optionLineRe.FindStringSubmatch(line)
		if matched == nil {
			matched = rankedLineRe.FindStringSubmatch(line)
		}
		if matched != nil {
			rank, _ := strconv.Atoi(matched[1])
			scores := make(map[string]float64, len(DefaultRecoveryCriteria))
			for _, criterion := range DefaultRecoveryCriteria {
				scores[criterion] = 0.0
			}
			options = append(options, domain.RecoveryOption{
				OptionID:    fmt.Sprintf("opt-%d", rank),
				Description: strings.TrimSpace(matched[2]),
				Rank:        rank,
				Scores:      scores,
			})
			continue
		}

		if tm := timelineLineRe.FindStringSubmatch(line); tm != nil {
			timeline = append(timeline, domain.TimelineEntry{
				Time:   tm[1],
				Action: strings.TrimSpace(tm[2]),
			})
		}
	}

	selectedOptionID := ""
	recommendMatch := recommendLineRe.FindStringSubmatch(text)
	if recommendMatch != nil {
		if idMatch := optionIDRe.FindStringSubmatch(recommendMatch[1]); idMatch != nil {
			selectedOptionID = strings.ToLower(idMatch[1])
			selectedOptionID = strings.ReplaceAll(selectedOptionID, " ", "-")
			selectedOptionID = strings.ReplaceAll(selectedOptionID, "_", "-")
		}
	}
	if selectedOptionID == "" && len(options) > 0 {
		selectedOptionID = options[0].OptionID
	}

	var summary string
	if sm := summaryLineRe.FindStringSubmatch(text); sm != nil {
		summary = strings.TrimSpace(sm[1])
	} else if recommendMatch != nil {
		summary = strings.TrimSpace(recommendMatch[1])
	} else {
		summary = truncate(strings.TrimSpace(whitespaceRunRe.ReplaceAllString(text, " ")), 280)
	}
	if summary == "" {
		summary = "Coordinator synthesized specialist findings."
	}

	return domain.CoordinatorDecision{
		Criteria:         append([]string{}, DefaultRecoveryCriteria...),
		Options:          options,
		SelectedOptionID: selectedOptionID,
		Summary:          summary,
		Timeline:         timeline,
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
