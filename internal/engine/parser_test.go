package engine

import (
	"strings"
	"testing"
)

func TestParseCoordinatorArtifactsJSON(t *testing.T) {
	response := "Here is my synthesis.\n```json\n" + `{
  "criteria": ["delay_reduction", "safety_score"],
  "options": [
    {"optionId": "opt-1", "description": "Swap aircraft", "rank": 1,
     "scores": {"delay_reduction": 88.123, "safety_score": 150}},
    {"id": "opt-2", "summary": "Cancel and rebook", "rank": "2",
     "scores": {"delay_reduction": -5}}
  ],
  "selectedOptionId": "opt-1",
  "summary": "Swap aircraft to protect the bank.",
  "timeline": [
    {"time": "T+15m", "action": "Tow spare to gate", "agent": "fleet_recovery"},
    "Brief crews"
  ]
}` + "\n```"

	decision := ParseCoordinatorArtifacts(response)

	if len(decision.Options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(decision.Options))
	}
	if got := decision.Options[0].Scores["delay_reduction"]; got != 88.12 {
		t.Fatalf("score not rounded: %v", got)
	}
	if got := decision.Options[0].Scores["safety_score"]; got != 100 {
		t.Fatalf("score above 100 must clamp, got %v", got)
	}
	if got := decision.Options[1].Scores["delay_reduction"]; got != 0 {
		t.Fatalf("negative score must clamp to 0, got %v", got)
	}
	if decision.Options[1].OptionID != "opt-2" || decision.Options[1].Rank != 2 {
		t.Fatalf("alternate id/rank keys not honored: %+v", decision.Options[1])
	}
	if decision.SelectedOptionID != "opt-1" {
		t.Fatalf("selectedOptionId = %q", decision.SelectedOptionID)
	}
	if len(decision.Timeline) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(decision.Timeline))
	}
	if decision.Timeline[1].Time != "T+1" || decision.Timeline[1].Action != "Brief crews" {
		t.Fatalf("string timeline entry mishandled: %+v", decision.Timeline[1])
	}
	if len(decision.Criteria) != 2 {
		t.Fatalf("explicit criteria replaced: %v", decision.Criteria)
	}
}

func TestParseCoordinatorArtifactsEmbeddedObject(t *testing.T) {
	response := `The assessment follows {"options":[{"optionId":"opt-9","description":"Hold departures","rank":1}],"summary":"Hold until the cell passes."} end of message`
	decision := ParseCoordinatorArtifacts(response)
	if len(decision.Options) != 1 || decision.Options[0].OptionID != "opt-9" {
		t.Fatalf("embedded object not recovered: %+v", decision.Options)
	}
	if decision.SelectedOptionID != "opt-9" {
		t.Fatalf("default selection must be first option, got %q", decision.SelectedOptionID)
	}
	for _, c := range DefaultRecoveryCriteria {
		if _, ok := decision.Options[0].Scores[c]; !ok {
			t.Fatalf("missing default criterion score %s", c)
		}
	}
}

func TestParseCoordinatorArtifactsHeuristic(t *testing.T) {
	response := `Findings reviewed across all specialists.

Option 1: Swap tail N123AA onto the 17:40 bank
Option 2 - Cancel AA2214 and rebook through DFW

- T+15m: Tow spare aircraft to gate
* T+45m - Notify crew scheduling

Recommendation: proceed with opt 2 immediately
Summary: Cancel and rebook minimizes network spread.`

	decision := ParseCoordinatorArtifacts(response)

	if len(decision.Options) != 2 {
		t.Fatalf("expected 2 heuristic options, got %d", len(decision.Options))
	}
	if decision.Options[0].OptionID != "opt-1" || decision.Options[0].Rank != 1 {
		t.Fatalf("option 1 mis-parsed: %+v", decision.Options[0])
	}
	for _, c := range DefaultRecoveryCriteria {
		if decision.Options[0].Scores[c] != 0 {
			t.Fatalf("heuristic options carry zero scores, got %v", decision.Options[0].Scores)
		}
	}
	if len(decision.Timeline) != 2 || decision.Timeline[0].Time != "T+15m" {
		t.Fatalf("timeline mis-parsed: %+v", decision.Timeline)
	}
	if decision.SelectedOptionID != "opt-2" {
		t.Fatalf("recommendation id not normalized, got %q", decision.SelectedOptionID)
	}
	if decision.Summary != "Cancel and rebook minimizes network spread." {
		t.Fatalf("summary line not honored: %q", decision.Summary)
	}
}

func TestParseCoordinatorArtifactsPlainProse(t *testing.T) {
	response := "The disruption is contained and no further action is required at this time."
	decision := ParseCoordinatorArtifacts(response)
	if len(decision.Options) != 0 {
		t.Fatalf("expected no options, got %d", len(decision.Options))
	}
	if !strings.HasPrefix(decision.Summary, "The disruption is contained") {
		t.Fatalf("summary fallback missing: %q", decision.Summary)
	}
}

func TestNormalizeScore(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{88.126, 88.13},
		{"42.5", 42.5},
		{"not a number", 0},
		{nil, 0},
		{250, 100},
		{-3.2, 0},
	}
	for _, tc := range cases {
		if got := normalizeScore(tc.in); got != tc.want {
			t.Fatalf("normalizeScore(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
