package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient is a deterministic in-process stand-in for the provider,
// selected when SKYOPS_MODE=MOCK. It recognizes the three request
// shapes the engine issues: planning calls, specialist analysis, and
// coordinator synthesis.
type MockClient struct{}

// NewMockClient creates a new mock chat client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ LLMClient = (*MockClient)(nil)

// CreateChatCompletion returns a canned response matched to the request.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	content := m.respond(req)
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      &ChatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: &Usage{
			PromptTokens:     m.estimateTokens(req),
			CompletionTokens: len(content) / 4,
			TotalTokens:      m.estimateTokens(req) + len(content)/4,
		},
	}, nil
}

// CreateChatCompletionStream simulates streaming by chunking the canned
// response.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	content := m.respond(req)
	id := fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	chunks := splitIntoChunks(content, 48)
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		finishReason := ""
		if i == len(chunks)-1 {
			finishReason = "stop"
		}
		streamChunk := &StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []Choice{
				{
					Index:        0,
					Delta:        &ChatMessage{Role: "assistant", Content: chunk},
					FinishReason: finishReason,
				},
			},
		}
		if err := callback(streamChunk); err != nil {
			return nil, err
		}
	}

	return &Usage{
		PromptTokens:     m.estimateTokens(req),
		CompletionTokens: len(content) / 4,
		TotalTokens:      m.estimateTokens(req) + len(content)/4,
	}, nil
}

const mockPlanJSON = `{
  "selectedAgentIds": ["situation_assessment", "fleet_recovery", "crew_recovery", "network_impact", "weather_safety", "passenger_impact", "recovery_coordinator"],
  "executionOrder": ["situation_assessment", "fleet_recovery", "crew_recovery", "network_impact", "weather_safety", "passenger_impact", "recovery_coordinator"],
  "excludedAgentIds": [],
  "coordinatorAgentId": "recovery_coordinator",
  "confidence": 0.9,
  "reasoning": "Hub disruption requires the full recovery pod.",
  "agentReasons": {}
}`

const mockCoordinatorJSON = "```json\n" + `{
  "criteria": ["delay_reduction", "crew_margin", "safety_score", "cost_impact", "passenger_impact"],
  "options": [
    {"optionId": "opt-1", "description": "Swap tails and re-crew the evening bank", "rank": 1,
     "scores": {"delay_reduction": 82, "crew_margin": 71, "safety_score": 95, "cost_impact": 64, "passenger_impact": 78}},
    {"optionId": "opt-2", "description": "Cancel thin sectors, protect connections", "rank": 2,
     "scores": {"delay_reduction": 68, "crew_margin": 88, "safety_score": 96, "cost_impact": 52, "passenger_impact": 61}}
  ],
  "selectedOptionId": "opt-1",
  "summary": "Recover the hub by swapping available tails onto the delayed evening bank while holding reserve crews.",
  "timeline": [
    {"time": "T+0h", "action": "Issue tail swaps for the evening bank", "agent": "fleet_recovery"},
    {"time": "T+1h", "action": "Assign reserve crews within duty limits", "agent": "crew_recovery"},
    {"time": "T+2h", "action": "Rebook at-risk connections", "agent": "passenger_impact"}
  ]
}` + "\n```"

func (m *MockClient) respond(req *ChatCompletionRequest) string {
	var system, lastUser string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = msg.Content
		}
		if msg.Role == "user" {
			lastUser = msg.Content
		}
	}
	combined := strings.ToLower(system + " " + lastUser)

	switch {
	case strings.Contains(combined, "selectedagentids"):
		return mockPlanJSON
	case strings.Contains(combined, "coordinator") || strings.Contains(combined, "rank the recovery options"):
		return mockCoordinatorJSON
	default:
		return fmt.Sprintf(
			"Assessment: reviewed operational data for the stated problem. "+
				"Findings indicate constrained capacity with recoverable margins. "+
				"Recommend mitigation within current limits. (input: %s)",
			truncate(lastUser, 100))
	}
}

func (m *MockClient) estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}

func splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return []string{""}
	}
	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
