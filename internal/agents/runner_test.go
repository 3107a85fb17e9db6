package agents

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/workflow"
)

func mockCache() *llm.ClientCache {
	return llm.NewClientCache(time.Minute, func(string) llm.LLMClient {
		return llm.NewMockClient()
	})
}

func TestInvokeSpecialistStreamsDeltas(t *testing.T) {
	r := NewRunner(mockCache(), "test-model")

	var deltas []string
	resp, err := r.Invoke(context.Background(), workflow.Invocation{
		AgentID: "fleet_recovery",
		Problem: "ground stop at the hub",
		Transcript: []workflow.Message{
			{AgentID: "user", Role: "user", Content: "ground stop at the hub"},
		},
		OnDelta: func(text string) { deltas = append(deltas, text) },
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(resp.Messages))
	}
	full := workflow.Text(resp.Messages[0].Content)
	if full == "" {
		t.Fatal("empty response text")
	}
	if strings.Join(deltas, "") != full {
		t.Fatal("concatenated deltas must equal the final content")
	}
	if resp.HandoffTo != "" {
		t.Fatalf("specialist must not hand off, got %q", resp.HandoffTo)
	}
}

func TestInvokeCoordinatorReturnsStructuredPlan(t *testing.T) {
	r := NewRunner(mockCache(), "test-model")

	resp, err := r.Invoke(context.Background(), workflow.Invocation{
		AgentID: "recovery_coordinator",
		Transcript: []workflow.Message{
			{AgentID: "user", Role: "user", Content: "ground stop at the hub"},
			{AgentID: "fleet_recovery", Role: "assistant", Content: "three spare tails available"},
		},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	text := workflow.Text(resp.Messages[0].Content)
	if !strings.Contains(text, "selectedOptionId") {
		t.Fatalf("coordinator output missing structured plan: %s", text)
	}
}

func TestInvokeUnknownAgentFails(t *testing.T) {
	r := NewRunner(mockCache(), "test-model")
	if _, err := r.Invoke(context.Background(), workflow.Invocation{AgentID: "nope"}); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestHandoffDirectiveParsed(t *testing.T) {
	cache := llm.NewClientCache(time.Minute, func(string) llm.LLMClient {
		return scriptedClient{content: "Need crew legality data first.\nHANDOFF: crew_recovery"}
	})
	r := NewRunner(cache, "test-model")

	resp, err := r.Invoke(context.Background(), workflow.Invocation{AgentID: "recovery_coordinator"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if resp.HandoffTo != "crew_recovery" {
		t.Fatalf("handoff = %q, want crew_recovery", resp.HandoffTo)
	}
}

type scriptedClient struct {
	content string
}

func (c scriptedClient) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return &llm.ChatCompletionResponse{
		Choices: []llm.Choice{{Message: &llm.ChatMessage{Role: "assistant", Content: c.content}}},
	}, nil
}

func (c scriptedClient) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.Usage, error) {
	err := cb(&llm.StreamChunk{Choices: []llm.Choice{{Delta: &llm.ChatMessage{Content: c.content}}}})
	if err != nil {
		return nil, err
	}
	return &llm.Usage{}, nil
}
