// Package workflow builds and executes agent topologies: the strict
// pipeline and the coordinator-hub handoff mesh. The dispatcher emits a
// raw callback stream that the engine normalizes into workflow events.
package workflow

import (
	"context"
	"fmt"
	"strings"
)

// Message is one conversational turn accumulated during execution.
// Content shape varies by agent runtime: plain string, a list of parts,
// or a value exposing a text accessor.
type Message struct {
	AgentID string
	Role    string
	Content any
}

// TextPart is one structured content part.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Texter is implemented by content values that expose their text.
type Texter interface {
	Text() string
}

// Text normalizes any supported content shape to a string. Priority:
// plain string, part list, text accessor, stringification.
func Text(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []TextPart:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
		return strings.Join(parts, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch p := item.(type) {
			case string:
				parts = append(parts, p)
			case TextPart:
				if p.Text != "" {
					parts = append(parts, p.Text)
				}
			case map[string]any:
				if s, ok := p["text"].(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
		}
		return strings.Join(parts, " ")
	case Texter:
		return v.Text()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AgentResponse is the result of one agent invocation.
type AgentResponse struct {
	Messages  []Message
	HandoffTo string // requested next agent, mesh only
	ToolsUsed []string
}

// Invocation describes one agent turn for a runner.
type Invocation struct {
	AgentID    string
	Problem    string
	Transcript []Message
	OnDelta    func(text string) // streaming callback, may be nil
}

// AgentRunner executes agents. The orchestration layer treats the agent
// runtime as an opaque capability behind this interface.
type AgentRunner interface {
	Invoke(ctx context.Context, inv Invocation) (*AgentResponse, error)
}
