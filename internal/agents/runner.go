// Package agents runs individual registry agents over chat-completion
// clients, translating transcripts into provider requests and streamed
// responses back into workflow messages.
package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/registry"
	"github.com/hliang02/skyops/internal/workflow"
)

// handoffLineRe extracts an explicit delegation directive from agent
// output.
var handoffLineRe = regexp.MustCompile(`(?im)^HANDOFF:\s*([a-z0-9_]+)\s*$`)

// Runner implements workflow.AgentRunner over the shared client cache.
type Runner struct {
	clients *llm.ClientCache
	model   string
}

// NewRunner creates a runner using the given client cache and model.
func NewRunner(clients *llm.ClientCache, model string) *Runner {
	return &Runner{clients: clients, model: model}
}

var _ workflow.AgentRunner = (*Runner)(nil)

// Invoke executes one agent turn. Streaming deltas flow through
// inv.OnDelta as they arrive; the full text is returned as one
// assistant message.
func (r *Runner) Invoke(ctx context.Context, inv workflow.Invocation) (*workflow.AgentResponse, error) {
	profile, ok := registry.AgentByID(inv.AgentID)
	if !ok {
		return nil, fmt.Errorf("unknown agent %s", inv.AgentID)
	}

	req := &llm.ChatCompletionRequest{
		Model:    r.model,
		Messages: buildMessages(profile, inv),
		Stream:   true,
	}

	role := "specialist"
	if profile.Category == domain.CategoryCoordinator {
		role = "coordinator"
	}
	client := r.clients.Get(role)

	var sb strings.Builder
	_, err := client.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta == nil || choice.Delta.Content == "" {
				continue
			}
			sb.WriteString(choice.Delta.Content)
			if inv.OnDelta != nil {
				inv.OnDelta(choice.Delta.Content)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s completion: %w", inv.AgentID, err)
	}

	content := strings.TrimSpace(sb.String())
	resp := &workflow.AgentResponse{
		Messages: []workflow.Message{
			{AgentID: inv.AgentID, Role: "assistant", Content: content},
		},
	}
	if m := handoffLineRe.FindStringSubmatch(content); m != nil {
		resp.HandoffTo = m[1]
	}
	return resp, nil
}

// buildMessages renders the system prompt for the agent plus the shared
// conversation transcript.
func buildMessages(profile domain.AgentProfile, inv workflow.Invocation) []llm.ChatMessage {
	messages := []llm.ChatMessage{
		{Role: "system", Content: systemPrompt(profile)},
	}
	for _, msg := range inv.Transcript {
		text := workflow.Text(msg.Content)
		if text == "" {
			continue
		}
		if msg.Role == "user" || msg.AgentID == "user" {
			messages = append(messages, llm.ChatMessage{Role: "user", Content: text})
			continue
		}
		// Other agents' turns are presented as attributed context.
		if msg.AgentID != "" && msg.AgentID != profile.ID {
			text = fmt.Sprintf("[%s] %s", msg.AgentID, text)
		}
		messages = append(messages, llm.ChatMessage{Role: "assistant", Content: text})
	}
	return messages
}

func systemPrompt(profile domain.AgentProfile) string {
	if profile.Category == domain.CategoryCoordinator {
		return coordinatorPrompt(profile)
	}
	return specialistPrompt(profile)
}

func specialistPrompt(profile domain.AgentProfile) string {
	stores := "no registered datastores"
	if len(profile.DataSources) > 0 {
		stores = strings.Join(profile.DataSources, ", ")
	}
	return fmt.Sprintf(`You are %s, an aviation operations specialist.
%s
Your registered datastores: %s. Base every finding on evidence from these stores only.
Produce a concise analysis of the problem from your domain's perspective:
observed state, constraints, risks, and concrete mitigations with expected impact.`,
		profile.Name, profile.Description, stores)
}

func coordinatorPrompt(profile domain.AgentProfile) string {
	return fmt.Sprintf(`You are %s, the recovery coordinator for aviation disruptions.
%s
Synthesize the specialist findings into a decision. Rank the recovery options and return strict JSON with keys:
criteria, options (optionId, description, rank, scores per criterion scored 0-100), selectedOptionId, summary, timeline (time, action, agent).
To delegate another specialist turn before deciding, reply with a single line:
HANDOFF: <agent_id>`,
		profile.Name, profile.Description)
}
