package engine

import (
	"strings"

	"github.com/hliang02/skyops/internal/workflow"
)

// maxResponseTextLen bounds how much agent output flows into summaries
// and evidence snippets.
const maxResponseTextLen = 1200

// ExtractResponseText flattens an agent response into one plain-text
// string, tolerant of the content shapes runners produce.
func ExtractResponseText(resp *workflow.AgentResponse) string {
	if resp == nil {
		return ""
	}
	var chunks []string
	for _, msg := range resp.Messages {
		if text := strings.TrimSpace(workflow.Text(msg.Content)); text != "" {
			chunks = append(chunks, text)
		}
	}
	merged := strings.TrimSpace(strings.Join(chunks, " "))
	return truncate(merged, maxResponseTextLen)
}
