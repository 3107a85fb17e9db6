package domain

import (
	"time"

	"github.com/google/uuid"
)

// Actor identifies who produced an event, for UI rendering.
type Actor struct {
	Kind string `json:"kind"` // orchestrator or agent
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// WorkflowEvent is the wire record for the per-run replay log.
// Sequence is assigned by the event bus and strictly increases per run.
type WorkflowEvent struct {
	EventID  string `json:"event_id"`
	RunID    string `json:"run_id"`
	StreamID string `json:"stream_id,omitempty"`

	Ts       time.Time `json:"ts"`
	Sequence int64     `json:"sequence"`

	Level EventLevel `json:"level"`
	Kind  EventKind  `json:"kind"`

	StageID   string `json:"stage_id,omitempty"`
	StageName string `json:"stage_name,omitempty"`

	AgentName    string `json:"agent_name,omitempty"`
	ExecutorName string `json:"executor_name,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`

	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
	Actor   Actor          `json:"actor"`

	TraceID      string `json:"trace_id,omitempty"`
	SpanID       string `json:"span_id,omitempty"`
	ParentSpanID string `json:"parent_span_id,omitempty"`

	ProgressPct *float64 `json:"progress_pct,omitempty"`
	DurationMs  *int64   `json:"duration_ms,omitempty"`
}

// NewEvent constructs an event with a fresh id and timestamp. Sequence
// stays zero until the event bus assigns one.
func NewEvent(runID string, kind EventKind, message string) *WorkflowEvent {
	return &WorkflowEvent{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   runID,
		Ts:      time.Now().UTC(),
		Level:   LevelInfo,
		Kind:    kind,
		Message: message,
		Actor:   Actor{Kind: "orchestrator"},
	}
}

// HeartbeatEvent builds a keepalive event for SSE/websocket streams.
func HeartbeatEvent(runID string, sequence int64) *WorkflowEvent {
	ev := NewEvent(runID, KindHeartbeat, "heartbeat")
	ev.Sequence = sequence
	return ev
}
