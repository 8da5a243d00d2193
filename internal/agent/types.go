package agent

// ChunkType tags one streamed agent event. The set mirrors what the agent
// process emits; unknown types pass through untouched so new agent builds
// keep working against an older orchestrator.
type ChunkType string

const (
	ChunkThinking   ChunkType = "thinking"
	ChunkToolCall   ChunkType = "tool_call"
	ChunkToolResult ChunkType = "tool_result"
	ChunkStatus     ChunkType = "status"
	ChunkText       ChunkType = "text"
	ChunkDone       ChunkType = "done"
	ChunkError      ChunkType = "error"
)

// StreamChunk is one decoded SSE event from the agent's chat stream.
type StreamChunk struct {
	Type     ChunkType      `json:"type"`
	Content  string         `json:"content,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChatTurn is one prior exchange replayed to the agent for context.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message   string     `json:"message"`
	History   []ChatTurn `json:"history,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
}

type PRRequest struct {
	FeatureName string `json:"featureName"`
	SessionID   string `json:"sessionId,omitempty"`
}

// PRResult is what the agent reports after pushing a branch and opening a
// pull request.
type PRResult struct {
	Branch string `json:"branch"`
	PRURL  string `json:"prUrl"`
	Output string `json:"output,omitempty"`
}
