// Package types holds the plain records exchanged between the
// conversation manager's components and its callers.
package types

import (
	"strings"
	"time"
)

// Turn is one user message plus one agent reply, the atomic unit of
// conversation history. Turns are immutable once created.
type Turn struct {
	UserMessage  string    `json:"user_message"`
	AgentMessage string    `json:"agent_response"`
	Timestamp    time.Time `json:"timestamp"`
	ToolsUsed    []string  `json:"mcp_tools_used"`
}

// NewTurn creates a timestamped turn. A nil tools slice is normalized
// to empty so the persisted document always carries the field.
func NewTurn(userMessage, agentMessage string, toolsUsed []string) Turn {
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	return Turn{
		UserMessage:  userMessage,
		AgentMessage: agentMessage,
		Timestamp:    time.Now(),
		ToolsUsed:    toolsUsed,
	}
}

// FormatTurns renders turns as the canonical "User:/Agent:" transcript
// used for prompt context, with a blank line between entries.
func FormatTurns(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	parts := make([]string, 0, len(turns)*2)
	for _, turn := range turns {
		parts = append(parts, "User: "+turn.UserMessage)
		parts = append(parts, "Agent: "+turn.AgentMessage)
	}
	return strings.Join(parts, "\n\n")
}
