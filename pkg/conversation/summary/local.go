package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/AlejandroLoraG/luke-poc/pkg/types"
)

// Local is the deterministic fallback summarizer. It buckets user
// messages into coarse topics by keyword and lists up to three of them;
// it never fails and needs no external services.
type Local struct{}

// Summarize implements Summarizer. The error is always nil.
func (l Local) Summarize(_ context.Context, turns []types.Turn) (string, error) {
	return l.summarize(turns), nil
}

func (l Local) summarize(turns []types.Turn) string {
	if len(turns) == 0 {
		return "No conversation history"
	}

	topics := extractTopics(turns)

	parts := []string{fmt.Sprintf("Discussed %d topics including:", len(turns))}
	listed := topics
	if len(listed) > 3 {
		listed = listed[:3]
	}
	for _, topic := range listed {
		parts = append(parts, "- "+topic)
	}
	if len(topics) > 3 {
		parts = append(parts, fmt.Sprintf("- And %d more topics...", len(topics)-3))
	}

	return strings.Join(parts, "\n")
}

// extractTopics buckets each user message by keyword, deduplicating
// while preserving first-seen order.
func extractTopics(turns []types.Turn) []string {
	seen := make(map[string]struct{})
	var topics []string
	add := func(topic string) {
		if _, dup := seen[topic]; dup {
			return
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}

	for _, turn := range turns {
		message := strings.ToLower(turn.UserMessage)

		switch {
		case strings.Contains(message, "create") || strings.Contains(message, "new"):
			add("Workflow creation discussion")
		case strings.Contains(message, "modify") || strings.Contains(message, "change"):
			add("Workflow modification")
		case strings.Contains(message, "explain") || strings.Contains(message, "what is"):
			add("Workflow explanation")
		case strings.Contains(message, "workflow"):
			add("Workflow-related question")
		case len(turn.UserMessage) > 10:
			truncated := turn.UserMessage
			if len(truncated) > 50 {
				truncated = truncated[:50]
			}
			add(truncated + "...")
		}
	}

	return topics
}
