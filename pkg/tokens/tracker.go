// Package tokens tracks an approximate token budget for prompt
// material: a per-component breakdown against a fixed context window
// limit, warning/critical threshold flags, and a bounded telemetry
// ring for monitoring endpoints.
package tokens

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/AlejandroLoraG/luke-poc/pkg/types"
)

// Threshold defaults, as fractions of the context window limit.
const (
	WarningThreshold  = 0.80
	CriticalThreshold = 0.95
)

// turnOverheadTokens covers the "User:" / "Agent:" labels and blank
// lines added when a turn is rendered into the prompt.
const turnOverheadTokens = 4

// Usage is the token breakdown for one prompt assembly. It is a derived
// value, never persisted.
type Usage struct {
	SystemPrompt        int     `json:"system_prompt"`
	ConversationHistory int     `json:"conversation_history"`
	WorkflowContext     int     `json:"workflow_context"`
	Total               int     `json:"total"`
	PercentOfLimit      float64 `json:"percentage_of_limit"`
}

// Warning reports whether usage is at or past 80% of the limit.
func (u Usage) Warning() bool { return u.AtLeast(WarningThreshold) }

// Critical reports whether usage is at or past 95% of the limit.
func (u Usage) Critical() bool { return u.AtLeast(CriticalThreshold) }

// AtLeast reports whether usage is at or past the given fraction of the
// limit (0.0-1.0).
func (u Usage) AtLeast(threshold float64) bool {
	return u.PercentOfLimit >= threshold*100
}

// Sample is one telemetry ring entry.
type Sample struct {
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
	Usage          Usage     `json:"usage"`
	Warning        bool      `json:"warning"`
	Critical       bool      `json:"critical"`
}

// Stats aggregates the telemetry ring.
type Stats struct {
	Samples            int     `json:"samples"`
	AverageTotal       float64 `json:"average_total"`
	MaxTotal           int     `json:"max_total"`
	WarningTrips       int     `json:"warning_trips"`
	CriticalTrips      int     `json:"critical_trips"`
	ContextWindowLimit int     `json:"context_window_limit"`
	Estimator          string  `json:"estimator"`
}

// Tracker computes usage breakdowns and retains a bounded history of
// them. All methods are safe for concurrent use and never fail:
// malformed or empty inputs count as zero tokens.
type Tracker struct {
	limit     int
	estimator Estimator

	mu      sync.Mutex
	ring    []Sample
	ringCap int
	next    int
	filled  bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEstimator replaces the default fixed-ratio estimator.
func WithEstimator(e Estimator) Option {
	return func(t *Tracker) {
		if e != nil {
			t.estimator = e
		}
	}
}

// WithTelemetrySize bounds the telemetry ring (default 100).
func WithTelemetrySize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.ringCap = n
		}
	}
}

// NewTracker creates a tracker for the given context window limit.
func NewTracker(contextWindowLimit int, opts ...Option) *Tracker {
	t := &Tracker{
		limit:     contextWindowLimit,
		estimator: RatioEstimator{},
		ringCap:   100,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ring = make([]Sample, t.ringCap)
	return t
}

// Limit returns the configured context window limit.
func (t *Tracker) Limit() int { return t.limit }

// CountTokens estimates the token cost of text.
func (t *Tracker) CountTokens(text string) int {
	return t.estimator.EstimateTokens(text)
}

// CountTurnTokens estimates the cost of a conversation history,
// charging each turn's messages plus its formatting overhead.
func (t *Tracker) CountTurnTokens(turns []types.Turn) int {
	total := 0
	for _, turn := range turns {
		total += t.estimator.EstimateTokens(turn.UserMessage)
		total += t.estimator.EstimateTokens(turn.AgentMessage)
		total += turnOverheadTokens
	}
	return total
}

// CountWorkflowTokens estimates the cost of a workflow specification
// document as it would appear in the prompt (indented JSON). A nil or
// unmarshalable document counts as zero.
func (t *Tracker) CountWorkflowTokens(doc any) int {
	if doc == nil {
		return 0
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0
	}
	return t.estimator.EstimateTokens(string(data))
}

// Usage computes the breakdown for one prompt assembly and records a
// telemetry sample for the conversation.
func (t *Tracker) Usage(conversationID, systemPrompt, history string, workflowDoc any) Usage {
	system := t.CountTokens(systemPrompt)
	hist := t.CountTokens(history)
	workflow := t.CountWorkflowTokens(workflowDoc)
	total := system + hist + workflow

	var percent float64
	if t.limit > 0 {
		percent = math.Round(float64(total)/float64(t.limit)*100*100) / 100
	}

	usage := Usage{
		SystemPrompt:        system,
		ConversationHistory: hist,
		WorkflowContext:     workflow,
		Total:               total,
		PercentOfLimit:      percent,
	}

	t.record(Sample{
		ConversationID: conversationID,
		Timestamp:      time.Now(),
		Usage:          usage,
		Warning:        usage.Warning(),
		Critical:       usage.Critical(),
	})
	return usage
}

func (t *Tracker) record(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ring[t.next] = s
	t.next++
	if t.next == t.ringCap {
		t.next = 0
		t.filled = true
	}
}

// Samples returns the retained telemetry entries, oldest first.
func (t *Tracker) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.filled {
		out := make([]Sample, t.next)
		copy(out, t.ring[:t.next])
		return out
	}
	out := make([]Sample, 0, t.ringCap)
	out = append(out, t.ring[t.next:]...)
	out = append(out, t.ring[:t.next]...)
	return out
}

// Stats aggregates the telemetry ring.
func (t *Tracker) Stats() Stats {
	samples := t.Samples()

	stats := Stats{
		Samples:            len(samples),
		ContextWindowLimit: t.limit,
		Estimator:          t.estimator.Description(),
	}
	if len(samples) == 0 {
		return stats
	}

	sum := 0
	for _, s := range samples {
		sum += s.Usage.Total
		if s.Usage.Total > stats.MaxTotal {
			stats.MaxTotal = s.Usage.Total
		}
		if s.Warning {
			stats.WarningTrips++
		}
		if s.Critical {
			stats.CriticalTrips++
		}
	}
	stats.AverageTotal = float64(sum) / float64(len(samples))
	return stats
}

// Remaining returns the tokens left in the context window.
func (t *Tracker) Remaining(currentTotal int) int {
	if remaining := t.limit - currentTotal; remaining > 0 {
		return remaining
	}
	return 0
}

// EstimateTurnsLeft guesses how many more turns fit, given an average
// per-turn cost.
func (t *Tracker) EstimateTurnsLeft(currentTotal, avgTurnTokens int) int {
	if avgTurnTokens <= 0 {
		return 0
	}
	return t.Remaining(currentTotal) / avgTurnTokens
}
