// Package summary compacts long conversation histories. The earliest
// turns and the most recent turns stay verbatim; the middle is replaced
// by a summary, produced by an optional external (LLM-backed)
// Summarizer with a deterministic local fallback.
package summary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AlejandroLoraG/luke-poc/pkg/logging"
	"github.com/AlejandroLoraG/luke-poc/pkg/types"
)

// Summarizer produces a compact summary of a block of turns. The
// Progressive compactor only hands it the middle segment.
type Summarizer interface {
	Summarize(ctx context.Context, turns []types.Turn) (string, error)
}

// Defaults matching the production deployment.
const (
	DefaultThreshold      = 0.70
	DefaultPreserveRecent = 5
	DefaultPreserveEarly  = 2
)

// Progressive splits a turn log into early/middle/recent segments once
// the log crosses a threshold fraction of its maximum length, and keeps
// the last produced summary per conversation for inspection.
type Progressive struct {
	maxTurns       int
	threshold      float64
	preserveRecent int
	preserveEarly  int

	external Summarizer
	timeout  time.Duration
	local    Local
	log      *logging.Logger

	mu        sync.Mutex
	summaries map[string]string
}

// Option configures a Progressive.
type Option func(*Progressive)

// WithThreshold sets the trigger fraction (0.0-1.0) of maxTurns.
func WithThreshold(threshold float64) Option {
	return func(p *Progressive) {
		if threshold > 0 && threshold <= 1 {
			p.threshold = threshold
		}
	}
}

// WithPreserveWindows sets how many early and recent turns stay
// verbatim.
func WithPreserveWindows(early, recent int) Option {
	return func(p *Progressive) {
		if early >= 0 {
			p.preserveEarly = early
		}
		if recent >= 0 {
			p.preserveRecent = recent
		}
	}
}

// WithExternal installs an external summarizer for the middle segment.
// Each call is bounded by timeout; on error or timeout the local
// summarizer takes over.
func WithExternal(s Summarizer, timeout time.Duration) Option {
	return func(p *Progressive) {
		p.external = s
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewProgressive creates a compactor for logs bounded to maxTurns.
func NewProgressive(maxTurns int, opts ...Option) *Progressive {
	p := &Progressive{
		maxTurns:       maxTurns,
		threshold:      DefaultThreshold,
		preserveRecent: DefaultPreserveRecent,
		preserveEarly:  DefaultPreserveEarly,
		timeout:        30 * time.Second,
		summaries:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log, _ = logging.NewLogger("summarizer")
	return p
}

// ShouldSummarize reports whether a log of the given length has crossed
// the summarization threshold.
func (p *Progressive) ShouldSummarize(turnCount int) bool {
	return turnCount >= int(float64(p.maxTurns)*p.threshold)
}

// Summarize compacts turns for one conversation. Below the threshold it
// returns ("", turns) unchanged. Otherwise it returns a header — early
// turns verbatim, a summary of the middle segment, and a marker for the
// recent turns that follow — plus the recent turns the caller must
// still format verbatim.
func (p *Progressive) Summarize(ctx context.Context, conversationID string, turns []types.Turn) (string, []types.Turn) {
	if !p.ShouldSummarize(len(turns)) {
		return "", turns
	}

	earlyCutoff := p.preserveEarly
	if earlyCutoff > len(turns) {
		earlyCutoff = len(turns)
	}
	recentStart := len(turns) - p.preserveRecent
	if recentStart < earlyCutoff {
		recentStart = earlyCutoff
	}

	early := turns[:earlyCutoff]
	middle := turns[earlyCutoff:recentStart]
	recent := turns[recentStart:]

	summaryText := p.summarizeMiddle(ctx, middle)

	if len(middle) > 0 {
		p.mu.Lock()
		p.summaries[conversationID] = summaryText
		p.mu.Unlock()
	}

	header := fmt.Sprintf("[Early conversation context:]\n%s\n\n[Summary of %d middle turns:]\n%s\n\n[Recent conversation:]",
		types.FormatTurns(early), len(middle), summaryText)

	return header, recent
}

func (p *Progressive) summarizeMiddle(ctx context.Context, middle []types.Turn) string {
	if p.external == nil || len(middle) == 0 {
		return p.local.summarize(middle)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.external.Summarize(callCtx, middle)
	if err != nil {
		p.log.Warnf("external summarization failed, using local fallback: %v", err)
		return p.local.summarize(middle)
	}
	return text
}

// CachedSummary returns the last summary produced for a conversation.
func (p *Progressive) CachedSummary(conversationID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.summaries[conversationID]
	return text, ok
}

// ClearCache drops cached summaries for the given conversations, or all
// of them when none are named.
func (p *Progressive) ClearCache(conversationIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(conversationIDs) == 0 {
		p.summaries = make(map[string]string)
		return
	}
	for _, id := range conversationIDs {
		delete(p.summaries, id)
	}
}

// Stats describes the compactor configuration and cache occupancy.
type Stats struct {
	MaxTurns        int     `json:"max_turns"`
	Threshold       float64 `json:"summary_threshold"`
	ThresholdTurns  int     `json:"threshold_turns"`
	PreserveRecent  int     `json:"preserve_recent"`
	PreserveEarly   int     `json:"preserve_early"`
	CachedSummaries int     `json:"cached_summaries"`
}

// Stats returns the compactor configuration and cache occupancy.
func (p *Progressive) Stats() Stats {
	p.mu.Lock()
	cached := len(p.summaries)
	p.mu.Unlock()

	return Stats{
		MaxTurns:        p.maxTurns,
		Threshold:       p.threshold,
		ThresholdTurns:  int(float64(p.maxTurns) * p.threshold),
		PreserveRecent:  p.preserveRecent,
		PreserveEarly:   p.preserveEarly,
		CachedSummaries: cached,
	}
}
