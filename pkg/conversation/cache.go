package conversation

import (
	"time"
)

// cachedContext memoizes the formatted context string for one
// conversation. Valid only while the turn count still matches and the
// entry is younger than the TTL.
type cachedContext struct {
	text      string
	turnCount int
	cachedAt  time.Time
}

func (c cachedContext) valid(currentTurnCount int, ttl time.Duration, now time.Time) bool {
	return c.turnCount == currentTurnCount && now.Sub(c.cachedAt) < ttl
}

// cachedWorkflow memoizes a workflow specification document, keyed by
// workflow id and independent of any conversation.
type cachedWorkflow struct {
	doc      any
	cachedAt time.Time
}

func (c cachedWorkflow) valid(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.cachedAt) < ttl
}

// CacheStats reports hit/miss counters for the context cache and the
// workflow document cache.
type CacheStats struct {
	ContextHits         int     `json:"context_hits"`
	ContextMisses       int     `json:"context_misses"`
	ContextHitRate      float64 `json:"context_hit_rate"`
	CachedConversations int     `json:"cached_conversations"`

	WorkflowHits    int     `json:"workflow_hits"`
	WorkflowMisses  int     `json:"workflow_misses"`
	WorkflowHitRate float64 `json:"workflow_hit_rate"`
	CachedWorkflows int     `json:"cached_workflows"`
}

func hitRate(hits, misses int) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
