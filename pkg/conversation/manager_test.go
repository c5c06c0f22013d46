package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlejandroLoraG/luke-poc/pkg/config"
	"github.com/AlejandroLoraG/luke-poc/pkg/conversation/summary"
	"github.com/AlejandroLoraG/luke-poc/pkg/types"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	return NewManager(config.Default(), newTestStore(t), opts...)
}

func appendTurns(ctx context.Context, m *Manager, conversationID string, n int) {
	for i := 1; i <= n; i++ {
		m.AppendTurn(ctx, conversationID,
			fmt.Sprintf("message %d", i),
			fmt.Sprintf("reply %d", i),
			nil,
		)
	}
}

func TestManagerContextEmptyConversation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	assert.Equal(t, "", m.Context(ctx, "conv_1"))

	// An empty conversation never touches the cache counters.
	stats := m.CacheStats()
	assert.Equal(t, 0, stats.ContextHits)
	assert.Equal(t, 0, stats.ContextMisses)
}

func TestManagerContextBelowThresholdVerbatim(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	m.AppendTurn(ctx, "conv_1", "hello", "hi there", nil)
	m.AppendTurn(ctx, "conv_1", "create a workflow", "sure, what kind?", nil)

	got := m.Context(ctx, "conv_1")
	want := "User: hello\n\nAgent: hi there\n\nUser: create a workflow\n\nAgent: sure, what kind?"
	assert.Equal(t, want, got)
	assert.NotContains(t, got, "[Summary of")
}

func TestManagerContextCacheCoherency(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	appendTurns(ctx, m, "conv_1", 4)

	first := m.Context(ctx, "conv_1")
	second := m.Context(ctx, "conv_1")
	assert.Equal(t, first, second)

	stats := m.CacheStats()
	assert.Equal(t, 1, stats.ContextHits)
	assert.Equal(t, 1, stats.ContextMisses)
	assert.Equal(t, 0.5, stats.ContextHitRate)
}

func TestManagerContextInvalidatedByAppend(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	appendTurns(ctx, m, "conv_1", 2)

	before := m.Context(ctx, "conv_1")
	m.AppendTurn(ctx, "conv_1", "one more thing", "noted", nil)
	after := m.Context(ctx, "conv_1")

	assert.NotEqual(t, before, after)
	assert.Contains(t, after, "one more thing")

	// Both builds were misses.
	stats := m.CacheStats()
	assert.Equal(t, 2, stats.ContextMisses)
	assert.Equal(t, 0, stats.ContextHits)
}

func TestManagerContextCacheTTLExpiry(t *testing.T) {
	cfg := config.Default()
	cfg.CacheTTL = 30 * time.Millisecond
	ctx := context.Background()
	m := NewManager(cfg, newTestStore(t))
	appendTurns(ctx, m, "conv_1", 3)

	m.Context(ctx, "conv_1")
	time.Sleep(50 * time.Millisecond)
	m.Context(ctx, "conv_1")

	stats := m.CacheStats()
	assert.Equal(t, 0, stats.ContextHits)
	assert.Equal(t, 2, stats.ContextMisses)
}

func TestManagerContextSummarizesLongHistory(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	appendTurns(ctx, m, "conv_1", 12)

	got := m.Context(ctx, "conv_1")

	assert.Contains(t, got, "[Early conversation context:]")
	assert.Contains(t, got, "[Summary of 5 middle turns:]")
	assert.Contains(t, got, "[Recent conversation:]")
	// Early and recent turns survive verbatim, middle ones do not.
	assert.Contains(t, got, "message 1")
	assert.Contains(t, got, "message 12")
	assert.NotContains(t, got, "User: message 5")

	cached, ok := m.Summarizer().CachedSummary("conv_1")
	require.True(t, ok)
	assert.NotEmpty(t, cached)
}

type canaryExternal struct {
	calls int
}

func (c *canaryExternal) Summarize(ctx context.Context, turns []types.Turn) (string, error) {
	c.calls++
	return fmt.Sprintf("external summary of %d turns", len(turns)), nil
}

func TestManagerUsesExternalSummarizer(t *testing.T) {
	ctx := context.Background()
	ext := &canaryExternal{}
	m := newTestManager(t, WithExternalSummarizer(ext))
	appendTurns(ctx, m, "conv_1", 12)

	got := m.Context(ctx, "conv_1")
	assert.Contains(t, got, "external summary of 5 turns")
	assert.Equal(t, 1, ext.calls)

	// A cache hit does not re-summarize.
	m.Context(ctx, "conv_1")
	assert.Equal(t, 1, ext.calls)

	// A new turn grows the middle segment and triggers a fresh summary.
	m.AppendTurn(ctx, "conv_1", "message 13", "reply 13", nil)
	m.Context(ctx, "conv_1")
	assert.Equal(t, 2, ext.calls)
}

func TestManagerClear(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	appendTurns(ctx, m, "conv_1", 12)
	m.Context(ctx, "conv_1")
	m.TrackWorkflow("conv_1", "wf_approval", "Document Approval", "created")

	m.Clear(ctx, "conv_1")

	assert.Equal(t, 0, m.TurnCount(ctx, "conv_1"))
	assert.Equal(t, "", m.Context(ctx, "conv_1"))
	_, ok := m.Summarizer().CachedSummary("conv_1")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Memory("conv_1").Len())
}

func TestManagerHistorySurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	st := newTestStore(t)

	m := NewManager(cfg, st)
	appendTurns(ctx, m, "conv_1", 5)

	restarted := NewManager(cfg, st)
	history := restarted.History(ctx, "conv_1")
	require.Len(t, history, 5)
	assert.Equal(t, "message 1", history[0].UserMessage)

	got := restarted.Context(ctx, "conv_1")
	assert.True(t, strings.HasPrefix(got, "User: message 1"))
}

func TestManagerWorkflowCache(t *testing.T) {
	m := newTestManager(t)

	doc := map[string]any{"specId": "wf_approval", "name": "Document Approval"}
	m.CacheWorkflow("wf_approval", doc)

	got, ok := m.CachedWorkflow("wf_approval")
	require.True(t, ok)
	assert.Equal(t, doc, got)

	_, ok = m.CachedWorkflow("wf_missing")
	assert.False(t, ok)

	stats := m.CacheStats()
	assert.Equal(t, 1, stats.WorkflowHits)
	assert.Equal(t, 1, stats.WorkflowMisses)
	assert.Equal(t, 1, stats.CachedWorkflows)
}

func TestManagerWorkflowCacheTTL(t *testing.T) {
	cfg := config.Default()
	cfg.CacheTTL = 30 * time.Millisecond
	m := NewManager(cfg, newTestStore(t))

	m.CacheWorkflow("wf_approval", "doc v1")
	time.Sleep(50 * time.Millisecond)

	_, ok := m.CachedWorkflow("wf_approval")
	assert.False(t, ok)

	// The stale entry was evicted, not retained.
	stats := m.CacheStats()
	assert.Equal(t, 0, stats.CachedWorkflows)
}

func TestManagerInvalidateWorkflow(t *testing.T) {
	m := newTestManager(t)
	m.CacheWorkflow("wf_approval", "doc v1")

	assert.True(t, m.InvalidateWorkflow("wf_approval"))
	assert.False(t, m.InvalidateWorkflow("wf_approval"))

	_, ok := m.CachedWorkflow("wf_approval")
	assert.False(t, ok)
}

func TestManagerClearWorkflowCache(t *testing.T) {
	m := newTestManager(t)
	m.CacheWorkflow("wf_a", 1)
	m.CacheWorkflow("wf_b", 2)

	m.ClearWorkflowCache()
	assert.Equal(t, 0, m.CacheStats().CachedWorkflows)
}

func TestManagerResetCacheStats(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	appendTurns(ctx, m, "conv_1", 2)
	m.Context(ctx, "conv_1")
	m.Context(ctx, "conv_1")

	m.ResetCacheStats()
	stats := m.CacheStats()
	assert.Equal(t, 0, stats.ContextHits)
	assert.Equal(t, 0, stats.ContextMisses)
	// Cached entries are untouched.
	assert.Equal(t, 1, stats.CachedConversations)
}

func TestManagerMemoryPerConversation(t *testing.T) {
	m := newTestManager(t)

	m.TrackWorkflow("conv_a", "wf_approval", "Document Approval", "created")
	m.TrackWorkflow("conv_b", "wf_intake", "Request Intake", "discussed")

	assert.Equal(t, 1, m.Memory("conv_a").Len())
	assert.Equal(t, 1, m.Memory("conv_b").Len())

	ref, ok := m.Memory("conv_a").Get("wf_approval")
	require.True(t, ok)
	assert.Equal(t, "Document Approval", ref.Name)
	assert.Contains(t, ref.Aliases, "doc approval")

	// Same instance on repeat access.
	assert.Same(t, m.Memory("conv_a"), m.Memory("conv_a"))
}

var _ summary.Summarizer = (*canaryExternal)(nil)
