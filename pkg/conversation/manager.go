// Package conversation tracks multi-turn chat histories: a bounded,
// durable turn log per conversation, a TTL'd cache of the formatted
// context string, progressive summarization of long histories, and
// per-conversation workflow reference memory.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/AlejandroLoraG/luke-poc/pkg/config"
	"github.com/AlejandroLoraG/luke-poc/pkg/conversation/summary"
	"github.com/AlejandroLoraG/luke-poc/pkg/logging"
	"github.com/AlejandroLoraG/luke-poc/pkg/store"
	"github.com/AlejandroLoraG/luke-poc/pkg/types"
	"github.com/AlejandroLoraG/luke-poc/pkg/workflowmem"
)

// Manager is the facade the request layer talks to. It owns the turn
// log, both caches, the summarizer, and the per-conversation workflow
// reference memories.
//
// Each concern is independently locked so unrelated conversations
// never contend on unrelated work.
type Manager struct {
	cfg        config.Config
	log        *logging.Logger
	turns      *TurnLog
	summarizer *summary.Progressive

	ctxMu     sync.Mutex
	contexts  map[string]cachedContext
	ctxHits   int
	ctxMisses int

	wfMu      sync.Mutex
	workflows map[string]cachedWorkflow
	wfHits    int
	wfMisses  int

	memMu    sync.Mutex
	memories map[string]*workflowmem.Memory
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithExternalSummarizer installs an LLM-backed summarizer for history
// compaction; the deterministic local summarizer remains the fallback.
func WithExternalSummarizer(s summary.Summarizer) ManagerOption {
	return func(m *Manager) {
		m.summarizer = summary.NewProgressive(m.cfg.MaxTurns,
			summary.WithThreshold(m.cfg.SummaryThreshold),
			summary.WithPreserveWindows(m.cfg.PreserveEarly, m.cfg.PreserveRecent),
			summary.WithExternal(s, m.cfg.SummarizerTimeout),
		)
	}
}

// NewManager creates a manager backed by the given durable store.
func NewManager(cfg config.Config, st store.Store, opts ...ManagerOption) *Manager {
	logger, _ := logging.NewLogger("conversation")

	m := &Manager{
		cfg:   cfg,
		log:   logger,
		turns: NewTurnLog(st, cfg.MaxTurns),
		summarizer: summary.NewProgressive(cfg.MaxTurns,
			summary.WithThreshold(cfg.SummaryThreshold),
			summary.WithPreserveWindows(cfg.PreserveEarly, cfg.PreserveRecent),
		),
		contexts:  make(map[string]cachedContext),
		workflows: make(map[string]cachedWorkflow),
		memories:  make(map[string]*workflowmem.Memory),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AppendTurn records one exchanged turn and returns the new log length.
// The context cache entry for the conversation is invalidated so the
// next Context call reflects the new turn.
func (m *Manager) AppendTurn(ctx context.Context, conversationID, userMessage, agentMessage string, toolsUsed []string) int {
	n := m.turns.Append(ctx, conversationID, types.NewTurn(userMessage, agentMessage, toolsUsed))
	m.invalidateContext(conversationID)
	return n
}

// History returns the conversation's retained turns, oldest first.
func (m *Manager) History(ctx context.Context, conversationID string) []types.Turn {
	return m.turns.Get(ctx, conversationID)
}

// TurnCount returns the conversation's current turn count.
func (m *Manager) TurnCount(ctx context.Context, conversationID string) int {
	return m.turns.Count(ctx, conversationID)
}

// Context returns the formatted (possibly summarized) context string
// for a conversation. Results are cached per conversation and reused
// while the turn count is unchanged and the entry is younger than the
// configured TTL.
//
// The summarizer — which may call an external model — runs without any
// conversation-level lock held; the result is committed keyed by the
// snapshot turn count, so a turn appended meanwhile simply invalidates
// it.
func (m *Manager) Context(ctx context.Context, conversationID string) string {
	turns := m.turns.Get(ctx, conversationID)
	if len(turns) == 0 {
		return ""
	}

	now := time.Now()
	m.ctxMu.Lock()
	if entry, ok := m.contexts[conversationID]; ok && entry.valid(len(turns), m.cfg.CacheTTL, now) {
		m.ctxHits++
		m.ctxMu.Unlock()
		return entry.text
	}
	m.ctxMisses++
	m.ctxMu.Unlock()

	header, tail := m.summarizer.Summarize(ctx, conversationID, turns)
	text := types.FormatTurns(tail)
	if header != "" {
		text = header + "\n\n" + text
	}

	m.ctxMu.Lock()
	m.contexts[conversationID] = cachedContext{
		text:      text,
		turnCount: len(turns),
		cachedAt:  now,
	}
	m.ctxMu.Unlock()

	return text
}

// Clear destroys a conversation: its turn log (memory and disk), its
// cached context, its cached summary, and its workflow reference
// memory.
func (m *Manager) Clear(ctx context.Context, conversationID string) {
	m.turns.Clear(ctx, conversationID)
	m.invalidateContext(conversationID)
	m.summarizer.ClearCache(conversationID)

	m.memMu.Lock()
	delete(m.memories, conversationID)
	m.memMu.Unlock()
}

func (m *Manager) invalidateContext(conversationID string) {
	m.ctxMu.Lock()
	delete(m.contexts, conversationID)
	m.ctxMu.Unlock()
}

// Memory returns the conversation's workflow reference memory,
// creating it on first use.
func (m *Manager) Memory(conversationID string) *workflowmem.Memory {
	m.memMu.Lock()
	defer m.memMu.Unlock()

	mem, ok := m.memories[conversationID]
	if !ok {
		mem = workflowmem.New(m.cfg.MaxReferences)
		m.memories[conversationID] = mem
	}
	return mem
}

// TrackWorkflow records that a workflow was discussed in a
// conversation, with auto-generated aliases.
func (m *Manager) TrackWorkflow(conversationID, specID, name, action string) {
	m.Memory(conversationID).Track(specID, name, action, nil, nil)
}

// CacheWorkflow memoizes a workflow specification document.
func (m *Manager) CacheWorkflow(workflowID string, doc any) {
	m.wfMu.Lock()
	defer m.wfMu.Unlock()
	m.workflows[workflowID] = cachedWorkflow{doc: doc, cachedAt: time.Now()}
}

// CachedWorkflow returns a cached workflow document if one is present
// and younger than the TTL. Stale entries are dropped and count as
// misses.
func (m *Manager) CachedWorkflow(workflowID string) (any, bool) {
	m.wfMu.Lock()
	defer m.wfMu.Unlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		m.wfMisses++
		return nil, false
	}
	if !entry.valid(m.cfg.CacheTTL, time.Now()) {
		delete(m.workflows, workflowID)
		m.wfMisses++
		return nil, false
	}
	m.wfHits++
	return entry.doc, true
}

// InvalidateWorkflow drops a cached workflow document. Returns true
// when an entry was present.
func (m *Manager) InvalidateWorkflow(workflowID string) bool {
	m.wfMu.Lock()
	defer m.wfMu.Unlock()

	_, ok := m.workflows[workflowID]
	delete(m.workflows, workflowID)
	return ok
}

// ClearWorkflowCache drops every cached workflow document.
func (m *Manager) ClearWorkflowCache() {
	m.wfMu.Lock()
	defer m.wfMu.Unlock()
	m.workflows = make(map[string]cachedWorkflow)
}

// CacheStats reports counters for both caches.
func (m *Manager) CacheStats() CacheStats {
	m.ctxMu.Lock()
	stats := CacheStats{
		ContextHits:         m.ctxHits,
		ContextMisses:       m.ctxMisses,
		ContextHitRate:      hitRate(m.ctxHits, m.ctxMisses),
		CachedConversations: len(m.contexts),
	}
	m.ctxMu.Unlock()

	m.wfMu.Lock()
	stats.WorkflowHits = m.wfHits
	stats.WorkflowMisses = m.wfMisses
	stats.WorkflowHitRate = hitRate(m.wfHits, m.wfMisses)
	stats.CachedWorkflows = len(m.workflows)
	m.wfMu.Unlock()

	return stats
}

// ResetCacheStats zeroes the hit/miss counters without touching cached
// entries.
func (m *Manager) ResetCacheStats() {
	m.ctxMu.Lock()
	m.ctxHits, m.ctxMisses = 0, 0
	m.ctxMu.Unlock()

	m.wfMu.Lock()
	m.wfHits, m.wfMisses = 0, 0
	m.wfMu.Unlock()
}

// Summarizer exposes the progressive summarizer for inspection
// (cached summaries, stats).
func (m *Manager) Summarizer() *summary.Progressive {
	return m.summarizer
}
