// Package binding keeps the ledger of chat-to-workflow bindings. A
// binding starts unbound when a conversation opens and may be bound to
// exactly one workflow, exactly once. Rebinding never succeeds and
// never alters the existing binding.
package binding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AlejandroLoraG/luke-poc/pkg/logging"
	"github.com/AlejandroLoraG/luke-poc/pkg/store"
	"github.com/AlejandroLoraG/luke-poc/pkg/syncutil"
)

// ChatBinding records a conversation's binding state. BoundWorkflowID
// and BoundAt are nil until the conversation is bound.
type ChatBinding struct {
	ConversationID  string     `json:"conversation_id"`
	SessionID       string     `json:"session_id"`
	CreatedAt       time.Time  `json:"created_at"`
	BoundWorkflowID *string    `json:"bound_workflow_id,omitempty"`
	BoundAt         *time.Time `json:"bound_at,omitempty"`
	LastActivity    time.Time  `json:"last_activity"`
}

// IsBound reports whether the conversation has been bound to a
// workflow.
func (b *ChatBinding) IsBound() bool {
	return b.BoundWorkflowID != nil
}

// AlreadyBoundError is returned when a bind is attempted against a
// conversation that is already bound.
type AlreadyBoundError struct {
	ConversationID  string
	BoundWorkflowID string
}

func (e *AlreadyBoundError) Error() string {
	return fmt.Sprintf("conversation %s is already bound to workflow %s",
		e.ConversationID, e.BoundWorkflowID)
}

// Stats summarizes the ledger.
type Stats struct {
	TotalBindings int `json:"total_bindings"`
	Bound         int `json:"bound"`
	Unbound       int `json:"unbound"`
}

// Ledger tracks bindings in memory with write-through persistence. All
// persisted bindings are hydrated at construction.
type Ledger struct {
	store store.Store
	log   *logging.Logger
	locks syncutil.KeyedMutex

	mu       sync.RWMutex
	bindings map[string]*ChatBinding
}

// NewLedger builds a ledger over the given store and hydrates every
// persisted binding. Unreadable documents are skipped.
func NewLedger(ctx context.Context, st store.Store) *Ledger {
	logger, _ := logging.NewLogger("binding")

	l := &Ledger{
		store:    st,
		log:      logger,
		bindings: make(map[string]*ChatBinding),
	}

	for _, key := range st.ListKeys(ctx, store.KindBindings) {
		var b ChatBinding
		if !st.Get(ctx, store.KindBindings, key, &b) {
			continue
		}
		if b.ConversationID == "" {
			l.log.Warnf("skipping binding document %q: missing conversation id", key)
			continue
		}
		l.bindings[b.ConversationID] = &b
	}
	if len(l.bindings) > 0 {
		l.log.Infof("restored %d chat bindings", len(l.bindings))
	}

	return l
}

// CreateBinding registers an unbound binding for a conversation.
// Idempotent: if the conversation already has a binding, that binding
// is returned unchanged, bound or not.
func (l *Ledger) CreateBinding(ctx context.Context, conversationID, sessionID string) *ChatBinding {
	unlock := l.locks.Lock(conversationID)
	defer unlock()

	l.mu.Lock()
	if existing, ok := l.bindings[conversationID]; ok {
		out := copyBinding(existing)
		l.mu.Unlock()
		return out
	}

	now := time.Now()
	b := &ChatBinding{
		ConversationID: conversationID,
		SessionID:      sessionID,
		CreatedAt:      now,
		LastActivity:   now,
	}
	l.bindings[conversationID] = b
	l.mu.Unlock()

	l.persist(ctx, b)
	l.log.Infof("created binding for conversation %s (session %s)", conversationID, sessionID)
	return copyBinding(b)
}

// Bind transitions a conversation from unbound to bound. Binding an
// already-bound conversation fails with AlreadyBoundError and leaves
// the existing binding untouched, even for the same workflow. A
// conversation with no binding yet gets one implicitly.
func (l *Ledger) Bind(ctx context.Context, conversationID, sessionID, workflowID string) (*ChatBinding, error) {
	unlock := l.locks.Lock(conversationID)
	defer unlock()

	l.mu.Lock()
	b, ok := l.bindings[conversationID]
	if ok && b.IsBound() {
		err := &AlreadyBoundError{
			ConversationID:  conversationID,
			BoundWorkflowID: *b.BoundWorkflowID,
		}
		l.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	if !ok {
		b = &ChatBinding{
			ConversationID: conversationID,
			SessionID:      sessionID,
			CreatedAt:      now,
		}
		l.bindings[conversationID] = b
	}
	b.BoundWorkflowID = &workflowID
	b.BoundAt = &now
	b.LastActivity = now
	l.mu.Unlock()

	l.persist(ctx, b)
	l.log.Infof("bound conversation %s to workflow %s", conversationID, workflowID)
	return copyBinding(b), nil
}

// Get returns a conversation's binding.
func (l *Ledger) Get(conversationID string) (*ChatBinding, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.bindings[conversationID]
	if !ok {
		return nil, false
	}
	return copyBinding(b), true
}

// IsBound reports whether a conversation is bound to a workflow. An
// unknown conversation is not bound.
func (l *Ledger) IsBound(conversationID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.bindings[conversationID]
	return ok && b.IsBound()
}

// BoundWorkflow returns the workflow a conversation is bound to.
func (l *Ledger) BoundWorkflow(conversationID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.bindings[conversationID]
	if !ok || !b.IsBound() {
		return "", false
	}
	return *b.BoundWorkflowID, true
}

// SessionBindings returns every binding belonging to a session, most
// recent activity first.
func (l *Ledger) SessionBindings(sessionID string) []*ChatBinding {
	l.mu.RLock()
	var out []*ChatBinding
	for _, b := range l.bindings {
		if b.SessionID == sessionID {
			out = append(out, copyBinding(b))
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Touch advances a binding's last-activity timestamp.
func (l *Ledger) Touch(ctx context.Context, conversationID string) bool {
	unlock := l.locks.Lock(conversationID)
	defer unlock()

	l.mu.Lock()
	b, ok := l.bindings[conversationID]
	var snapshot *ChatBinding
	if ok {
		b.LastActivity = time.Now()
		snapshot = copyBinding(b)
	}
	l.mu.Unlock()

	if !ok {
		return false
	}
	l.persist(ctx, snapshot)
	return true
}

// Delete removes a conversation's binding from memory and disk.
func (l *Ledger) Delete(ctx context.Context, conversationID string) bool {
	unlock := l.locks.Lock(conversationID)
	defer unlock()

	l.mu.Lock()
	_, ok := l.bindings[conversationID]
	delete(l.bindings, conversationID)
	l.mu.Unlock()

	if !ok {
		return false
	}
	l.store.Delete(ctx, store.KindBindings, conversationID)
	l.log.Infof("deleted binding for conversation %s", conversationID)
	return true
}

// Stats reports ledger-wide aggregates.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{TotalBindings: len(l.bindings)}
	for _, b := range l.bindings {
		if b.IsBound() {
			stats.Bound++
		} else {
			stats.Unbound++
		}
	}
	return stats
}

func (l *Ledger) persist(ctx context.Context, b *ChatBinding) {
	if err := l.store.Put(ctx, store.KindBindings, b.ConversationID, b); err != nil {
		l.log.Errorf("failed to persist binding for conversation %s: %v", b.ConversationID, err)
	}
}

func copyBinding(b *ChatBinding) *ChatBinding {
	out := *b
	if b.BoundWorkflowID != nil {
		id := *b.BoundWorkflowID
		out.BoundWorkflowID = &id
	}
	if b.BoundAt != nil {
		at := *b.BoundAt
		out.BoundAt = &at
	}
	return &out
}
