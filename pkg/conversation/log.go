package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/AlejandroLoraG/luke-poc/pkg/logging"
	"github.com/AlejandroLoraG/luke-poc/pkg/store"
	"github.com/AlejandroLoraG/luke-poc/pkg/syncutil"
	"github.com/AlejandroLoraG/luke-poc/pkg/types"
)

// conversationDocument is the persisted form of one conversation.
type conversationDocument struct {
	ConversationID string       `json:"conversation_id"`
	Turns          []types.Turn `json:"turns"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	TurnCount      int          `json:"turn_count"`
}

// conversationState is the live in-memory view of one conversation.
type conversationState struct {
	turns     []types.Turn
	createdAt time.Time
}

// TurnLog is the bounded, append-only turn history for all
// conversations in a process. The in-memory map is authoritative;
// every mutation writes through to the durable store, and unseen
// conversations hydrate from disk on first access so a restarted
// process resumes prior history.
//
// Appends to the same conversation serialize on a per-conversation
// mutex; different conversations never contend.
type TurnLog struct {
	store    store.Store
	maxTurns int
	log      *logging.Logger

	locks syncutil.KeyedMutex

	// mu guards the map itself; per-conversation state is only mutated
	// under the conversation's keyed lock.
	mu            sync.Mutex
	conversations map[string]*conversationState
}

// NewTurnLog creates a turn log bounded to maxTurns per conversation.
func NewTurnLog(st store.Store, maxTurns int) *TurnLog {
	logger, _ := logging.NewLogger("turnlog")
	return &TurnLog{
		store:         st,
		maxTurns:      maxTurns,
		log:           logger,
		conversations: make(map[string]*conversationState),
	}
}

// Append adds a turn to a conversation and returns the new log length.
// The log hydrates from disk on the conversation's first touch, trims
// FIFO past maxTurns, and persists the trimmed log before returning.
// A persistence failure is logged and the in-memory state stays
// authoritative for the process lifetime.
func (l *TurnLog) Append(ctx context.Context, conversationID string, turn types.Turn) int {
	unlock := l.locks.Lock(conversationID)
	defer unlock()

	state := l.loadLocked(ctx, conversationID)
	state.turns = append(state.turns, turn)
	if len(state.turns) > l.maxTurns {
		state.turns = state.turns[len(state.turns)-l.maxTurns:]
	}

	l.persistLocked(ctx, conversationID, state)
	return len(state.turns)
}

// Get returns a copy of the conversation's turns, hydrating from disk
// when the conversation has not been seen by this process.
func (l *TurnLog) Get(ctx context.Context, conversationID string) []types.Turn {
	unlock := l.locks.Lock(conversationID)
	defer unlock()

	state := l.loadLocked(ctx, conversationID)
	out := make([]types.Turn, len(state.turns))
	copy(out, state.turns)
	return out
}

// Count returns the conversation's current turn count.
func (l *TurnLog) Count(ctx context.Context, conversationID string) int {
	unlock := l.locks.Lock(conversationID)
	defer unlock()

	return len(l.loadLocked(ctx, conversationID).turns)
}

// Clear removes the conversation from memory and deletes its persisted
// document.
func (l *TurnLog) Clear(ctx context.Context, conversationID string) {
	unlock := l.locks.Lock(conversationID)
	defer unlock()

	l.mu.Lock()
	delete(l.conversations, conversationID)
	l.mu.Unlock()

	l.store.Delete(ctx, store.KindConversations, conversationID)
}

// loadLocked returns the live state for a conversation, hydrating from
// the durable store on first touch. Caller holds the per-conversation
// lock.
func (l *TurnLog) loadLocked(ctx context.Context, conversationID string) *conversationState {
	l.mu.Lock()
	state, ok := l.conversations[conversationID]
	l.mu.Unlock()
	if ok {
		return state
	}

	state = &conversationState{createdAt: time.Now()}

	var doc conversationDocument
	if l.store.Get(ctx, store.KindConversations, conversationID, &doc) {
		if doc.ConversationID == "" {
			l.log.Warnf("persisted conversation %q missing id, treating as absent", conversationID)
		} else {
			state.turns = doc.Turns
			if !doc.CreatedAt.IsZero() {
				state.createdAt = doc.CreatedAt
			}
			if len(state.turns) > l.maxTurns {
				state.turns = state.turns[len(state.turns)-l.maxTurns:]
			}
			l.log.Debugf("hydrated conversation %s with %d turn(s)", conversationID, len(state.turns))
		}
	}

	l.mu.Lock()
	l.conversations[conversationID] = state
	l.mu.Unlock()
	return state
}

// persistLocked writes the full trimmed log through to the store.
// Caller holds the per-conversation lock.
func (l *TurnLog) persistLocked(ctx context.Context, conversationID string, state *conversationState) {
	doc := conversationDocument{
		ConversationID: conversationID,
		Turns:          state.turns,
		CreatedAt:      state.createdAt,
		UpdatedAt:      time.Now(),
		TurnCount:      len(state.turns),
	}
	if err := l.store.Put(ctx, store.KindConversations, conversationID, doc); err != nil {
		l.log.Errorf("persist conversation %s failed, in-memory state remains authoritative: %v", conversationID, err)
	}
}
