package session

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlejandroLoraG/luke-poc/pkg/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewRegistry(context.Background(), st), st
}

func TestCreateSessionIDFormat(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	s := r.Create(ctx, "", nil)
	assert.Regexp(t, regexp.MustCompile(`^sess_[0-9a-f]{32}$`), s.SessionID)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Equal(t, s.CreatedAt, s.LastActivity)
}

func TestCreateSessionIDsUnique(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		s := r.Create(ctx, "", nil)
		_, dup := seen[s.SessionID]
		require.False(t, dup, "duplicate session id %s", s.SessionID)
		seen[s.SessionID] = struct{}{}
	}
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	created := r.Create(ctx, "user-42", map[string]string{"client": "cli"})

	got, ok := r.Get(created.SessionID)
	require.True(t, ok)
	assert.Equal(t, "user-42", got.UserIdentifier)
	assert.Equal(t, "cli", got.Metadata["client"])

	_, ok = r.Get("sess_missing")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	created := r.Create(ctx, "", map[string]string{"client": "cli"})

	got, _ := r.Get(created.SessionID)
	got.UserIdentifier = "mutated"
	got.Metadata["client"] = "mutated"

	again, _ := r.Get(created.SessionID)
	assert.Empty(t, again.UserIdentifier)
	assert.Equal(t, "cli", again.Metadata["client"])
}

func TestTouchAdvancesActivity(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	created := r.Create(ctx, "", nil)

	time.Sleep(5 * time.Millisecond)
	require.True(t, r.Touch(ctx, created.SessionID))

	got, _ := r.Get(created.SessionID)
	assert.True(t, got.LastActivity.After(created.LastActivity))
	assert.Equal(t, created.CreatedAt, got.CreatedAt)

	assert.False(t, r.Touch(ctx, "sess_missing"))
}

func TestListOrderedByActivity(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	first := r.Create(ctx, "first", nil)
	r.Create(ctx, "second", nil)
	r.Create(ctx, "third", nil)

	time.Sleep(5 * time.Millisecond)
	r.Touch(ctx, first.SessionID)

	sessions := r.List(0)
	require.Len(t, sessions, 3)
	assert.Equal(t, first.SessionID, sessions[0].SessionID)

	limited := r.List(2)
	require.Len(t, limited, 2)
	assert.Equal(t, first.SessionID, limited[0].SessionID)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	r, st := newTestRegistry(t)
	created := r.Create(ctx, "", nil)

	assert.True(t, r.Delete(ctx, created.SessionID))
	assert.False(t, r.Delete(ctx, created.SessionID))

	_, ok := r.Get(created.SessionID)
	assert.False(t, ok)

	// Gone from disk too.
	assert.Empty(t, st.ListKeys(ctx, store.KindSessions))
}

func TestRegistryHydratesFromStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	r := NewRegistry(ctx, st)
	created := r.Create(ctx, "user-42", map[string]string{"client": "web"})
	r.Create(ctx, "user-99", nil)

	restarted := NewRegistry(ctx, st)
	assert.Equal(t, 2, restarted.Stats().TotalSessions)

	got, ok := restarted.Get(created.SessionID)
	require.True(t, ok)
	assert.Equal(t, "user-42", got.UserIdentifier)
	assert.Equal(t, "web", got.Metadata["client"])
}

func TestRegistrySkipsCorruptDocuments(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	r := NewRegistry(ctx, st)
	r.Create(ctx, "", nil)

	require.NoError(t, st.Put(ctx, store.KindSessions, "bogus", map[string]string{"unexpected": "shape"}))

	restarted := NewRegistry(ctx, st)
	assert.Equal(t, 1, restarted.Stats().TotalSessions)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	assert.Equal(t, Stats{}, r.Stats())

	first := r.Create(ctx, "", nil)
	time.Sleep(5 * time.Millisecond)
	second := r.Create(ctx, "", nil)

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, first.CreatedAt, stats.OldestCreated)
	assert.Equal(t, second.LastActivity, stats.NewestActivity)
}
