package service

import (
	"context"
	"testing"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSessionStore(store *memoryStore, searcher *fakeSearcher) *SessionStore {
	return NewSessionStore(store, searcher, SearchOptions{Mode: "hybrid-rerank", Limit: 25}, zap.NewNop())
}

func TestSessionStore_AppendIsAtomic(t *testing.T) {
	store := newMemoryStore()
	s := newTestSessionStore(store, &fakeSearcher{})
	conv := NewConversation("t1", nil)

	turn := &domain.ChatTurn{Role: domain.RoleUser, Content: "hello"}
	require.NoError(t, s.Append(context.Background(), conv, turn))
	assert.NotEmpty(t, turn.ID)
	assert.Equal(t, "t1", turn.ThreadID)
	assert.Len(t, conv.History(), 1)

	store.saveErr = errBoom
	err := s.Append(context.Background(), conv, &domain.ChatTurn{Role: domain.RoleAssistant, Content: "hi"})

	var persistErr *domain.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "save_turn", persistErr.Op)
	assert.Len(t, conv.History(), 1)
}

func TestSessionStore_LoadRecentReplaysSearch(t *testing.T) {
	store := newMemoryStore()
	searcher := &fakeSearcher{records: records(0.72)}
	s := newTestSessionStore(store, searcher)
	conv := NewConversation("t1", nil)
	ctx := context.Background()

	meta := &domain.SearchMetadata{
		IsSearchQuery: true,
		Keywords:      []string{"github", "pull", "request"},
		OriginalQuery: "find my github pull request from last week",
	}
	require.NoError(t, s.Append(ctx, conv, &domain.ChatTurn{Role: domain.RoleUser, Content: meta.OriginalQuery}))
	require.NoError(t, s.Append(ctx, conv, &domain.ChatTurn{Role: domain.RoleAssistant, Content: "found it", Metadata: meta}))
	require.NoError(t, s.Append(ctx, conv, &domain.ChatTurn{Role: domain.RoleUser, Content: "thanks"}))

	loaded, err := s.LoadRecent(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	assert.Empty(t, loaded[0].Links)
	assert.Len(t, loaded[1].Links, 1)
	assert.Empty(t, loaded[2].Links)

	requests := searcher.calls()
	require.Len(t, requests, 1)
	assert.Equal(t, "github pull request", requests[0].Query)

	// replay must not write anything back
	assert.Len(t, store.stored("t1"), 3)
}

func TestSessionStore_ReplayFailureKeepsTurn(t *testing.T) {
	store := newMemoryStore()
	searcher := &fakeSearcher{err: errBoom}
	s := newTestSessionStore(store, searcher)
	conv := NewConversation("t1", nil)

	meta := &domain.SearchMetadata{IsSearchQuery: true, Keywords: []string{"go"}}
	require.NoError(t, s.Append(context.Background(), conv, &domain.ChatTurn{Role: domain.RoleAssistant, Content: "x", Metadata: meta}))

	loaded, err := s.LoadRecent(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Nil(t, loaded[0].Links)
}

func TestSessionStore_HistoryDeduplicates(t *testing.T) {
	store := newMemoryStore()
	s := newTestSessionStore(store, &fakeSearcher{})
	conv := NewConversation("t1", nil)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(context.Background(), conv, &domain.ChatTurn{Role: domain.RoleUser, Content: "same", CreatedAt: at}))
	}

	turns, err := s.History(context.Background(), "t1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	removed, err := s.Deduplicate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSessionStore_Clear(t *testing.T) {
	store := newMemoryStore()
	s := newTestSessionStore(store, &fakeSearcher{})
	conv := NewConversation("t1", nil)
	conv.setLastQuery(&domain.SearchMetadata{IsSearchQuery: true})

	require.NoError(t, s.Append(context.Background(), conv, &domain.ChatTurn{Role: domain.RoleUser, Content: "hello"}))
	require.NoError(t, s.Clear(context.Background(), conv))

	assert.Empty(t, conv.History())
	assert.Nil(t, conv.LastQuery())
	assert.Empty(t, store.stored("t1"))
}
