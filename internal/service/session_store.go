package service

import (
	"context"
	"strings"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/search"
	"go.uber.org/zap"
)

// TurnStore is the durable chat thread storage
type TurnStore interface {
	SaveTurn(ctx context.Context, turn *domain.ChatTurn) (string, error)
	GetTurns(ctx context.Context, threadID string, limit int) ([]*domain.ChatTurn, error)
	Deduplicate(ctx context.Context, threadID string) (int, error)
	ClearThread(ctx context.Context, threadID string) error
}

// SearchOptions is how the pipeline queries the search service
type SearchOptions struct {
	Mode  string
	Limit int
}

func (o SearchOptions) request(keywords []string) domain.SearchRequest {
	return domain.SearchRequest{
		Query:  strings.Join(keywords, " "),
		Mode:   o.Mode,
		Limit:  o.Limit,
		Offset: 0,
	}
}

// SessionStore persists chat turns and restores them on load
type SessionStore struct {
	store    TurnStore
	searcher search.Searcher
	opts     SearchOptions
	logger   *zap.Logger
}

// NewSessionStore creates a new session store
func NewSessionStore(store TurnStore, searcher search.Searcher, opts SearchOptions, logger *zap.Logger) *SessionStore {
	return &SessionStore{store: store, searcher: searcher, opts: opts, logger: logger}
}

// History deduplicates the thread and returns its most recent turns
func (s *SessionStore) History(ctx context.Context, threadID string, limit int) ([]domain.ChatTurn, error) {
	if removed, err := s.store.Deduplicate(ctx, threadID); err != nil {
		s.logger.Warn("deduplicate before load failed", zap.String("thread_id", threadID), zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("removed duplicate turns", zap.String("thread_id", threadID), zap.Int("removed", removed))
	}

	stored, err := s.store.GetTurns(ctx, threadID, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get_turns", ThreadID: threadID, Err: err}
	}
	turns := make([]domain.ChatTurn, len(stored))
	for i, t := range stored {
		turns[i] = *t
	}
	return turns, nil
}

// LoadRecent returns the recent window of a thread. Search-originated assistant
// turns get their links regenerated by re-running the search live, since only
// the query metadata is stored.
func (s *SessionStore) LoadRecent(ctx context.Context, threadID string, limit int) ([]domain.LoadedTurn, error) {
	turns, err := s.History(ctx, threadID, limit)
	if err != nil {
		return nil, err
	}

	loaded := make([]domain.LoadedTurn, len(turns))
	for i, turn := range turns {
		loaded[i] = domain.LoadedTurn{ChatTurn: turn}
		if turn.Role != domain.RoleAssistant || !turn.IsSearchTurn() {
			continue
		}
		loaded[i].Links = s.replay(ctx, turn)
	}
	return loaded, nil
}

func (s *SessionStore) replay(ctx context.Context, turn domain.ChatTurn) []domain.SearchRecord {
	if s.searcher == nil || len(turn.Metadata.Keywords) == 0 {
		return nil
	}
	records, err := s.searcher.Search(ctx, s.opts.request(turn.Metadata.Keywords))
	if err != nil {
		s.logger.Warn("history search replay failed",
			zap.String("thread_id", turn.ThreadID),
			zap.String("turn_id", turn.ID),
			zap.Error(err),
		)
		return nil
	}
	return records
}

// Append stores the turn and, only once storage succeeded, adds it to the
// conversation history
func (s *SessionStore) Append(ctx context.Context, conv *Conversation, turn *domain.ChatTurn) error {
	turn.ThreadID = conv.ThreadID
	if _, err := s.store.SaveTurn(ctx, turn); err != nil {
		return &domain.PersistenceError{Op: "save_turn", ThreadID: conv.ThreadID, Err: err}
	}
	conv.appendTurn(*turn)
	return nil
}

// Clear removes the stored thread and empties the conversation
func (s *SessionStore) Clear(ctx context.Context, conv *Conversation) error {
	if err := s.store.ClearThread(ctx, conv.ThreadID); err != nil {
		return &domain.PersistenceError{Op: "clear_thread", ThreadID: conv.ThreadID, Err: err}
	}
	conv.reset()
	return nil
}

// Deduplicate removes repeated turns of the thread and returns how many were removed
func (s *SessionStore) Deduplicate(ctx context.Context, threadID string) (int, error) {
	removed, err := s.store.Deduplicate(ctx, threadID)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "deduplicate", ThreadID: threadID, Err: err}
	}
	return removed, nil
}
