package service

import (
	"context"
	"strings"
	"sync"

	"github.com/liliang-cn/recallchat/internal/domain"
	"go.uber.org/zap"
)

// InputGate says whether chat input is currently held back
type InputGate interface {
	InputDisabled() bool
}

// ChatService keeps one Conversation per thread and runs turns through the orchestrator
type ChatService struct {
	orchestrator *SearchOrchestrator
	sessions     *SessionStore
	generator    *ResponseGenerator
	gate         InputGate
	historyLimit int
	logger       *zap.Logger

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewChatService creates a new chat service. gate may be nil.
func NewChatService(
	orchestrator *SearchOrchestrator,
	sessions *SessionStore,
	generator *ResponseGenerator,
	gate InputGate,
	historyLimit int,
	logger *zap.Logger,
) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatService{
		orchestrator:  orchestrator,
		sessions:      sessions,
		generator:     generator,
		gate:          gate,
		historyLimit:  historyLimit,
		logger:        logger,
		conversations: make(map[string]*Conversation),
	}
}

// Chat runs one turn on the thread
func (s *ChatService) Chat(ctx context.Context, threadID string, req *domain.ChatRequest) (*domain.TurnResponse, error) {
	threadID = strings.TrimSpace(threadID)
	message := strings.TrimSpace(req.Message)
	if threadID == "" || message == "" {
		return nil, domain.ErrInvalidRequest
	}
	if s.gate != nil && s.gate.InputDisabled() {
		return nil, domain.ErrInputDisabled
	}

	conv := s.conversation(ctx, threadID)
	result, err := s.orchestrator.HandleTurn(ctx, conv, message)
	if err != nil {
		return nil, err
	}

	resp := &domain.TurnResponse{
		ThreadID:   threadID,
		Answer:     result.AssistantTurn.Content,
		Intent:     result.Intent,
		Assessment: result.Assessment,
		Links:      result.Records,
	}
	if result.Error != nil {
		resp.Error = result.Error.Error()
	}
	return resp, nil
}

// conversation returns the thread's conversation, restoring it from storage on first use
func (s *ChatService) conversation(ctx context.Context, threadID string) *Conversation {
	s.mu.Lock()
	conv, ok := s.conversations[threadID]
	s.mu.Unlock()
	if ok {
		return conv
	}

	history, err := s.sessions.History(ctx, threadID, s.historyLimit)
	if err != nil {
		s.logger.Warn("failed to restore thread, starting empty", zap.String("thread_id", threadID), zap.Error(err))
		history = nil
	}
	return s.register(threadID, history)
}

func (s *ChatService) register(threadID string, history []domain.ChatTurn) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[threadID]; ok {
		return conv
	}

	conv := NewConversation(threadID, history)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].IsSearchTurn() {
			conv.setLastQuery(history[i].Metadata)
			break
		}
	}
	s.conversations[threadID] = conv
	return conv
}

// LoadRecent returns the thread's recent turns with links of search turns regenerated
func (s *ChatService) LoadRecent(ctx context.Context, threadID string, limit int) (*domain.HistoryResponse, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, domain.ErrInvalidRequest
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	loaded, err := s.sessions.LoadRecent(ctx, threadID, limit)
	if err != nil {
		return nil, err
	}

	history := make([]domain.ChatTurn, len(loaded))
	for i, turn := range loaded {
		history[i] = turn.ChatTurn
	}
	s.register(threadID, history)

	if loaded == nil {
		loaded = []domain.LoadedTurn{}
	}
	return &domain.HistoryResponse{ThreadID: threadID, Turns: loaded}, nil
}

// Clear deletes the thread and drops its conversation. It holds the
// conversation's in-flight slot, so no turn can run while the thread is cleared.
func (s *ChatService) Clear(ctx context.Context, threadID string) error {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return domain.ErrInvalidRequest
	}

	conv := s.register(threadID, nil)
	if !conv.tryBegin() {
		return domain.ErrTurnInFlight
	}
	defer conv.end()

	if err := s.sessions.Clear(ctx, conv); err != nil {
		return err
	}
	s.generator.Reset(conv)
	s.forget(conv)
	return nil
}

func (s *ChatService) forget(conv *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversations[conv.ThreadID] == conv {
		delete(s.conversations, conv.ThreadID)
	}
}

// Deduplicate removes repeated turns from the stored thread
func (s *ChatService) Deduplicate(ctx context.Context, threadID string) (int, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return 0, domain.ErrInvalidRequest
	}
	return s.sessions.Deduplicate(ctx, threadID)
}

// HasActiveQuery reports whether any conversation has a search to refresh
func (s *ChatService) HasActiveQuery() bool {
	for _, conv := range s.snapshot() {
		if conv.LastQuery() != nil {
			return true
		}
	}
	return false
}

// RefreshActiveQueries silently re-runs the last search of every idle conversation
func (s *ChatService) RefreshActiveQueries(ctx context.Context) {
	for _, conv := range s.snapshot() {
		if _, ok := s.orchestrator.RerunLastQuery(ctx, conv); ok {
			s.logger.Debug("refreshed last query", zap.String("thread_id", conv.ThreadID))
		}
	}
}

func (s *ChatService) snapshot() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	convs := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	return convs
}
