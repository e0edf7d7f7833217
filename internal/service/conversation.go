package service

import (
	"sync"
	"sync/atomic"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/llm"
)

// Conversation is the per-thread state the pipeline owns: chat history, the
// generation session and the in-flight guard. Every component receives it
// explicitly instead of reading shared globals.
type Conversation struct {
	ThreadID string

	generating atomic.Bool

	mu        sync.Mutex
	history   []domain.ChatTurn
	session   llm.Session
	lastQuery *domain.SearchMetadata
}

// NewConversation creates a conversation seeded with already stored turns
func NewConversation(threadID string, history []domain.ChatTurn) *Conversation {
	return &Conversation{
		ThreadID: threadID,
		history:  append([]domain.ChatTurn(nil), history...),
	}
}

// tryBegin claims the single in-flight slot; false means a turn is running
func (c *Conversation) tryBegin() bool {
	return c.generating.CompareAndSwap(false, true)
}

func (c *Conversation) end() {
	c.generating.Store(false)
}

// IsGenerating reports whether a turn is in flight
func (c *Conversation) IsGenerating() bool {
	return c.generating.Load()
}

// History returns a copy of the in-memory history
func (c *Conversation) History() []domain.ChatTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatTurn(nil), c.history...)
}

func (c *Conversation) appendTurn(turn domain.ChatTurn) {
	c.mu.Lock()
	c.history = append(c.history, turn)
	c.mu.Unlock()
}

// LastQuery returns the metadata of the latest search-intent turn, if any
func (c *Conversation) LastQuery() *domain.SearchMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQuery
}

func (c *Conversation) setLastQuery(meta *domain.SearchMetadata) {
	c.mu.Lock()
	c.lastQuery = meta
	c.mu.Unlock()
}

// reset forgets history and last query after a chat clear. The generation
// session is dropped separately by ResponseGenerator.Reset.
func (c *Conversation) reset() {
	c.mu.Lock()
	c.history = nil
	c.lastQuery = nil
	c.mu.Unlock()
}
