package service

import (
	"context"
	"fmt"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/llm"
	"go.uber.org/zap"
)

// SystemPrompt seeds every generation session
const SystemPrompt = `You are a helpful assistant with access to the user's browsing history.
When a message comes with browsing-history results, answer from those results only and mention the page titles and when they were visited.
If the results start with NO_HISTORY_MATCH, tell the user nothing in their history matched. Never invent pages, URLs or visits.
If the results start with LOW_CONFIDENCE, say the matches are uncertain.
Without history results, reply conversationally and briefly.`

// ResponseGenerator owns the generation session of each conversation: created
// on first use, reused for continuity, dropped only on chat clear
type ResponseGenerator struct {
	backend llm.Backend
	builder *ContextBuilder
	logger  *zap.Logger
}

// NewResponseGenerator creates a new response generator
func NewResponseGenerator(backend llm.Backend, builder *ContextBuilder, logger *zap.Logger) *ResponseGenerator {
	return &ResponseGenerator{backend: backend, builder: builder, logger: logger}
}

// Initialize checks the backend once at startup
func (g *ResponseGenerator) Initialize(ctx context.Context) (llm.Capabilities, error) {
	caps, err := g.backend.Initialize(ctx)
	if err != nil {
		return caps, domain.ClassifyGeneration(err)
	}
	return caps, nil
}

// Generate answers message with the given briefing. Failures come back as *domain.GenerationError.
func (g *ResponseGenerator) Generate(ctx context.Context, conv *Conversation, message, briefing string) (string, error) {
	session, err := g.session(ctx, conv)
	if err != nil {
		return "", domain.ClassifyGeneration(fmt.Errorf("create session: %w", err))
	}

	answer, err := session.Generate(ctx, message, briefing)
	if err != nil {
		return "", domain.ClassifyGeneration(err)
	}
	return answer, nil
}

func (g *ResponseGenerator) session(ctx context.Context, conv *Conversation) (llm.Session, error) {
	conv.mu.Lock()
	session := conv.session
	history := append([]domain.ChatTurn(nil), conv.history...)
	conv.mu.Unlock()
	if session != nil {
		return session, nil
	}

	seed := g.builder.ConversationWindow(history)
	session, err := g.backend.CreateSession(ctx, SystemPrompt, seed)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("generation session created",
		zap.String("thread_id", conv.ThreadID),
		zap.Int("seed_turns", len(seed)),
	)

	conv.mu.Lock()
	conv.session = session
	conv.mu.Unlock()
	return session, nil
}

// Reset discards the conversation's session; the next turn creates a fresh one
func (g *ResponseGenerator) Reset(conv *Conversation) {
	conv.mu.Lock()
	conv.session = nil
	conv.mu.Unlock()
}
