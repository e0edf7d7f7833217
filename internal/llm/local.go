package llm

import (
	"context"
	"strings"

	"github.com/liliang-cn/recallchat/internal/domain"
)

// LocalBackend answers without a model; used for offline runs and development
type LocalBackend struct{}

func (LocalBackend) Initialize(ctx context.Context) (Capabilities, error) {
	return Capabilities{Available: "readily", Model: "local"}, nil
}

func (LocalBackend) CreateSession(ctx context.Context, systemPrompt string, seed []domain.ChatTurn) (Session, error) {
	return localSession{}, nil
}

func (LocalBackend) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "Local response", nil
	}
	last := strings.TrimSpace(messages[len(messages)-1].Content)
	if last == "" {
		return "Local response", nil
	}
	return "Local response: " + last, nil
}

type localSession struct{}

func (localSession) Generate(ctx context.Context, message, briefing string) (string, error) {
	return LocalBackend{}.Complete(ctx, []Message{{Role: "user", Content: message}})
}
