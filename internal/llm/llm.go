package llm

import (
	"context"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Capabilities is what the backend reported on initialization
type Capabilities struct {
	Available string `json:"available"`
	Model     string `json:"model"`
}

// Backend is the language-generation collaborator
type Backend interface {
	Initialize(ctx context.Context) (Capabilities, error)
	CreateSession(ctx context.Context, systemPrompt string, seed []domain.ChatTurn) (Session, error)
}

// Session keeps the running conversation of one chat thread on the backend side
type Session interface {
	Generate(ctx context.Context, message, briefing string) (string, error)
}

// Completer sends a single prompt without any session state
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Provider is a backend that can also answer one-off prompts
type Provider interface {
	Backend
	Completer
}

type Config struct {
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	SessionTurns int
}

// NewProvider creates the backend named by cfg.Provider
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "local":
		return LocalBackend{}, nil
	case "openai", "ollama", "remote":
		return NewOpenAIBackend(OpenAIConfig{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout,
			SessionTurns: cfg.SessionTurns,
		}), nil
	case "openrouter":
		return NewOpenAIBackend(OpenAIConfig{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      defaultIfEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
			Timeout:      cfg.Timeout,
			SessionTurns: cfg.SessionTurns,
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

// seedMessages turns stored chat turns into backend messages
func seedMessages(systemPrompt string, seed []domain.ChatTurn) []Message {
	messages := make([]Message, 0, len(seed)+1)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	for _, turn := range seed {
		messages = append(messages, Message{Role: string(turn.Role), Content: turn.Content})
	}
	return messages
}

// userContent joins the retrieved context with the raw utterance; empty briefing is omitted
func userContent(message, briefing string) string {
	if briefing == "" {
		return message
	}
	return briefing + "\n\nUser question: " + message
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
