package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
)

// DefaultSessionTurns is how many prior turns a session resends with each message
const DefaultSessionTurns = 10

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// SessionTurns bounds the turns a session keeps besides its system prompt
	SessionTurns int
}

// OpenAIBackend speaks the OpenAI chat/completions protocol, which local
// Ollama-style servers expose as well
type OpenAIBackend struct {
	apiKey       string
	model        string
	baseURL      string
	sessionTurns int
	client       *http.Client
}

// NewOpenAIBackend creates a new OpenAI-compatible backend
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	sessionTurns := cfg.SessionTurns
	if sessionTurns <= 0 {
		sessionTurns = DefaultSessionTurns
	}
	return &OpenAIBackend{
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		baseURL:      strings.TrimRight(baseURL, "/"),
		sessionTurns: sessionTurns,
		client:       &http.Client{Timeout: timeout},
	}
}

// Initialize checks that the configured model is served
func (b *OpenAIBackend) Initialize(ctx context.Context) (Capabilities, error) {
	if b.model == "" {
		return Capabilities{}, errors.New("model not available: no model configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", nil)
	if err != nil {
		return Capabilities{}, err
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return Capabilities{}, fmt.Errorf("model not available: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Capabilities{}, statusError(resp)
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Capabilities{}, err
	}
	for _, m := range parsed.Data {
		if m.ID == b.model {
			return Capabilities{Available: "readily", Model: b.model}, nil
		}
	}
	return Capabilities{Available: "no", Model: b.model}, fmt.Errorf("model not available: %s is not served", b.model)
}

// CreateSession starts a client-side conversation seeded with the given turns
func (b *OpenAIBackend) CreateSession(ctx context.Context, systemPrompt string, seed []domain.ChatTurn) (Session, error) {
	session := &openAISession{backend: b, messages: seedMessages(systemPrompt, seed)}
	session.trim()
	return session, nil
}

// Complete sends the messages as a single request
func (b *OpenAIBackend) Complete(ctx context.Context, messages []Message) (string, error) {
	if b.model == "" {
		return "", errors.New("missing model for generation backend")
	}
	payload := map[string]any{
		"model":    b.model,
		"messages": messages,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	b.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", statusError(resp)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("LLM response had no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("LLM response was empty")
	}
	return content, nil
}

func (b *OpenAIBackend) authorize(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

type openAISession struct {
	backend *OpenAIBackend

	mu       sync.Mutex
	messages []Message
}

// Generate sends the running conversation plus this message; the exchange is
// only kept when the backend answered
func (s *openAISession) Generate(ctx context.Context, message, briefing string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request := append(append([]Message(nil), s.messages...), Message{Role: "user", Content: userContent(message, briefing)})
	answer, err := s.backend.Complete(ctx, request)
	if err != nil {
		return "", err
	}
	// keep the raw utterance, not the briefing, so history does not grow with stale search context
	s.messages = append(s.messages,
		Message{Role: "user", Content: message},
		Message{Role: "assistant", Content: answer},
	)
	s.trim()
	return answer, nil
}

// trim drops the oldest turns beyond the backend's sessionTurns, keeping the system prompt
func (s *openAISession) trim() {
	start := 0
	if len(s.messages) > 0 && s.messages[0].Role == "system" {
		start = 1
	}
	if extra := len(s.messages) - start - s.backend.sessionTurns; extra > 0 {
		s.messages = append(s.messages[:start], s.messages[start+extra:]...)
	}
}

// statusError turns an HTTP failure into an error whose text carries the
// quota / availability / download hints the service classifies on
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := strings.TrimSpace(string(raw))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("LLM request failed: %s: quota exceeded: %s", resp.Status, detail)
	case strings.Contains(strings.ToLower(detail), "download"):
		return fmt.Errorf("LLM request failed: %s: model downloading: %s", resp.Status, detail)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("LLM request failed: %s: model not available: %s", resp.Status, detail)
	default:
		return fmt.Errorf("LLM request failed: %s", resp.Status)
	}
}
