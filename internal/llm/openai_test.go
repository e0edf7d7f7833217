package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIBackend_Defaults(t *testing.T) {
	b := NewOpenAIBackend(OpenAIConfig{Model: "gpt-4", BaseURL: "https://api.example.com/v1/"})
	assert.Equal(t, "https://api.example.com/v1", b.baseURL)
	assert.NotNil(t, b.client)

	b = NewOpenAIBackend(OpenAIConfig{Model: "gpt-4"})
	assert.Equal(t, "https://api.openai.com/v1", b.baseURL)
}

func completionServer(t *testing.T, answers []string, seen *[][]Message) *httptest.Server {
	t.Helper()
	call := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var payload struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		*seen = append(*seen, payload.Messages)
		answer := answers[call%len(answers)]
		call++
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": answer}}},
		})
	}))
}

func TestOpenAISession_KeepsContinuity(t *testing.T) {
	var seen [][]Message
	srv := completionServer(t, []string{" first ", "second"}, &seen)
	defer srv.Close()

	b := NewOpenAIBackend(OpenAIConfig{APIKey: "key", Model: "m", BaseURL: srv.URL})
	ctx := context.Background()
	session, err := b.CreateSession(ctx, "system prompt", []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "earlier"},
	})
	require.NoError(t, err)

	answer, err := session.Generate(ctx, "find my PR", "BRIEFING")
	require.NoError(t, err)
	assert.Equal(t, "first", answer)

	answer, err = session.Generate(ctx, "thanks", "")
	require.NoError(t, err)
	assert.Equal(t, "second", answer)

	require.Len(t, seen, 2)
	assert.Equal(t, []Message{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: "earlier"},
		{Role: "user", Content: "BRIEFING\n\nUser question: find my PR"},
	}, seen[0])
	assert.Equal(t, []Message{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: "earlier"},
		{Role: "user", Content: "find my PR"},
		{Role: "assistant", Content: "first"},
		{Role: "user", Content: "thanks"},
	}, seen[1])
}

func TestOpenAISession_BoundsResentTurns(t *testing.T) {
	var seen [][]Message
	srv := completionServer(t, []string{"ok"}, &seen)
	defer srv.Close()

	b := NewOpenAIBackend(OpenAIConfig{APIKey: "key", Model: "m", BaseURL: srv.URL, SessionTurns: 4})
	ctx := context.Background()
	seed := make([]domain.ChatTurn, 8)
	for i := range seed {
		seed[i] = domain.ChatTurn{Role: domain.RoleUser, Content: fmt.Sprintf("seed%d", i)}
	}
	session, err := b.CreateSession(ctx, "system prompt", seed)
	require.NoError(t, err)

	for i := 1; i <= 50; i++ {
		_, err := session.Generate(ctx, fmt.Sprintf("q%d", i), "")
		require.NoError(t, err)
	}

	require.Len(t, seen, 50)
	assert.Equal(t, []Message{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: "seed4"},
		{Role: "user", Content: "seed5"},
		{Role: "user", Content: "seed6"},
		{Role: "user", Content: "seed7"},
		{Role: "user", Content: "q1"},
	}, seen[0])
	for _, request := range seen {
		assert.LessOrEqual(t, len(request), 6)
	}
	assert.Equal(t, []Message{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: "q48"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "q49"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "q50"},
	}, seen[49])
}

func TestOpenAIBackend_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"quota", http.StatusTooManyRequests, "slow down", "quota"},
		{"downloading", http.StatusServiceUnavailable, "model is downloading", "downloading"},
		{"unavailable", http.StatusServiceUnavailable, "", "not available"},
		{"missing model", http.StatusNotFound, "no such model", "not available"},
		{"other", http.StatusBadRequest, "bad", "400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			b := NewOpenAIBackend(OpenAIConfig{Model: "m", BaseURL: srv.URL})
			_, err := b.Complete(context.Background(), []Message{{Role: "user", Content: "x"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOpenAIBackend_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIBackend(OpenAIConfig{Model: "m", BaseURL: srv.URL}).Complete(context.Background(), nil)
	assert.EqualError(t, err, "LLM response had no choices")
}

func TestOpenAIBackend_Initialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"qwen2.5:7b"},{"id":"llama3"}]}`))
	}))
	defer srv.Close()

	caps, err := NewOpenAIBackend(OpenAIConfig{Model: "llama3", BaseURL: srv.URL}).Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "readily", caps.Available)

	caps, err = NewOpenAIBackend(OpenAIConfig{Model: "missing", BaseURL: srv.URL}).Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
	assert.Equal(t, "no", caps.Available)
}
