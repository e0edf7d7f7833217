package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyGeneration(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want GenerationKind
	}{
		{"not available", errors.New("model not available"), GenerationUnavailable},
		{"not ready", errors.New("backend not ready"), GenerationUnavailable},
		{"quota", errors.New("LLM request failed: 429 Too Many Requests: quota exceeded"), GenerationQuotaExceeded},
		{"quota mixed case", errors.New("QuotaExceededError"), GenerationQuotaExceeded},
		{"downloading", errors.New("model is downloading"), GenerationDownloading},
		{"download pending", errors.New("waiting for Download to finish"), GenerationDownloading},
		{"unknown", errors.New("connection refused"), GenerationUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyGeneration(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyGeneration_KeepsExisting(t *testing.T) {
	orig := &GenerationError{Kind: GenerationDownloading, Err: errors.New("x")}
	wrapped := fmt.Errorf("turn: %w", orig)

	assert.Same(t, orig, ClassifyGeneration(wrapped))
	assert.Nil(t, ClassifyGeneration(nil))
}

func TestGenerationError_UserMessageDistinct(t *testing.T) {
	seen := map[string]GenerationKind{}
	for _, kind := range []GenerationKind{GenerationUnavailable, GenerationQuotaExceeded, GenerationDownloading} {
		msg := (&GenerationError{Kind: kind}).UserMessage()
		assert.NotEmpty(t, msg)
		_, dup := seen[msg]
		assert.False(t, dup, "message for %s reused", kind)
		seen[msg] = kind
	}
}

func TestTypedErrors_Unwrap(t *testing.T) {
	base := errors.New("boom")

	assert.ErrorIs(t, &IntentError{Utterance: "hi", Err: base}, base)
	assert.ErrorIs(t, &SearchError{Query: "q", Err: base}, base)
	assert.ErrorIs(t, &PersistenceError{Op: "save", ThreadID: "t", Err: base}, base)
	assert.ErrorIs(t, &StatusPollError{Source: "availability", Err: base}, base)

	assert.Equal(t, `persistence error: save [t]: boom`, (&PersistenceError{Op: "save", ThreadID: "t", Err: base}).Error())
}

func TestParseReadiness(t *testing.T) {
	tests := []struct {
		raw   string
		want  ReadinessState
		known bool
	}{
		{"ready", ReadinessReady, true},
		{"available", ReadinessReady, true},
		{"readily", ReadinessReady, true},
		{"downloadable", ReadinessDownloadable, true},
		{"after-download", ReadinessDownloadable, true},
		{"downloading", ReadinessDownloading, true},
		{"unavailable", ReadinessUnavailable, true},
		{"no", ReadinessUnavailable, true},
		{"weird", ReadinessUninitialized, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseReadiness(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, ok)
		})
	}
}

func TestPushEvent_Name(t *testing.T) {
	assert.Equal(t, EventPageQueued, PushEvent{Type: MessageStatusUpdate, Event: EventPageQueued}.Name())
	assert.Equal(t, EventContentIndexed, PushEvent{Type: MessageContentIndexed, URL: "https://a"}.Name())
}
