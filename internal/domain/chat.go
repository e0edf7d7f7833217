package domain

import "time"

// Role identifies who authored a chat turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one persisted message of a chat thread
type ChatTurn struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Metadata  *SearchMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsSearchTurn reports whether the turn was generated from retrieved history records
func (t *ChatTurn) IsSearchTurn() bool {
	return t.Metadata != nil && t.Metadata.IsSearchQuery
}

// SearchMetadata is attached to assistant turns produced from a search-intent query.
// Only what is needed to re-issue the search is stored, never the records themselves.
type SearchMetadata struct {
	IsSearchQuery bool     `json:"isSearchQuery"`
	Keywords      []string `json:"keywords"`
	OriginalQuery string   `json:"originalQuery"`
}

// Intent is the classification of a user utterance
type Intent struct {
	IsSearchQuery bool     `json:"is_search_query"`
	Keywords      []string `json:"keywords"`
}

// LoadedTurn is a stored turn plus the links regenerated for it on load
type LoadedTurn struct {
	ChatTurn
	Links []SearchRecord `json:"links,omitempty"`
}

// ChatRequest is the request to send a chat message
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// TurnResponse is the API response for a completed chat turn
type TurnResponse struct {
	ThreadID   string            `json:"thread_id"`
	Answer     string            `json:"answer"`
	Error      string            `json:"error,omitempty"`
	Intent     Intent            `json:"intent"`
	Assessment QualityAssessment `json:"assessment"`
	Links      []SearchRecord    `json:"links,omitempty"`
}

// HistoryResponse is the API response for a thread's recent turns
type HistoryResponse struct {
	ThreadID string       `json:"thread_id"`
	Turns    []LoadedTurn `json:"turns"`
}

// ThreadSummary describes a stored thread
type ThreadSummary struct {
	ThreadID  string    `json:"thread_id"`
	TurnCount int       `json:"turn_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats represents storage statistics
type Stats struct {
	TotalThreads int `json:"total_threads"`
	TotalTurns   int `json:"total_turns"`
	TotalChats   int `json:"total_chats"`
}
