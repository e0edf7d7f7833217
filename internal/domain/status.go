package domain

// ModelLocation says which generation backend is serving requests
type ModelLocation string

const (
	ModelLocal  ModelLocation = "local"
	ModelRemote ModelLocation = "remote"
)

// ModelStatus is owned by the status source; this service only reads it
type ModelStatus struct {
	Warming   bool          `json:"warming"`
	Using     ModelLocation `json:"using"`
	LastError string        `json:"lastError,omitempty"`
}

// ReadinessState is the local model availability as tracked by the readiness monitor
type ReadinessState string

const (
	ReadinessUninitialized ReadinessState = "uninitialized"
	ReadinessReady         ReadinessState = "ready"
	ReadinessDownloadable  ReadinessState = "downloadable"
	ReadinessDownloading   ReadinessState = "downloading"
	ReadinessUnavailable   ReadinessState = "unavailable"
)

// ParseReadiness maps raw availability strings reported by the backend onto a state.
// The second return is false for strings it does not recognize.
func ParseReadiness(raw string) (ReadinessState, bool) {
	switch raw {
	case "ready", "available", "readily":
		return ReadinessReady, true
	case "downloadable", "after-download":
		return ReadinessDownloadable, true
	case "downloading":
		return ReadinessDownloading, true
	case "unavailable", "no":
		return ReadinessUnavailable, true
	default:
		return ReadinessUninitialized, false
	}
}

// ReadinessSnapshot is the externally visible readiness monitor state
type ReadinessSnapshot struct {
	State       ReadinessState `json:"state"`
	Downloading bool           `json:"downloading"`
	Warming     bool           `json:"warming"`
	Using       ModelLocation  `json:"using,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	Attempts    int            `json:"attempts"`
}

// QueueStats is the page ingestion/summarization queue state
type QueueStats struct {
	IsProcessing        bool `json:"isProcessing"`
	QueueLength         int  `json:"queueLength"`
	Completed           int  `json:"completed"`
	Failed              int  `json:"failed"`
	CurrentlyProcessing int  `json:"currentlyProcessing"`
}

// GateSnapshot is the externally visible processing gate state
type GateSnapshot struct {
	ProcessingPages bool       `json:"processingPages"`
	InputDisabled   bool       `json:"inputDisabled"`
	Summary         QueueStats `json:"summary"`
	Ingestion       QueueStats `json:"ingestion"`
}

// StatusResponse is the API response for GET /api/status
type StatusResponse struct {
	Model      ReadinessSnapshot `json:"model"`
	Processing GateSnapshot      `json:"processing"`
}

// Push event names emitted by the page processing pipeline
const (
	EventNavigationStarted   = "navigation_started"
	EventPageQueued          = "page_queued"
	EventProcessingStarted   = "processing_started"
	EventProcessingCompleted = "processing_completed"
	EventContentIndexed      = "content_indexed"
)

// Push message types
const (
	MessageStatusUpdate   = "status_update"
	MessageContentIndexed = "content_indexed"
)

// PushEvent is a fire-and-forget notification from the ingestion side
type PushEvent struct {
	Type             string         `json:"type" binding:"required"`
	Event            string         `json:"event,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
	URL              string         `json:"url,omitempty"`
	IndexingComplete bool           `json:"indexingComplete,omitempty"`
}

// Name returns the effective event name of the push message
func (e PushEvent) Name() string {
	if e.Type == MessageContentIndexed {
		return EventContentIndexed
	}
	return e.Event
}
