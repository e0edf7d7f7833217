package domain

import "time"

// SearchRecord is one ranked browsing-history hit returned by the search service.
// Score is already normalized to a single 0..1 value.
type SearchRecord struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Domain      string    `json:"domain"`
	Score       float64   `json:"score"`
	Summary     string    `json:"summary,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	VisitCount  int       `json:"visitCount"`
	LastVisitAt time.Time `json:"lastVisitAt"`
	FaviconURL  string    `json:"faviconUrl,omitempty"`
}

// Excerpt returns the preferred content text of the record
func (r SearchRecord) Excerpt() string {
	if r.Summary != "" {
		return r.Summary
	}
	return r.Snippet
}

// SearchRequest is the query sent to the search service
type SearchRequest struct {
	Query  string `json:"query"`
	Mode   string `json:"mode"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Quality is the confidence tier of a result set
type Quality string

const (
	QualityNone Quality = "none"
	QualityLow  Quality = "low"
	QualityHigh Quality = "high"
)

// QualityAssessment is derived per turn and never persisted
type QualityAssessment struct {
	Quality    Quality   `json:"quality"`
	FirstScore float64   `json:"firstScore"`
	MaxScore   float64   `json:"maxScore"`
	Count      int       `json:"count"`
	Scores     []float64 `json:"scores,omitempty"`
}
