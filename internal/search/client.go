// Package search talks to the browsing-history search service and normalizes
// its results into domain.SearchRecord values.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
)

const (
	DefaultMode  = "hybrid-rerank"
	DefaultLimit = 25
)

// Searcher is the history search collaborator
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchRecord, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is an HTTP Searcher
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new search client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type rawRecord struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Domain      string   `json:"domain"`
	Score       *float64 `json:"score"`
	Similarity  *float64 `json:"similarity"`
	FinalScore  *float64 `json:"finalScore"`
	Summary     string   `json:"summary"`
	Snippet     string   `json:"snippet"`
	VisitCount  int      `json:"visitCount"`
	LastVisitAt any      `json:"lastVisitAt"`
	FaviconURL  string   `json:"faviconUrl"`
}

type searchResponse struct {
	Results []rawRecord `json:"results"`
	Error   string      `json:"error,omitempty"`
}

// Search posts the request and returns rank-ordered, normalized records
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchRecord, error) {
	if req.Mode == "" {
		req.Mode = DefaultMode
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &domain.SearchError{Query: req.Query, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &domain.SearchError{Query: req.Query, Err: fmt.Errorf("search request failed: %s", resp.Status)}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &domain.SearchError{Query: req.Query, Err: err}
	}
	if parsed.Error != "" {
		return nil, &domain.SearchError{Query: req.Query, Err: errors.New(parsed.Error)}
	}

	records := make([]domain.SearchRecord, 0, len(parsed.Results))
	for _, raw := range parsed.Results {
		records = append(records, normalize(raw))
	}
	return records, nil
}

func normalize(raw rawRecord) domain.SearchRecord {
	record := domain.SearchRecord{
		URL:         raw.URL,
		Title:       raw.Title,
		Domain:      raw.Domain,
		Score:       NormalizeScore(raw.Score, raw.Similarity, raw.FinalScore),
		Summary:     strings.TrimSpace(raw.Summary),
		Snippet:     strings.TrimSpace(raw.Snippet),
		VisitCount:  raw.VisitCount,
		LastVisitAt: parseVisitTime(raw.LastVisitAt),
		FaviconURL:  raw.FaviconURL,
	}
	if record.Domain == "" {
		if u, err := url.Parse(raw.URL); err == nil {
			record.Domain = u.Hostname()
		}
	}
	if record.Title == "" {
		record.Title = record.URL
	}
	return record
}

// NormalizeScore picks the first non-zero of the candidate score fields and clamps it to 0..1
func NormalizeScore(candidates ...*float64) float64 {
	for _, c := range candidates {
		if c == nil || *c == 0 {
			continue
		}
		v := *c
		switch {
		case v < 0:
			return 0
		case v > 1:
			return 1
		default:
			return v
		}
	}
	return 0
}

// parseVisitTime accepts epoch milliseconds or an RFC 3339 string
func parseVisitTime(v any) time.Time {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return time.Time{}
		}
		return time.UnixMilli(int64(t)).UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
