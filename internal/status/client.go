// Package status reads model readiness and page-processing queue state from
// the status source.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
)

// ModelSource is what the readiness monitor polls
type ModelSource interface {
	Availability(ctx context.Context) (string, error)
	ModelStatus(ctx context.Context) (domain.ModelStatus, error)
	StartRemoteWarm(ctx context.Context) error
	RefreshPrefs(ctx context.Context) error
}

// QueueSource is what the processing gate polls
type QueueSource interface {
	SummaryQueueStats(ctx context.Context) (domain.QueueStats, error)
	IngestionStats(ctx context.Context) (domain.QueueStats, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements ModelSource and QueueSource over HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new status client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Availability returns the raw local model availability string
func (c *Client) Availability(ctx context.Context) (string, error) {
	var out struct {
		Available string `json:"available"`
	}
	if err := c.do(ctx, http.MethodGet, "/model/availability", "availability", &out); err != nil {
		return "", err
	}
	return out.Available, nil
}

func (c *Client) ModelStatus(ctx context.Context) (domain.ModelStatus, error) {
	var out domain.ModelStatus
	err := c.do(ctx, http.MethodGet, "/model/status", "model_status", &out)
	return out, err
}

func (c *Client) StartRemoteWarm(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/model/warm", "warm", nil)
}

func (c *Client) RefreshPrefs(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/prefs/refresh", "prefs", nil)
}

func (c *Client) SummaryQueueStats(ctx context.Context) (domain.QueueStats, error) {
	var out domain.QueueStats
	err := c.do(ctx, http.MethodGet, "/queue/summary", "summary_queue", &out)
	return out, err
}

func (c *Client) IngestionStats(ctx context.Context) (domain.QueueStats, error) {
	var out domain.QueueStats
	err := c.do(ctx, http.MethodGet, "/queue/ingestion", "ingestion_queue", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, source string, out any) error {
	var body *bytes.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &domain.StatusPollError{Source: source, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.StatusPollError{Source: source, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &domain.StatusPollError{Source: source, Err: fmt.Errorf("status request failed: %s", resp.Status)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.StatusPollError{Source: source, Err: err}
	}
	return nil
}
