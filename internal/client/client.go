// Package client talks to the Status API from a remote monitoring agent:
// it pulls due batches and pushes probe results, standing in for the
// store in the split deployment.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/monitor"
)

var _ monitor.Batcher = (*Client)(nil)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type batchItem struct {
	SiteName     string `json:"site_name"`
	URL          string `json:"url"`
	Category     string `json:"category"`
	MaxRedirects int    `json:"max_redirects,omitempty"`
}

// NextBatch pulls the next due batch. The server side stamps the sites
// as checked when it hands them out, so an empty slice means nothing is
// due right now.
func (c *Client) NextBatch(ctx context.Context) ([]domain.Site, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sites/batch", nil)
	if err != nil {
		return nil, fmt.Errorf("build batch request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull batch: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var items []batchItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	sites := make([]domain.Site, 0, len(items))
	for _, it := range items {
		sites = append(sites, domain.Site{
			Name:         it.SiteName,
			URL:          it.URL,
			Category:     it.Category,
			MaxRedirects: it.MaxRedirects,
			Active:       true,
		})
	}
	return sites, nil
}

// Record pushes the probed results back in one request; the server
// commits them atomically and refreshes its snapshot.
func (c *Client) Record(ctx context.Context, results []domain.CheckResult) error {
	if len(results) == 0 {
		return nil
	}
	body, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/status", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push results: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
}
