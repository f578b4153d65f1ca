// Package langsmith is the transport client for the LangSmith runs/query API:
// query payload construction and a single paged fetch with bounded retry.
package langsmith

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/edupulse/lsexport/internal/record"
)

const queryURL = "https://api.smith.langchain.com/api/v1/runs/query"

const (
	maxRetries     = 3
	requestTimeout = 60 * time.Second
	errBodyLimit   = 400
)

// Query describes the fixed time window and filter criteria of one export run.
type Query struct {
	SessionIDs []string
	FilterName string
	Limit      int
	StartTime  time.Time
	EndTime    time.Time
}

// Page is one page of query results. NextCursor is empty on the last page.
type Page struct {
	Records    []record.Run
	NextCursor string
}

type queryPayload struct {
	Cursor    string   `json:"cursor"`
	Limit     int      `json:"limit"`
	Session   []string `json:"session"`
	IsRoot    bool     `json:"is_root"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	OrderBy   string   `json:"order_by"`
	Select    []string `json:"select"`
	Filter    string   `json:"filter"`
}

type queryResponse struct {
	Runs    []record.Run `json:"runs"`
	Cursors struct {
		Next string `json:"next"`
	} `json:"cursors"`
}

// Client fetches run pages from LangSmith.
type Client struct {
	apiKey string
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewClient(apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey: apiKey,
		url:    queryURL,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger,
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(url string) {
	c.url = url
}

// FetchPage posts one query page. An empty cursor fetches the first page.
// Each attempt distinguishes rate limiting from other HTTP failures; after
// maxRetries the error is fatal to the export.
func (c *Client) FetchPage(ctx context.Context, q Query, cursor string) (*Page, error) {
	payload := queryPayload{
		Cursor:    cursor,
		Limit:     q.Limit,
		Session:   q.SessionIDs,
		IsRoot:    true,
		StartTime: isoUTC(q.StartTime),
		EndTime:   isoUTC(q.EndTime),
		OrderBy:   "start_time",
		Select:    []string{"id", "trace_id", "thread_id", "name", "outputs", "start_time"},
		Filter:    fmt.Sprintf("eq(name, %q)", q.FilterName),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		page, retryable, err := c.post(ctx, body)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.logger.Warn("query attempt failed", "attempt", attempt, "max", maxRetries, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("query failed after %d attempts: %w", maxRetries, lastErr)
}

// post performs a single attempt. retryable is false only for errors that
// further attempts cannot fix (request construction, cancelled context,
// malformed success body).
func (c *Client) post(ctx context.Context, body []byte) (page *Page, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// Handled below.
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("rate limited (HTTP 429)")
	default:
		return nil, true, fmt.Errorf("api error %d: %s", resp.StatusCode, truncate(respBody, errBodyLimit))
	}

	var qr queryResponse
	if err := json.Unmarshal(respBody, &qr); err != nil {
		return nil, false, fmt.Errorf("unexpected response format: %w", err)
	}

	return &Page{Records: qr.Runs, NextCursor: qr.Cursors.Next}, false, nil
}

// isoUTC renders a query boundary as RFC 3339 UTC with second precision,
// matching what the API expects.
func isoUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
